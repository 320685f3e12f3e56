// Package workflow drives approved items through the staged enhancement
// pipeline. State is persisted per item in the shared store; progression is
// strictly linear and every mutation is conditional on the revision the
// state was read at, so redelivered or concurrent messages cannot corrupt a
// workflow.
package workflow
