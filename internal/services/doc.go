// Package services provides shared plumbing for external collaborators:
// sentinel error markers with wrap helpers for classification, and context
// annotation helpers so logging can tag records with item, stage, and
// correlation identifiers.
package services
