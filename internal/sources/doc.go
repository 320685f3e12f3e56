// Package sources fetches candidate items from configured external sources
// and reduces each to the uniform Candidate shape discovery scores.
package sources
