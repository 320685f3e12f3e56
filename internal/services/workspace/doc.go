// Package workspace sends intake records and finished drafts to the
// editorial review database.
package workspace
