// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/queue"
	"draftsmith/internal/store"
)

// NewConfig returns a config rooted in a per-test temporary directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	defaults := config.Default()
	cfg := &defaults
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SourcesFile = filepath.Join(base, "sources.yaml")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// MustOpenStore opens a state store in a temporary directory.
func MustOpenStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// MustOpenQueue opens a work queue in a temporary directory.
func MustOpenQueue(t *testing.T, cfg *config.Config) *queue.Queue {
	t.Helper()
	q, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// MustOpenShortLeaseQueue opens a queue whose leases expire quickly, for
// redelivery tests.
func MustOpenShortLeaseQueue(t *testing.T, cfg *config.Config, lease time.Duration) *queue.Queue {
	t.Helper()
	q, err := queue.OpenPath(filepath.Join(cfg.Paths.DataDir, "queue.db"), lease)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}
