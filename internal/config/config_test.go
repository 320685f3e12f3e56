package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"draftsmith/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Discovery.RetentionDays != 30 {
		t.Fatalf("expected default retention 30, got %d", cfg.Discovery.RetentionDays)
	}
	if cfg.Workflow.RetryDelaySeconds != 60 {
		t.Fatalf("expected default retry delay 60, got %d", cfg.Workflow.RetryDelaySeconds)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := []byte(`
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[logging]
format = "JSON"
level = "Debug"

[discovery]
max_items_per_source = 5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected lowercased logging settings, got %+v", cfg.Logging)
	}
	if cfg.Discovery.MaxItemsPerSource != 5 {
		t.Fatalf("expected max items 5, got %d", cfg.Discovery.MaxItemsPerSource)
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/tmp/data"
	cfg.Paths.LogDir = "/tmp/logs"
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported log format")
	}
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := []byte(`
sources:
  - id: devops-weekly
    kind: feed
    url: https://example.com/rss
    min_score: 70
    category: DevOps
    section: news
    tags: [devops, weekly]
  - id: k8s-releases
    kind: releases
    url: kubernetes/kubernetes
    min_score: 80
    category: Kubernetes
    featured: true
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	sources, err := config.LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Kind != config.KindFeed || sources[1].Featured != true {
		t.Fatalf("unexpected sources: %+v", sources)
	}
}

func TestLoadSourcesRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := []byte("sources:\n  - id: x\n    kind: podcast\n    url: https://example.com\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	if _, err := config.LoadSources(path); err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}

func TestLoadSourcesRejectsDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := []byte(`
sources:
  - id: dup
    kind: feed
    url: https://example.com/a
  - id: dup
    kind: feed
    url: https://example.com/b
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	if _, err := config.LoadSources(path); err == nil {
		t.Fatal("expected error for duplicate source id")
	}
}
