package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"draftsmith/internal/logging"
	"draftsmith/internal/services"
)

func TestNewForDirWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.NewForDir(dir, "info", "console")
	if err != nil {
		t.Fatalf("NewForDir: %v", err)
	}
	logger.Info("pipeline ready", logging.String("component", "test"))

	data, err := os.ReadFile(filepath.Join(dir, "draftsmith.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "pipeline ready") {
		t.Fatalf("expected log line in file, got %q", string(data))
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithItemID(context.Background(), "abc")
	ctx = services.WithStage(ctx, "research")

	fields := logging.ContextFields(ctx)
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	if !keys[logging.FieldItemID] || !keys[logging.FieldStage] {
		t.Fatalf("expected item and stage fields, got %v", keys)
	}
}
