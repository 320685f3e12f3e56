package services_test

import (
	"errors"
	"testing"

	"draftsmith/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "research", "load state", "item id missing", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("validation errors must not be retryable")
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(nil, "publish", "mark published", "", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be preserved")
	}
	if !services.Retryable(err) {
		t.Fatal("transient errors must be retryable")
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrExternalTool, "factcheck", "oracle call", "http 500", nil)
	details := services.Details(err)
	if details.Message != "factcheck: oracle call: http 500" {
		t.Fatalf("unexpected details message: %q", details.Message)
	}
}
