package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/services/llm"
)

func TestCompleteReturnsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing authorization header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"85"}}]}`))
	}))
	defer server.Close()

	client := llm.NewClient(config.LLM{APIKey: "key", BaseURL: server.URL, Model: "test"})
	content, err := client.Complete(context.Background(), "score things", "title", 0)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != "85" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := llm.NewClient(
		config.LLM{APIKey: "key", BaseURL: server.URL, Model: "test"},
		llm.WithRetryMaxAttempts(3),
		llm.WithRetryBackoff(time.Millisecond, time.Millisecond),
		llm.WithSleeper(func(time.Duration) {}),
	)
	content, err := client.Complete(context.Background(), "sys", "user", 0)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != "ok" {
		t.Fatalf("unexpected content %q", content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := llm.NewClient(
		config.LLM{APIKey: "key", BaseURL: server.URL, Model: "test"},
		llm.WithRetryMaxAttempts(3),
		llm.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Complete(context.Background(), "sys", "user", 0); err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestCompleteRequiresPrompts(t *testing.T) {
	client := llm.NewClient(config.LLM{APIKey: "key"})
	if _, err := client.Complete(context.Background(), "", "user", 0); err == nil {
		t.Fatal("expected error for empty system prompt")
	}
	if _, err := client.Complete(context.Background(), "sys", "", 0); err == nil {
		t.Fatal("expected error for empty user prompt")
	}
}

func TestExtractScore(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    int
		ok      bool
	}{
		{"bare integer", "85", 85, true},
		{"integer in prose", "Relevance: 72 out of 100.", 72, true},
		{"clamped above", "9001", 100, true},
		{"no digits", "highly relevant", 0, false},
		{"empty", "   ", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := llm.ExtractScore(tc.content)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ExtractScore(%q) = %d,%v; want %d,%v", tc.content, got, ok, tc.want, tc.ok)
			}
		})
	}
}
