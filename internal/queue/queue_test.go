package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"draftsmith/internal/queue"
)

func openQueue(t *testing.T, lease time.Duration) *queue.Queue {
	t.Helper()
	q, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"), lease)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestSendAndLease(t *testing.T) {
	q := openQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.SendItem(ctx, queue.KindResearch, "abc"); err != nil {
		t.Fatalf("SendItem: %v", err)
	}

	deliveries, err := q.Lease(ctx, 10)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.Message.Kind != queue.KindResearch {
		t.Fatalf("unexpected kind %q", d.Message.Kind)
	}
	payload, err := d.Message.ItemPayload()
	if err != nil {
		t.Fatalf("ItemPayload: %v", err)
	}
	if payload.ItemID != "abc" {
		t.Fatalf("unexpected item id %q", payload.ItemID)
	}
}

func TestLeasedMessageInvisibleUntilLeaseExpires(t *testing.T) {
	q := openQueue(t, time.Hour)
	ctx := context.Background()

	if err := q.SendItem(ctx, queue.KindPublish, "abc"); err != nil {
		t.Fatalf("SendItem: %v", err)
	}
	first, err := q.Lease(ctx, 10)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(first))
	}

	second, err := q.Lease(ctx, 10)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected leased message to be invisible, got %d deliveries", len(second))
	}
}

func TestAckRemovesMessage(t *testing.T) {
	q := openQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.SendItem(ctx, queue.KindCrosspost, "abc"); err != nil {
		t.Fatalf("SendItem: %v", err)
	}
	deliveries, err := q.Lease(ctx, 1)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if err := deliveries[0].Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected empty queue after ack, got %d", pending)
	}
}

func TestRetrySchedulesRedelivery(t *testing.T) {
	q := openQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.SendItem(ctx, queue.KindRefresh, "abc"); err != nil {
		t.Fatalf("SendItem: %v", err)
	}
	deliveries, err := q.Lease(ctx, 1)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if err := deliveries[0].Retry(ctx, 0); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	again, err := q.Lease(ctx, 1)
	if err != nil {
		t.Fatalf("Lease after retry: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("expected redelivery, got %d", len(again))
	}
	if again[0].Attempts < 2 {
		t.Fatalf("expected attempt counter to grow, got %d", again[0].Attempts)
	}
}

func TestRetryWithDelayIsNotImmediatelyDeliverable(t *testing.T) {
	q := openQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.SendItem(ctx, queue.KindFinalize, "abc"); err != nil {
		t.Fatalf("SendItem: %v", err)
	}
	deliveries, err := q.Lease(ctx, 1)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if err := deliveries[0].Retry(ctx, time.Hour); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	again, err := q.Lease(ctx, 1)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected delayed message to stay invisible, got %d", len(again))
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected message retained for later delivery, got %d", pending)
	}
}

func TestSendRejectsUnknownKind(t *testing.T) {
	q := openQueue(t, time.Minute)
	msg := queue.Message{Kind: queue.Kind("mystery"), Payload: []byte(`{"item_id":"x"}`)}
	if err := q.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := queue.ParseKind(" Research "); !ok || kind != queue.KindResearch {
		t.Fatalf("expected research kind, got %q ok=%v", kind, ok)
	}
	if _, ok := queue.ParseKind("unknown"); ok {
		t.Fatal("expected unknown kind to fail parsing")
	}
}
