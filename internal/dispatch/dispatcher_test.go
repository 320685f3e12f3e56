package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"draftsmith/internal/queue"
	"draftsmith/internal/services"
	"draftsmith/internal/testsupport"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *queue.Queue) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	return New(q, time.Second, nil), q
}

func TestSuccessfulHandlerAcks(t *testing.T) {
	d, q := newTestDispatcher(t)
	ctx := context.Background()

	handled := 0
	d.Register(queue.KindResearch, func(context.Context, queue.Message) error {
		handled++
		return nil
	})
	if err := q.SendItem(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	n, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 1 || handled != 1 {
		t.Fatalf("leased=%d handled=%d, want 1/1", n, handled)
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d after ack, want 0", pending)
	}
}

func TestFailedHandlerRetriesAfterDelay(t *testing.T) {
	d, q := newTestDispatcher(t)
	ctx := context.Background()

	attempts := 0
	d.Register(queue.KindPublish, func(context.Context, queue.Message) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("downstream 502")
		}
		return nil
	})
	if err := q.SendItem(ctx, queue.KindPublish, "item-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d after first batch", attempts)
	}

	// Message invisible until the retry delay elapses.
	n, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("immediate batch: %v", err)
	}
	if n != 0 {
		t.Fatalf("leased %d before retry delay, want 0", n)
	}

	time.Sleep(1100 * time.Millisecond)
	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatalf("retry batch: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d after retry, want 2", attempts)
	}
}

func TestNonRetryableFailureIsDropped(t *testing.T) {
	d, q := newTestDispatcher(t)
	ctx := context.Background()

	attempts := 0
	d.Register(queue.KindResearch, func(context.Context, queue.Message) error {
		attempts++
		return services.Wrap(services.ErrValidation, "dispatch", "research", "undecodable payload", nil)
	})
	if err := q.SendItem(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}

	// A deterministic failure is acked, not redelivered after the delay.
	time.Sleep(1100 * time.Millisecond)
	n, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if n != 0 || attempts != 1 {
		t.Fatalf("leased=%d attempts=%d after delay, want 0/1", n, attempts)
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, want 0 (validation failure dropped)", pending)
	}
}

func TestOneFailureDoesNotBlockSiblings(t *testing.T) {
	d, q := newTestDispatcher(t)
	ctx := context.Background()

	var succeeded []string
	d.Register(queue.KindResearch, func(_ context.Context, msg queue.Message) error {
		payload, err := msg.ItemPayload()
		if err != nil {
			return err
		}
		if payload.ItemID == "bad" {
			return fmt.Errorf("boom")
		}
		succeeded = append(succeeded, payload.ItemID)
		return nil
	})
	for _, id := range []string{"good-1", "bad", "good-2"} {
		if err := q.SendItem(ctx, queue.KindResearch, id); err != nil {
			t.Fatalf("send %s: %v", id, err)
		}
	}

	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(succeeded) != 2 {
		t.Fatalf("succeeded = %v, want both good items", succeeded)
	}
}

func TestUnknownKindIsAcked(t *testing.T) {
	d, q := newTestDispatcher(t)
	ctx := context.Background()

	// No handler registered for refresh.
	if err := q.SendItem(ctx, queue.KindRefresh, "item-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, want 0 (unhandled kind acked)", pending)
	}
}

func TestEmptyQueueReturnsZero(t *testing.T) {
	d, _ := newTestDispatcher(t)
	n, err := d.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 0 {
		t.Fatalf("leased = %d on empty queue", n)
	}
}
