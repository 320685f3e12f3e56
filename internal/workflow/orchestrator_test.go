package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"draftsmith/internal/queue"
	"draftsmith/internal/services/workspace"
	"draftsmith/internal/store"
	"draftsmith/internal/testsupport"
)

type scriptedOracle struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (o *scriptedOracle) Complete(_ context.Context, _, _ string, _ float64) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.fail != nil {
		return "", o.fail
	}
	return fmt.Sprintf("output %d", o.calls), nil
}

type recordingSink struct {
	mu     sync.Mutex
	drafts []workspace.Draft
	fail   error
}

func (s *recordingSink) CreateDraft(_ context.Context, draft workspace.Draft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.drafts = append(s.drafts, draft)
	return fmt.Sprintf("page-%d", len(s.drafts)), nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *queue.Queue, *recordingSink) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustOpenQueue(t, cfg)
	sink := &recordingSink{}
	o := NewOrchestrator(st, q, &scriptedOracle{}, sink, nil)
	return o, st, q, sink
}

func testInput(itemID string) Input {
	return Input{
		ItemID:   itemID,
		Title:    "Candidate title",
		URL:      "https://example.com/item",
		SourceID: "feed-main",
		Category: "tools",
	}
}

func drainOne(t *testing.T, q *queue.Queue) *queue.Delivery {
	t.Helper()
	deliveries, err := q.Lease(context.Background(), 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("leased %d deliveries, want 1", len(deliveries))
	}
	return deliveries[0]
}

func mustLease(t *testing.T, q *queue.Queue) []*queue.Delivery {
	t.Helper()
	deliveries, err := q.Lease(context.Background(), 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	return deliveries
}

// runToDraftReady drains and processes stage messages until the workflow is
// terminal, returning the finalize kind for replay scenarios.
func runToDraftReady(t *testing.T, o *Orchestrator, q *queue.Queue) queue.Kind {
	t.Helper()
	ctx := context.Background()
	last := queue.KindResearch
	for i := 0; i < 4; i++ {
		delivery := drainOne(t, q)
		last = delivery.Message.Kind
		payload, err := delivery.Message.ItemPayload()
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if err := o.ProcessStep(ctx, last, payload.ItemID); err != nil {
			t.Fatalf("ProcessStep(%s): %v", last, err)
		}
		if err := delivery.Ack(ctx); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
	return last
}

func TestStartCreatesStateAndEnqueuesResearch(t *testing.T) {
	o, _, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	id, err := o.Start(ctx, testInput("item-1"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == "" {
		t.Fatal("empty workflow id")
	}

	state, err := o.Load(ctx, "item-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Status != StatusResearching {
		t.Fatalf("status = %s, want researching", state.Status)
	}
	if state.Revision != 1 {
		t.Fatalf("revision = %d, want 1", state.Revision)
	}

	delivery := drainOne(t, q)
	if delivery.Message.Kind != queue.KindResearch {
		t.Fatalf("enqueued kind = %s, want research", delivery.Message.Kind)
	}
}

func TestStartRejectsExistingWorkflow(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := o.Start(ctx, testInput("item-1"))
	if !errors.Is(err, ErrWorkflowExists) {
		t.Fatalf("second Start error = %v, want ErrWorkflowExists", err)
	}
}

func TestStartRejectsInvalidInput(t *testing.T) {
	o, st, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, Input{ItemID: "item-1"}); err == nil {
		t.Fatal("Start with empty title succeeded")
	}
	if _, _, ok, _ := st.GetRev(ctx, StateKey("item-1")); ok {
		t.Fatal("state written despite validation failure")
	}
}

func TestProcessStepRunsFullPipeline(t *testing.T) {
	o, _, q, sink := newTestOrchestrator(t)
	ctx := context.Background()

	input := testInput("item-1")
	input.Featured = true
	if _, err := o.Start(ctx, input); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 4; i++ {
		delivery := drainOne(t, q)
		payload, err := delivery.Message.ItemPayload()
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if err := o.ProcessStep(ctx, delivery.Message.Kind, payload.ItemID); err != nil {
			t.Fatalf("ProcessStep(%s): %v", delivery.Message.Kind, err)
		}
		if err := delivery.Ack(ctx); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}

	state, err := o.Load(ctx, "item-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Status != StatusDraftReady {
		t.Fatalf("status = %s, want draft_ready", state.Status)
	}
	if state.CompletedAt == nil {
		t.Fatal("completed at not set")
	}
	if state.PageID == "" {
		t.Fatal("page id not recorded")
	}
	for _, stage := range []string{StageResearch, StageStructure, StageFactcheck, StageFinalize} {
		if _, ok := state.Result(stage); !ok {
			t.Errorf("missing result for %s", stage)
		}
	}
	if len(sink.drafts) != 1 {
		t.Fatalf("drafts pushed = %d, want 1", len(sink.drafts))
	}

	kinds := map[queue.Kind]bool{}
	deliveries, err := q.Lease(ctx, 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	for _, d := range deliveries {
		kinds[d.Message.Kind] = true
	}
	if !kinds[queue.KindPublish] {
		t.Error("publish message not enqueued")
	}
	if !kinds[queue.KindCrosspost] {
		t.Error("crosspost message not enqueued for featured input")
	}
}

func TestProcessStepDiscardsStaleReplay(t *testing.T) {
	o, _, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	delivery := drainOne(t, q)
	if err := o.ProcessStep(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("ProcessStep: %v", err)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	before, _ := o.Load(ctx, "item-1")

	// Redelivered research message after the stage already completed.
	if err := o.ProcessStep(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("stale replay returned error: %v", err)
	}
	after, _ := o.Load(ctx, "item-1")
	if after.Status != before.Status || after.Revision != before.Revision {
		t.Fatalf("stale replay mutated state: %s rev %d -> %s rev %d",
			before.Status, before.Revision, after.Status, after.Revision)
	}

	// The structure message is already pending; a stale replay must not have
	// enqueued a duplicate.
	deliveries, err := q.Lease(ctx, 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Message.Kind != queue.KindStructure {
		t.Fatalf("pending deliveries = %d, want exactly one structure message", len(deliveries))
	}
}

func TestProcessStepDiscardsPrematureMessage(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.ProcessStep(ctx, queue.KindFinalize, "item-1"); err != nil {
		t.Fatalf("premature message returned error: %v", err)
	}
	state, _ := o.Load(ctx, "item-1")
	if state.Status != StatusResearching {
		t.Fatalf("status = %s, want researching untouched", state.Status)
	}
}

func TestProcessStepMissingWorkflow(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	err := o.ProcessStep(context.Background(), queue.KindResearch, "ghost")
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestProcessStepOracleFailurePropagates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustOpenQueue(t, cfg)
	oracle := &scriptedOracle{fail: errors.New("oracle down")}
	o := NewOrchestrator(st, q, oracle, &recordingSink{}, nil)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.ProcessStep(ctx, queue.KindResearch, "item-1"); err == nil {
		t.Fatal("oracle failure did not propagate")
	}
	state, _ := o.Load(ctx, "item-1")
	if state.Status != StatusResearching {
		t.Fatalf("status advanced despite failure: %s", state.Status)
	}
}

func TestRevisionConflictDetectsLostUpdate(t *testing.T) {
	o, st, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stale, err := o.Load(ctx, "item-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Another delivery completes the stage first.
	if err := o.ProcessStep(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("ProcessStep: %v", err)
	}

	stale.RecordResult(StageResearch, "late result", stale.StartedAt)
	encoded, _ := stale.Encode()
	err = st.PutRev(ctx, StateKey("item-1"), encoded, stale.Revision, 0)
	if !errors.Is(err, store.ErrRevisionConflict) {
		t.Fatalf("stale write error = %v, want ErrRevisionConflict", err)
	}
}

func TestResumeReenqueuesCurrentStage(t *testing.T) {
	o, _, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	delivery := drainOne(t, q)
	if err := o.ProcessStep(ctx, queue.KindResearch, "item-1"); err != nil {
		t.Fatalf("ProcessStep: %v", err)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	// Consume and drop the structure message to simulate a lost step.
	lost := drainOne(t, q)
	if err := lost.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	status, err := o.Resume(ctx, "item-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if status != StatusStructuring {
		t.Fatalf("resumed status = %s, want structuring", status)
	}
	delivery = drainOne(t, q)
	if delivery.Message.Kind != queue.KindStructure {
		t.Fatalf("resumed kind = %s, want structure", delivery.Message.Kind)
	}
}

func TestResumeRepublishesTerminalWorkflow(t *testing.T) {
	o, _, q, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Start(ctx, testInput("item-1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	finalize := runToDraftReady(t, o, q)

	// Drop the publish message to simulate a loss after the terminal write.
	for _, d := range mustLease(t, q) {
		if err := d.Ack(ctx); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}

	// The redelivered finalize message is a stale replay and enqueues nothing.
	if err := o.ProcessStep(ctx, finalize, "item-1"); err != nil {
		t.Fatalf("redelivered finalize: %v", err)
	}
	if deliveries := mustLease(t, q); len(deliveries) != 0 {
		t.Fatalf("stale finalize enqueued %d messages, want 0", len(deliveries))
	}

	status, err := o.Resume(ctx, "item-1")
	if err != nil {
		t.Fatalf("Resume on terminal workflow: %v", err)
	}
	if status != StatusDraftReady {
		t.Fatalf("resumed status = %s, want draft_ready", status)
	}
	delivery := drainOne(t, q)
	if delivery.Message.Kind != queue.KindPublish {
		t.Fatalf("resumed kind = %s, want publish", delivery.Message.Kind)
	}
}

func TestListReturnsSummaries(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for _, id := range []string{"item-a", "item-b"} {
		if _, err := o.Start(ctx, testInput(id)); err != nil {
			t.Fatalf("Start(%s): %v", id, err)
		}
	}
	summaries, err := o.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
}

// TestStatusProgressionIsMonotonic replays random stage message sequences
// and checks the status ordinal never decreases and never skips a step.
func TestStatusProgressionIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "workflow-prop")
		if err != nil {
			t.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		stagingKinds := []queue.Kind{
			queue.KindResearch, queue.KindStructure, queue.KindFactcheck, queue.KindFinalize,
		}

		st, err := store.OpenPath(filepath.Join(dir, "state.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		defer st.Close()
		q, err := queue.OpenPath(filepath.Join(dir, "queue.db"), 5*time.Minute)
		if err != nil {
			t.Fatalf("open queue: %v", err)
		}
		defer q.Close()

		o := NewOrchestrator(st, q, &scriptedOracle{}, &recordingSink{}, nil)
		ctx := context.Background()
		if _, err := o.Start(ctx, testInput("item-p")); err != nil {
			t.Fatalf("Start: %v", err)
		}

		last := statusOrder[StatusResearching]
		steps := rapid.IntRange(1, 12).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			kind := rapid.SampledFrom(stagingKinds).Draw(t, "kind")
			if err := o.ProcessStep(ctx, kind, "item-p"); err != nil {
				t.Fatalf("ProcessStep(%s): %v", kind, err)
			}
			state, err := o.Load(ctx, "item-p")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			current := statusOrder[state.Status]
			if current < last {
				t.Fatalf("status regressed from ordinal %d to %d", last, current)
			}
			if current > last+1 {
				t.Fatalf("status skipped from ordinal %d to %d", last, current)
			}
			last = current
		}
	})
}
