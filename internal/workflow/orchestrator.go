package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"draftsmith/internal/logging"
	"draftsmith/internal/queue"
	"draftsmith/internal/services"
	"draftsmith/internal/services/workspace"
	"draftsmith/internal/store"
)

var (
	// ErrWorkflowExists is returned by Start when the item already has a
	// workflow; restarting requires operator intervention, not a silent reset.
	ErrWorkflowExists = errors.New("workflow already exists for item")

	// ErrWorkflowNotFound distinguishes a missing workflow from a stage
	// mismatch when processing a step. It carries the not-found marker so
	// the dispatcher drops a message for it instead of retrying forever.
	ErrWorkflowNotFound = fmt.Errorf("%w: workflow not found", services.ErrNotFound)
)

// Oracle produces generative text for stage work.
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// DraftSink receives finished drafts; the workspace client satisfies it.
type DraftSink interface {
	CreateDraft(ctx context.Context, draft workspace.Draft) (string, error)
}

// Orchestrator drives workflows through the enhancement stages. All state
// changes go through revision-conditional puts so concurrent deliveries for
// the same workflow cannot clobber each other.
type Orchestrator struct {
	store  *store.Store
	queue  *queue.Queue
	oracle Oracle
	drafts DraftSink
	logger *slog.Logger
}

func NewOrchestrator(st *store.Store, q *queue.Queue, oracle Oracle, drafts DraftSink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:  st,
		queue:  q,
		oracle: oracle,
		drafts: drafts,
		logger: logger.With(logging.String(logging.FieldComponent, "workflow")),
	}
}

// Start creates a workflow at the researching status and enqueues its first
// stage. An existing workflow for the item is rejected, never overwritten.
func (o *Orchestrator) Start(ctx context.Context, input Input) (string, error) {
	if err := input.Validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, "workflow", "start", err.Error(), nil)
	}

	state := &State{
		ID:        uuid.NewString(),
		Input:     input,
		Status:    StatusResearching,
		StartedAt: time.Now().UTC(),
	}
	encoded, err := state.Encode()
	if err != nil {
		return "", err
	}
	if err := o.store.PutRev(ctx, StateKey(input.ItemID), encoded, 0, 0); err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			return "", fmt.Errorf("%w: %s", ErrWorkflowExists, input.ItemID)
		}
		return "", fmt.Errorf("persist workflow: %w", err)
	}
	if err := o.queue.SendItem(ctx, queue.KindResearch, input.ItemID); err != nil {
		return "", fmt.Errorf("enqueue research: %w", err)
	}

	o.logger.Info("workflow started",
		logging.String(logging.FieldItemID, input.ItemID),
		logging.String("workflow_id", state.ID),
		logging.String(logging.FieldSource, input.SourceID))
	return state.ID, nil
}

// Load returns the workflow state for an item.
func (o *Orchestrator) Load(ctx context.Context, itemID string) (*State, error) {
	value, revision, ok, err := o.store.GetRev(ctx, StateKey(itemID))
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, itemID)
	}
	return DecodeState(value, revision)
}

// ProcessStep handles one enhancement message. Replays of completed stages
// and premature future-stage messages are discarded without touching state;
// only a message matching the current status performs work.
func (o *Orchestrator) ProcessStep(ctx context.Context, kind queue.Kind, itemID string) error {
	expected, ok := statusForKind[kind]
	if !ok {
		return services.Wrap(services.ErrValidation, "workflow", "process step", fmt.Sprintf("kind %q is not an enhancement stage", kind), nil)
	}
	ctx = services.WithItemID(ctx, itemID)
	ctx = services.WithStage(ctx, string(kind))
	state, err := o.Load(ctx, itemID)
	if err != nil {
		return err
	}

	logger := logging.WithContext(ctx, o.logger)

	current := statusOrder[state.Status]
	target := statusOrder[expected]
	switch {
	case current > target:
		logger.Info("discarding stale stage message",
			logging.String("status", string(state.Status)))
		return nil
	case current < target:
		logger.Warn("discarding premature stage message",
			logging.String("status", string(state.Status)))
		return nil
	}

	stage := stageForKind[kind]
	system, user, err := stagePrompt(stage, state)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "build prompt", err.Error(), nil)
	}
	output, err := o.oracle.Complete(ctx, system, user, stageTemperature(stage))
	if err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	state.RecordResult(stage, output, time.Now())

	if stage == StageFinalize {
		return o.finish(ctx, state, logger)
	}

	if err := state.Advance(); err != nil {
		return err
	}
	if err := o.persist(ctx, state); err != nil {
		return err
	}
	next := kindForStatus[state.Status]
	if err := o.queue.SendItem(ctx, next, itemID); err != nil {
		return fmt.Errorf("enqueue %s: %w", next, err)
	}
	logger.Info("stage complete", logging.String("next_status", string(state.Status)))
	return nil
}

// finish pushes the draft to the workspace, marks the workflow terminal, and
// enqueues the publish-side work.
func (o *Orchestrator) finish(ctx context.Context, state *State, logger *slog.Logger) error {
	body, _ := state.Result(StageFinalize)
	pageID, err := o.drafts.CreateDraft(ctx, workspace.Draft{
		ItemID:   state.Input.ItemID,
		Title:    state.Input.Title,
		Category: state.Input.Category,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("push draft: %w", err)
	}
	state.PageID = pageID
	if err := state.Advance(); err != nil {
		return err
	}
	now := time.Now().UTC()
	state.CompletedAt = &now
	if err := o.persist(ctx, state); err != nil {
		return err
	}

	if err := o.queue.SendItem(ctx, queue.KindPublish, state.Input.ItemID); err != nil {
		return fmt.Errorf("enqueue publish: %w", err)
	}
	if state.Input.Featured {
		if err := o.queue.SendItem(ctx, queue.KindCrosspost, state.Input.ItemID); err != nil {
			return fmt.Errorf("enqueue crosspost: %w", err)
		}
	}
	logger.Info("workflow complete", logging.String("page_id", pageID))
	return nil
}

// persist writes the state conditionally on the revision it was loaded at.
// A conflict means another delivery won the race; the caller's retry will
// re-read fresh state.
func (o *Orchestrator) persist(ctx context.Context, state *State) error {
	encoded, err := state.Encode()
	if err != nil {
		return err
	}
	if err := o.store.PutRev(ctx, StateKey(state.Input.ItemID), encoded, state.Revision, 0); err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			return services.Wrap(services.ErrTransient, "workflow", "persist", "concurrent update, retry against fresh state", err)
		}
		return fmt.Errorf("persist workflow: %w", err)
	}
	state.Revision++
	return nil
}

// Resume re-enqueues the message for a workflow's current status. Recovery
// path for workflows whose next message was lost to a stale-replay discard.
// A terminal workflow resumes by re-emitting its publish message, which
// covers a loss between the terminal write and the publish enqueue.
func (o *Orchestrator) Resume(ctx context.Context, itemID string) (Status, error) {
	state, err := o.Load(ctx, itemID)
	if err != nil {
		return "", err
	}
	if state.Status.Terminal() {
		// Publish handling is idempotent, so re-emitting is safe even when
		// the record already exists.
		if err := o.queue.SendItem(ctx, queue.KindPublish, itemID); err != nil {
			return "", fmt.Errorf("enqueue %s: %w", queue.KindPublish, err)
		}
		o.logger.Info("workflow resumed",
			logging.String(logging.FieldItemID, itemID),
			logging.String(logging.FieldStage, string(queue.KindPublish)))
		return state.Status, nil
	}
	kind := kindForStatus[state.Status]
	if err := o.queue.SendItem(ctx, kind, itemID); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	o.logger.Info("workflow resumed",
		logging.String(logging.FieldItemID, itemID),
		logging.String(logging.FieldStage, string(kind)))
	return state.Status, nil
}

// Summary is the listing shape the CLI renders.
type Summary struct {
	ItemID      string
	Title       string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
}

// List returns summaries for every stored workflow.
func (o *Orchestrator) List(ctx context.Context) ([]Summary, error) {
	keys, err := o.store.List(ctx, "workflow/")
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		value, revision, ok, err := o.store.GetRev(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if !ok {
			continue
		}
		state, err := DecodeState(value, revision)
		if err != nil {
			o.logger.Warn("skipping undecodable workflow", logging.String("key", key), logging.Error(err))
			continue
		}
		summaries = append(summaries, Summary{
			ItemID:      state.Input.ItemID,
			Title:       state.Input.Title,
			Status:      state.Status,
			StartedAt:   state.StartedAt,
			CompletedAt: state.CompletedAt,
		})
	}
	return summaries, nil
}
