package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"draftsmith/internal/logging"
	"draftsmith/internal/queue"
	"draftsmith/internal/store"
	"draftsmith/internal/workflow"
)

// PageUpdater is the slice of the workspace client the publish side needs.
type PageUpdater interface {
	MarkPublished(ctx context.Context, pageID string) error
	Touch(ctx context.Context, pageID string) error
}

// WorkflowLoader loads workflow state; the orchestrator satisfies it.
type WorkflowLoader interface {
	Load(ctx context.Context, itemID string) (*workflow.State, error)
}

// Service owns the publish-side queue handlers and the scheduled sweeps.
type Service struct {
	store      *store.Store
	queue      *queue.Queue
	workspace  PageUpdater
	workflows  WorkflowLoader
	announcer  Announcer
	newsletter DigestSender
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewService(
	st *store.Store,
	q *queue.Queue,
	ws PageUpdater,
	workflows WorkflowLoader,
	announcer Announcer,
	newsletter DigestSender,
	staleAfter time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * 24 * time.Hour
	}
	return &Service{
		store:      st,
		queue:      q,
		workspace:  ws,
		workflows:  workflows,
		announcer:  announcer,
		newsletter: newsletter,
		staleAfter: staleAfter,
		logger:     logger.With(logging.String(logging.FieldComponent, "publish")),
	}
}

// HandlePublish marks a completed workflow's page published and records the
// item for the digest and staleness sweeps. Re-publishing an already
// recorded item is a no-op so redeliveries stay idempotent.
func (s *Service) HandlePublish(ctx context.Context, msg queue.Message) error {
	payload, err := msg.ItemPayload()
	if err != nil {
		return err
	}
	if _, ok, err := loadRecord(ctx, s.store, payload.ItemID); err != nil {
		return err
	} else if ok {
		s.logger.Info("item already published",
			logging.String(logging.FieldItemID, payload.ItemID))
		return nil
	}

	state, err := s.workflows.Load(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if !state.Status.Terminal() {
		return fmt.Errorf("workflow for %s not complete (status %s)", payload.ItemID, state.Status)
	}
	if state.PageID == "" {
		return errors.New("workflow has no workspace page")
	}
	if err := s.workspace.MarkPublished(ctx, state.PageID); err != nil {
		return err
	}
	if err := saveRecord(ctx, s.store, PublishedRecord{
		ItemID:      payload.ItemID,
		PageID:      state.PageID,
		Title:       state.Input.Title,
		URL:         state.Input.URL,
		PublishedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	s.logger.Info("item published",
		logging.String(logging.FieldItemID, payload.ItemID),
		logging.String("page_id", state.PageID))
	return nil
}

// HandleCrosspost announces a featured draft on the social endpoint.
func (s *Service) HandleCrosspost(ctx context.Context, msg queue.Message) error {
	payload, err := msg.ItemPayload()
	if err != nil {
		return err
	}
	state, err := s.workflows.Load(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if err := s.announcer.Announce(ctx, state.Input.Title, state.Input.URL); err != nil {
		return err
	}
	s.logger.Info("item crossposted",
		logging.String(logging.FieldItemID, payload.ItemID))
	return nil
}

// HandleRefresh re-touches a stale published item's workspace page.
func (s *Service) HandleRefresh(ctx context.Context, msg queue.Message) error {
	payload, err := msg.ItemPayload()
	if err != nil {
		return err
	}
	record, ok, err := loadRecord(ctx, s.store, payload.ItemID)
	if err != nil {
		return err
	}
	if !ok {
		// Published record gone; nothing left to refresh.
		s.logger.Warn("refresh for unknown item",
			logging.String(logging.FieldItemID, payload.ItemID))
		return nil
	}
	if err := s.workspace.Touch(ctx, record.PageID); err != nil {
		return err
	}
	record.RefreshedAt = time.Now().UTC()
	if err := saveRecord(ctx, s.store, record); err != nil {
		return err
	}
	s.logger.Info("item refreshed",
		logging.String(logging.FieldItemID, payload.ItemID))
	return nil
}

// SweepStale enqueues refresh messages for published items whose last touch
// is older than the staleness window. Returns the number enqueued.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	records, err := listRecords(ctx, s.store)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-s.staleAfter)
	enqueued := 0
	for _, record := range records {
		last := record.PublishedAt
		if record.RefreshedAt.After(last) {
			last = record.RefreshedAt
		}
		if last.After(cutoff) {
			continue
		}
		if err := s.queue.SendItem(ctx, queue.KindRefresh, record.ItemID); err != nil {
			return enqueued, fmt.Errorf("enqueue refresh for %s: %w", record.ItemID, err)
		}
		enqueued++
	}
	if enqueued > 0 {
		s.logger.Info("stale sweep complete", logging.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

// SendWeeklyDigest sends the newsletter covering the past week's published
// items. An empty week sends nothing.
func (s *Service) SendWeeklyDigest(ctx context.Context) (int, error) {
	records, err := listRecords(ctx, s.store)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	recent := make([]PublishedRecord, 0, len(records))
	for _, record := range records {
		if record.PublishedAt.After(cutoff) {
			recent = append(recent, record)
		}
	}
	if len(recent) == 0 {
		return 0, nil
	}
	if err := s.newsletter.SendDigest(ctx, recent); err != nil {
		return 0, err
	}
	s.logger.Info("digest sent", logging.Int("items", len(recent)))
	return len(recent), nil
}
