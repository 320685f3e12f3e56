package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/logging"
	"draftsmith/internal/services"
	"draftsmith/internal/services/llm"
	"draftsmith/internal/services/workspace"
	"draftsmith/internal/sources"
	"draftsmith/internal/store"
	"draftsmith/internal/workflow"
)

// fallbackScore is used when the oracle's reply carries no parseable score.
const fallbackScore = 50

// DedupRecord marks a candidate as seen. Records expire after the configured
// retention window, after which a still-live candidate is rescored.
type DedupRecord struct {
	Title  string    `json:"title"`
	URL    string    `json:"url"`
	Score  int       `json:"score"`
	SeenAt time.Time `json:"seen_at"`
}

// Report summarizes one discovery run. Per-source failures accumulate in
// Errors; they never abort the run.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sources    int       `json:"sources"`
	Seen       int       `json:"seen"`
	Skipped    int       `json:"skipped"`
	Approved   int       `json:"approved"`
	Errors     []string  `json:"errors,omitempty"`
}

// Scorer rates a candidate's editorial interest.
type Scorer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// IntakeSink receives approved candidates; the workspace client satisfies it.
type IntakeSink interface {
	CreateIntake(ctx context.Context, intake workspace.Intake) (string, error)
}

// WorkflowStarter starts the enhancement workflow for an approved item.
type WorkflowStarter interface {
	Start(ctx context.Context, input workflow.Input) (string, error)
}

// AdapterFactory resolves the adapter for a source kind. Tests substitute
// canned adapters here.
type AdapterFactory func(kind string) (sources.Adapter, error)

// Engine runs the dedup and scoring pass over configured sources.
type Engine struct {
	store     *store.Store
	scorer    Scorer
	intake    IntakeSink
	workflows WorkflowStarter
	adapters  AdapterFactory
	cfg       config.Discovery
	logger    *slog.Logger
}

func NewEngine(st *store.Store, scorer Scorer, intake IntakeSink, workflows WorkflowStarter, cfg config.Discovery, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &http.Client{Timeout: 30 * time.Second}
	return &Engine{
		store:     st,
		scorer:    scorer,
		intake:    intake,
		workflows: workflows,
		adapters:  func(kind string) (sources.Adapter, error) { return sources.ForKind(kind, client) },
		cfg:       cfg,
		logger:    logger.With(logging.String(logging.FieldComponent, "discovery")),
	}
}

// WithAdapterFactory overrides adapter construction, primarily for tests.
func (e *Engine) WithAdapterFactory(factory AdapterFactory) *Engine {
	if factory != nil {
		e.adapters = factory
	}
	return e
}

// RunAll sweeps every configured source and persists the resulting report.
func (e *Engine) RunAll(ctx context.Context, srcs []config.SourceConfig) Report {
	return e.run(ctx, srcs)
}

// RunOne sweeps only the sources of a single kind.
func (e *Engine) RunOne(ctx context.Context, kind string, srcs []config.SourceConfig) Report {
	filtered := make([]config.SourceConfig, 0, len(srcs))
	for _, src := range srcs {
		if src.Kind == kind {
			filtered = append(filtered, src)
		}
	}
	return e.run(ctx, filtered)
}

func (e *Engine) run(ctx context.Context, srcs []config.SourceConfig) Report {
	report := Report{StartedAt: time.Now().UTC(), Sources: len(srcs)}
	for _, src := range srcs {
		if err := e.runSource(ctx, src, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", src.ID, err))
			e.logger.Warn("source sweep failed",
				logging.String(logging.FieldSource, src.ID),
				logging.Error(err))
		}
	}
	report.FinishedAt = time.Now().UTC()
	e.persistReport(ctx, report)
	e.logger.Info("discovery run complete",
		logging.Int("sources", report.Sources),
		logging.Int("seen", report.Seen),
		logging.Int("skipped", report.Skipped),
		logging.Int("approved", report.Approved),
		logging.Int("errors", len(report.Errors)))
	return report
}

func (e *Engine) runSource(ctx context.Context, src config.SourceConfig, report *Report) error {
	ctx = services.WithSource(ctx, src.ID)
	adapter, err := e.adapters(src.Kind)
	if err != nil {
		return err
	}
	candidates, err := adapter.Fetch(ctx, src, e.cfg.MaxItemsPerSource)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	for _, candidate := range candidates {
		if err := e.handleCandidate(ctx, src, candidate, report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %q: %v", src.ID, candidate.Title, err))
		}
	}
	return nil
}

// handleCandidate runs dedup, scoring, and admission for one candidate. The
// dedup record is written only after downstream handling succeeded, so a
// failed intake is retried on the next sweep instead of being lost.
func (e *Engine) handleCandidate(ctx context.Context, src config.SourceConfig, candidate sources.Candidate, report *Report) error {
	key := DedupKey(src.Kind, candidate.ExternalID, candidate.URL)
	if _, ok, err := e.store.Get(ctx, key); err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	} else if ok {
		report.Skipped++
		return nil
	}
	report.Seen++

	score, err := e.score(ctx, src, candidate)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	if score > src.MinScore {
		if err := e.admit(ctx, src, candidate, score); err != nil {
			return err
		}
		report.Approved++
	}

	record := DedupRecord{
		Title:  candidate.Title,
		URL:    candidate.URL,
		Score:  score,
		SeenAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode dedup record: %w", err)
	}
	ttl := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
	if err := e.store.Put(ctx, key, string(encoded), ttl); err != nil {
		return fmt.Errorf("persist dedup record: %w", err)
	}
	return nil
}

const scoringSystemPrompt = "You rate how interesting a content item is to a technology " +
	"publication's readers. Reply with a single integer from 0 to 100 and nothing else."

func (e *Engine) score(ctx context.Context, src config.SourceConfig, candidate sources.Candidate) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n", candidate.Title, candidate.URL)
	if candidate.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", candidate.Description)
	}
	if src.Category != "" {
		fmt.Fprintf(&b, "Target category: %s\n", src.Category)
	}

	reply, err := e.scorer.Complete(ctx, scoringSystemPrompt, b.String(), 0.0)
	if err != nil {
		return 0, err
	}
	score, ok := llm.ExtractScore(reply)
	if !ok {
		logging.WithContext(ctx, e.logger).Warn("unparseable score, using fallback",
			logging.String("reply", reply))
		return fallbackScore, nil
	}
	return score, nil
}

func (e *Engine) admit(ctx context.Context, src config.SourceConfig, candidate sources.Candidate, score int) error {
	itemID := ItemID(src.Kind, candidate.ExternalID, candidate.URL)
	if _, err := e.intake.CreateIntake(ctx, workspace.Intake{
		ItemID:   itemID,
		Title:    candidate.Title,
		URL:      candidate.URL,
		Score:    score,
		SourceID: src.ID,
		Category: src.Category,
		Section:  src.Section,
		Tags:     src.Tags,
	}); err != nil {
		return fmt.Errorf("create intake: %w", err)
	}
	if _, err := e.workflows.Start(ctx, workflow.Input{
		ItemID:      itemID,
		Title:       candidate.Title,
		URL:         candidate.URL,
		Description: candidate.Description,
		SourceID:    src.ID,
		Category:    src.Category,
		Section:     src.Section,
		Tags:        src.Tags,
		Featured:    src.Featured,
	}); err != nil && !errors.Is(err, workflow.ErrWorkflowExists) {
		// An existing workflow means a prior sweep approved this item and
		// failed before writing its dedup record; resuming dedup is enough.
		return fmt.Errorf("start workflow: %w", err)
	}
	logging.WithContext(ctx, e.logger).Info("candidate approved",
		logging.String(logging.FieldItemID, itemID),
		logging.Int("score", score))
	return nil
}

func (e *Engine) persistReport(ctx context.Context, report Report) {
	encoded, err := json.Marshal(report)
	if err != nil {
		e.logger.Warn("encode report failed", logging.Error(err))
		return
	}
	if err := e.store.Put(ctx, reportKey, string(encoded), 0); err != nil {
		e.logger.Warn("persist report failed", logging.Error(err))
	}
}

// LastReport loads the most recent discovery report.
func (e *Engine) LastReport(ctx context.Context) (Report, bool, error) {
	value, ok, err := e.store.Get(ctx, reportKey)
	if err != nil || !ok {
		return Report{}, false, err
	}
	var report Report
	if err := json.Unmarshal([]byte(value), &report); err != nil {
		return Report{}, false, fmt.Errorf("decode report: %w", err)
	}
	return report, true, nil
}
