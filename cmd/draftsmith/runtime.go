package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/discovery"
	"draftsmith/internal/dispatch"
	"draftsmith/internal/logging"
	"draftsmith/internal/publish"
	"draftsmith/internal/queue"
	"draftsmith/internal/services"
	"draftsmith/internal/services/llm"
	"draftsmith/internal/services/workspace"
	"draftsmith/internal/store"
	"draftsmith/internal/workflow"
)

// runtime bundles the wired pipeline components a command needs.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	queue        *queue.Queue
	oracle       *llm.Client
	workspace    *workspace.Client
	orchestrator *workflow.Orchestrator
	engine       *discovery.Engine
	publisher    *publish.Service
	dispatcher   *dispatch.Dispatcher
}

func newRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	q, err := queue.Open(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}

	oracle := llm.NewClient(cfg.LLM)
	ws := workspace.NewClient(cfg.Workspace)
	orchestrator := workflow.NewOrchestrator(st, q, oracle, ws, logger)
	engine := discovery.NewEngine(st, oracle, ws, orchestrator, cfg.Discovery, logger)

	staleAfter := time.Duration(cfg.Workflow.StaleAfterDays) * 24 * time.Hour
	publisher := publish.NewService(
		st, q, ws, orchestrator,
		publish.NewAnnouncer(cfg.Crosspost),
		publish.NewDigestSender(cfg.Newsletter),
		staleAfter, logger,
	)

	retryDelay := time.Duration(cfg.Workflow.RetryDelaySeconds) * time.Second
	dispatcher := dispatch.New(q, retryDelay, logger)
	registerHandlers(dispatcher, orchestrator, publisher)

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		queue:        q,
		oracle:       oracle,
		workspace:    ws,
		orchestrator: orchestrator,
		engine:       engine,
		publisher:    publisher,
		dispatcher:   dispatcher,
	}, nil
}

func (r *runtime) Close() {
	_ = r.queue.Close()
	_ = r.store.Close()
}

func registerHandlers(d *dispatch.Dispatcher, o *workflow.Orchestrator, p *publish.Service) {
	stepHandler := func(kind queue.Kind) dispatch.Handler {
		return func(ctx context.Context, msg queue.Message) error {
			payload, err := msg.ItemPayload()
			if err != nil {
				return services.Wrap(services.ErrValidation, "dispatch", string(kind), "undecodable payload", err)
			}
			return o.ProcessStep(ctx, kind, payload.ItemID)
		}
	}
	for _, kind := range []queue.Kind{
		queue.KindResearch, queue.KindStructure, queue.KindFactcheck, queue.KindFinalize,
	} {
		d.Register(kind, stepHandler(kind))
	}
	d.Register(queue.KindPublish, p.HandlePublish)
	d.Register(queue.KindCrosspost, p.HandleCrosspost)
	d.Register(queue.KindRefresh, p.HandleRefresh)
}

func newCommandLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}
