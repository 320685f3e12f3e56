package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"draftsmith/internal/config"
	"draftsmith/internal/discovery"
	"draftsmith/internal/dispatch"
	"draftsmith/internal/logging"
	"draftsmith/internal/publish"
	"draftsmith/internal/queue"
	"draftsmith/internal/store"
)

// Daemon coordinates the background loops and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg        *config.Config
	store      *store.Store
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	discovery  *discovery.Engine
	publisher  *publish.Service
	sources    []config.SourceConfig
	logger     *slog.Logger

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(
	cfg *config.Config,
	st *store.Store,
	q *queue.Queue,
	dispatcher *dispatch.Dispatcher,
	engine *discovery.Engine,
	publisher *publish.Service,
	srcs []config.SourceConfig,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || st == nil || q == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, queue, and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "draftsmithd.lock")
	return &Daemon{
		cfg:        cfg,
		store:      st,
		queue:      q,
		dispatcher: dispatcher,
		discovery:  engine,
		publisher:  publisher,
		sources:    srcs,
		logger:     logger.With(logging.String(logging.FieldComponent, "daemon")),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another draftsmith daemon holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)

	d.spawn(func() { d.pollLoop(runCtx) })
	if d.discovery != nil && len(d.sources) > 0 {
		d.spawn(func() { d.discoveryLoop(runCtx) })
	}
	if d.publisher != nil {
		d.spawn(func() { d.scheduleLoop(runCtx) })
	}

	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels the loops, waits for them, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes its databases.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Running reports whether the loops are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) spawn(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// pollLoop drains the queue in batches, idling on the poll interval when the
// queue is empty and backing off on lease errors.
func (d *Daemon) pollLoop(ctx context.Context) {
	poll := time.Duration(d.cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	errorWait := time.Duration(d.cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorWait <= 0 {
		errorWait = 30 * time.Second
	}
	batch := d.cfg.Workflow.BatchSize
	if batch <= 0 {
		batch = 10
	}

	for {
		n, err := d.dispatcher.ProcessBatch(ctx, batch)
		wait := poll
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("queue poll failed", logging.Error(err))
			wait = errorWait
		case n > 0:
			// More work may be pending; lease again immediately.
			wait = 0
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		} else if ctx.Err() != nil {
			return
		}
	}
}

func (d *Daemon) discoveryLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Discovery.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	d.runDue(ctx, "schedule/discovery", interval, func(ctx context.Context) error {
		report := d.discovery.RunAll(ctx, d.sources)
		if len(report.Errors) > 0 {
			d.logger.Warn("discovery finished with errors",
				logging.Int("errors", len(report.Errors)))
		}
		return nil
	})
}

// scheduleLoop drives the low-frequency publish-side jobs: the weekly digest
// and the monthly staleness sweep.
func (d *Daemon) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		d.maybeRun(ctx, "schedule/newsletter", 7*24*time.Hour, func(ctx context.Context) error {
			_, err := d.publisher.SendWeeklyDigest(ctx)
			return err
		})
		staleInterval := time.Duration(d.cfg.Workflow.StaleAfterDays) * 24 * time.Hour
		if staleInterval <= 0 {
			staleInterval = 30 * 24 * time.Hour
		}
		d.maybeRun(ctx, "schedule/stale-sweep", staleInterval, func(ctx context.Context) error {
			_, err := d.publisher.SweepStale(ctx)
			return err
		})
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runDue runs fn on a fixed interval, skipping the initial run when a
// persisted stamp shows it ran recently.
func (d *Daemon) runDue(ctx context.Context, stampKey string, interval time.Duration, fn func(context.Context) error) {
	for {
		d.maybeRun(ctx, stampKey, interval, fn)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval / 4):
		}
	}
}

// maybeRun runs fn when the persisted stamp for the job is older than the
// interval, then refreshes the stamp. Stamps survive restarts so a bouncing
// daemon cannot re-trigger a weekly job.
func (d *Daemon) maybeRun(ctx context.Context, stampKey string, interval time.Duration, fn func(context.Context) error) {
	value, ok, err := d.store.Get(ctx, stampKey)
	if err != nil {
		d.logger.Warn("read schedule stamp failed",
			logging.String("key", stampKey), logging.Error(err))
		return
	}
	if ok {
		last, err := time.Parse(time.RFC3339, value)
		if err == nil && time.Since(last) < interval {
			return
		}
	}
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("scheduled job failed",
			logging.String("key", stampKey), logging.Error(err))
		return
	}
	if err := d.store.Put(ctx, stampKey, time.Now().UTC().Format(time.RFC3339), 0); err != nil {
		d.logger.Warn("write schedule stamp failed",
			logging.String("key", stampKey), logging.Error(err))
	}
}
