package dispatch

import (
	"context"
	"log/slog"
	"time"

	"draftsmith/internal/logging"
	"draftsmith/internal/queue"
	"draftsmith/internal/services"
)

// Handler processes one delivered message. A nil return acknowledges the
// message; an error schedules a retry.
type Handler func(ctx context.Context, msg queue.Message) error

// Dispatcher routes leased deliveries to handlers by message kind. A failed
// or conflicted handler retries after the configured delay; one message's
// failure never blocks its batch siblings.
type Dispatcher struct {
	queue      *queue.Queue
	handlers   map[queue.Kind]Handler
	retryDelay time.Duration
	logger     *slog.Logger
}

func New(q *queue.Queue, retryDelay time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	return &Dispatcher{
		queue:      q,
		handlers:   make(map[queue.Kind]Handler),
		retryDelay: retryDelay,
		logger:     logger.With(logging.String(logging.FieldComponent, "dispatch")),
	}
}

// Register binds a handler to a message kind. Later registrations replace
// earlier ones.
func (d *Dispatcher) Register(kind queue.Kind, handler Handler) {
	d.handlers[kind] = handler
}

// ProcessBatch leases up to limit messages and dispatches each. It returns
// the number of leased messages so pollers can idle when the queue is empty.
func (d *Dispatcher) ProcessBatch(ctx context.Context, limit int) (int, error) {
	deliveries, err := d.queue.Lease(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, delivery := range deliveries {
		d.dispatch(ctx, delivery)
	}
	return len(deliveries), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, delivery *queue.Delivery) {
	logger := d.logger.With(
		logging.String(logging.FieldKind, string(delivery.Message.Kind)),
		logging.Int("message_id", int(delivery.ID)),
		logging.Int("attempts", delivery.Attempts))

	handler, ok := d.handlers[delivery.Message.Kind]
	if !ok {
		// Unknown kinds are acknowledged so a newer producer cannot wedge
		// an older consumer's queue.
		logger.Warn("no handler for kind, acknowledging")
		if err := delivery.Ack(ctx); err != nil {
			logger.Error("ack failed", logging.Error(err))
		}
		return
	}

	if err := handler(ctx, delivery.Message); err != nil {
		if !services.Retryable(err) {
			// Validation, configuration, and not-found failures are
			// deterministic; redelivering them only poisons the queue.
			logger.Warn("handler failed, dropping non-retryable message", logging.Error(err))
			if ackErr := delivery.Ack(ctx); ackErr != nil {
				logger.Error("ack failed", logging.Error(ackErr))
			}
			return
		}
		logger.Warn("handler failed, scheduling retry",
			logging.Error(err),
			logging.String("retry_in", d.retryDelay.String()))
		if retryErr := delivery.Retry(ctx, d.retryDelay); retryErr != nil {
			logger.Error("retry scheduling failed", logging.Error(retryErr))
		}
		return
	}
	if err := delivery.Ack(ctx); err != nil {
		logger.Error("ack failed", logging.Error(err))
	}
}
