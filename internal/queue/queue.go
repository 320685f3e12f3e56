package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"draftsmith/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Queue is a durable at-least-once message queue backed by SQLite. Messages
// are leased to a consumer for a bounded window; an unresolved lease expires
// and the message becomes deliverable again.
type Queue struct {
	db    *sql.DB
	path  string
	lease time.Duration
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (q *Queue) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = q.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Queue, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	lease := time.Duration(cfg.Workflow.LeaseSeconds) * time.Second
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "queue.db"), lease)
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(dbPath string, lease time.Duration) (*Queue, error) {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	q := &Queue{db: db, path: dbPath, lease: lease}
	if err := q.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) initSchema(ctx context.Context) error {
	var tableExists int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := q.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to recreate)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// Path returns the database file location.
func (q *Queue) Path() string {
	if q == nil {
		return ""
	}
	return q.path
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Send enqueues a typed message for immediate delivery.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	if !msg.Kind.Known() {
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	if len(msg.Payload) == 0 {
		return errors.New("message payload must not be empty")
	}
	now := time.Now().UTC()
	if _, err := q.execWithRetry(
		ctx,
		`INSERT INTO queue_messages (kind, payload, attempts, available_at, created_at)
         VALUES (?, ?, 0, ?, ?)`,
		string(msg.Kind),
		string(msg.Payload),
		now.Unix(),
		now.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// SendItem is a convenience for the common single-identifier payload.
func (q *Queue) SendItem(ctx context.Context, kind Kind, itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return errors.New("item id must not be empty")
	}
	msg, err := NewMessage(kind, ItemPayload{ItemID: itemID})
	if err != nil {
		return err
	}
	return q.Send(ctx, msg)
}

// Delivery is a leased message awaiting exactly one resolution: Ack or Retry.
type Delivery struct {
	ID       int64
	Message  Message
	Attempts int

	queue *Queue
}

// Ack removes the message from the queue.
func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.queue == nil {
		return errors.New("delivery not bound to a queue")
	}
	if _, err := d.queue.execWithRetry(ctx, `DELETE FROM queue_messages WHERE id = ?`, d.ID); err != nil {
		return fmt.Errorf("ack message %d: %w", d.ID, err)
	}
	return nil
}

// Retry schedules redelivery after the supplied delay and releases the lease.
func (d *Delivery) Retry(ctx context.Context, delay time.Duration) error {
	if d == nil || d.queue == nil {
		return errors.New("delivery not bound to a queue")
	}
	if delay < 0 {
		delay = 0
	}
	if _, err := d.queue.execWithRetry(
		ctx,
		`UPDATE queue_messages SET available_at = ?, leased_until = NULL WHERE id = ?`,
		time.Now().Add(delay).Unix(),
		d.ID,
	); err != nil {
		return fmt.Errorf("retry message %d: %w", d.ID, err)
	}
	return nil
}

// Lease claims up to limit deliverable messages. Claimed messages stay
// invisible until resolved or until the lease window elapses, so a consumer
// crash re-delivers rather than drops.
func (q *Queue) Lease(ctx context.Context, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()

	selectQuery, args, err := sq.Select("id", "kind", "payload", "attempts").
		From("queue_messages").
		Where(sq.LtOrEq{"available_at": now.Unix()}).
		Where(sq.Or{
			sq.Eq{"leased_until": nil},
			sq.LtOrEq{"leased_until": now.Unix()},
		}).
		OrderBy("id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lease query: %w", err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lease tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("select deliverable: %w", err)
	}

	var deliveries []*Delivery
	for rows.Next() {
		var (
			id       int64
			kind     string
			payload  string
			attempts int
		)
		if err := rows.Scan(&id, &kind, &payload, &attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		deliveries = append(deliveries, &Delivery{
			ID:       id,
			Message:  Message{Kind: Kind(kind), Payload: json.RawMessage(payload)},
			Attempts: attempts + 1,
			queue:    q,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	leasedUntil := now.Add(q.lease).Unix()
	for _, d := range deliveries {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE queue_messages SET leased_until = ?, attempts = attempts + 1 WHERE id = ?`,
			leasedUntil,
			d.ID,
		); err != nil {
			return nil, fmt.Errorf("lease message %d: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease: %w", err)
	}
	return deliveries, nil
}

// Pending reports the number of messages awaiting delivery or retry.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// PendingByKind reports message counts per kind for status inspection.
func (q *Queue) PendingByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM queue_messages GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}
