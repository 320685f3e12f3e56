package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Get returns the value stored under key. Expired entries are treated as
// absent; they are removed lazily by PurgeExpired.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, _, ok, err := s.GetRev(ctx, key)
	return value, ok, err
}

// GetRev returns the value and its revision. The revision feeds PutRev for
// optimistic-concurrency writes.
func (s *Store) GetRev(ctx context.Context, key string) (string, int64, bool, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT value, revision, expires_at FROM state_entries WHERE key = ?`,
		key,
	)
	var (
		value     string
		revision  int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&value, &revision, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("get entry: %w", err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= time.Now().Unix() {
		return "", 0, false, nil
	}
	return value, revision, true, nil
}

// Put writes key unconditionally, creating it or replacing the current value.
// A ttl of zero stores the entry without expiry.
func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key must not be empty")
	}
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO state_entries (key, value, revision, expires_at, updated_at)
         VALUES (?, ?, 1, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             value = excluded.value,
             revision = state_entries.revision + 1,
             expires_at = excluded.expires_at,
             updated_at = excluded.updated_at`,
		key,
		value,
		expiryValue(now, ttl),
		now.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// PutRev writes key only when the stored revision matches expectedRev. An
// expectedRev of zero requires the key to be absent (conditional create). On
// mismatch it returns ErrRevisionConflict without modifying the entry.
func (s *Store) PutRev(ctx context.Context, key, value string, expectedRev int64, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key must not be empty")
	}
	now := time.Now().UTC()

	if expectedRev == 0 {
		// Clear any expired leftover so the conditional create can succeed.
		if _, err := s.execWithRetry(
			ctx,
			`DELETE FROM state_entries WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
			key,
			now.Unix(),
		); err != nil {
			return fmt.Errorf("purge expired entry: %w", err)
		}
		_, err := s.execWithRetry(
			ctx,
			`INSERT INTO state_entries (key, value, revision, expires_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
			key,
			value,
			expiryValue(now, ttl),
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create %q: %w", key, ErrRevisionConflict)
			}
			return fmt.Errorf("create entry: %w", err)
		}
		return nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE state_entries
         SET value = ?, revision = revision + 1, expires_at = ?, updated_at = ?
         WHERE key = ? AND revision = ?`,
		value,
		expiryValue(now, ttl),
		now.Format(time.RFC3339Nano),
		key,
		expectedRev,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update %q at revision %d: %w", key, expectedRev, ErrRevisionConflict)
	}
	return nil
}

// List returns all unexpired keys beginning with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx = ensureContext(ctx)
	builder := sq.Select("key").
		From("state_entries").
		Where(sq.Or{
			sq.Eq{"expires_at": nil},
			sq.Gt{"expires_at": time.Now().Unix()},
		}).
		OrderBy("key")
	if prefix != "" {
		builder = builder.Where(sq.And{
			sq.GtOrEq{"key": prefix},
			sq.Lt{"key": prefix + "\xff"},
		})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete removes an entry. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM state_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// PurgeExpired removes entries whose TTL has elapsed and reports how many were dropped.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	query, args, err := sq.Delete("state_entries").
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.LtOrEq{"expires_at": time.Now().Unix()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge query: %w", err)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}

func expiryValue(now time.Time, ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return now.Add(ttl).Unix()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
