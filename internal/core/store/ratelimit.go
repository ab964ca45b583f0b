package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

const rateLimitColumns = "service, request_count, window_start, backoff_until, last_429_at"

var errServiceRequired = errors.New("service is required")

// RateLimitEntry is one persisted collaborator window.
type RateLimitEntry struct {
	Service string              `json:"service"`
	State   core.RateLimitState `json:"state"`
}

// RateLimitQuery selects either every service or a single one.
type RateLimitQuery struct {
	All     bool
	Service string
}

func (q RateLimitQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Service) != "" {
		return nil
	}
	return errors.New("must specify --all or --service")
}

func (q RateLimitQuery) where() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	return " WHERE service = ?", []any{strings.TrimSpace(q.Service)}, nil
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		entry        RateLimitEntry
		windowStart  int64
		backoffUntil sql.NullInt64
		last429At    sql.NullInt64
	)
	if err := row.Scan(&entry.Service, &entry.State.RequestCount, &windowStart, &backoffUntil, &last429At); err != nil {
		return RateLimitEntry{}, err
	}
	entry.State.WindowStart = fromMillis(windowStart)
	entry.State.BackoffUntil = millisFromNull(backoffUntil)
	entry.State.Last429At = millisFromNull(last429At)
	return entry, nil
}

// GetRateLimit returns the stored window for service, or nil when the
// service has not been called yet.
func (s *Store) GetRateLimit(ctx context.Context, service string) (*core.RateLimitState, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if service = strings.TrimSpace(service); service == "" {
		return nil, errServiceRequired
	}

	row := s.DB.QueryRowContext(ctx, s.rebind("SELECT "+rateLimitColumns+" FROM rate_limits WHERE service = ?"), service)
	entry, err := scanRateLimit(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return &entry.State, nil
}

// UpdateRateLimit upserts the window for service.
func (s *Store) UpdateRateLimit(ctx context.Context, service string, state *core.RateLimitState) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if service = strings.TrimSpace(service); service == "" {
		return errServiceRequired
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err = s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO rate_limits (`+rateLimitColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at
	`), service, state.RequestCount, toMillis(state.WindowStart), nullMillis(state.BackoffUntil), nullMillis(state.Last429At))
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}
	return nil
}

// ListRateLimits returns the selected windows ordered by service.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	where, args, err := q.where()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, s.rebind("SELECT "+rateLimitColumns+" FROM rate_limits"+where+" ORDER BY service"), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		entry, err := scanRateLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// ResetRateLimits deletes the selected windows and reports how many went.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.where()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, s.rebind("DELETE FROM rate_limits"+where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return affected, nil
}

// CountRateLimits reports how many windows a reset would delete.
func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.where()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM rate_limits"+where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}
