package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/core"
)

var (
	// ErrNotFound is returned when no run has the requested id.
	ErrNotFound = errors.New("audit run not found")
	// ErrResultNotFound is returned when a run has no stored result.
	ErrResultNotFound = errors.New("audit result not found")
	// ErrInvalidTransition is returned when the run is not in a state that
	// may move to the requested status.
	ErrInvalidTransition = errors.New("invalid run status transition")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	claimAttempts    = 5
)

const runColumns = `id, target_url, domain, status, progress, progress_message, error,
	total_score, platform, created_at, started_at, finished_at, elapsed_ms`

var allStatuses = []core.RunStatus{
	core.StatusPending,
	core.StatusProcessing,
	core.StatusCompleted,
	core.StatusFailed,
}

// ProgressEntry is one recorded progress milestone of a run.
type ProgressEntry struct {
	RunID      string    `json:"run_id"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateRun inserts a new run. An empty status is stored as pending.
func (s *Store) CreateRun(ctx context.Context, run core.AuditRun) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(run.TargetURL) == "" {
		return errors.New("run target url is required")
	}
	if run.Status == "" {
		run.Status = core.StatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}

	_, err = s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		run.ID, run.TargetURL, run.Domain, string(run.Status), run.Progress, run.ProgressMessage, run.Error,
		nullInt(run.TotalScore), string(run.Platform), toMillis(run.CreatedAt),
		nullMillis(run.StartedAt), nullMillis(run.FinishedAt), run.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun returns the run with id or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*core.AuditRun, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	row := s.DB.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM audit_runs WHERE id = ?`), strings.TrimSpace(id))
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, limit int, status core.RunStatus) ([]core.AuditRun, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + runColumns + ` FROM audit_runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	runs := []core.AuditRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ClaimNextPending moves the oldest pending run to processing and returns
// it. It returns nil when nothing is pending. Competing workers are resolved
// by the status-conditioned update; a lost race retries with the next run.
func (s *Store) ClaimNextPending(ctx context.Context) (*core.AuditRun, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	for range claimAttempts {
		var id string
		err := s.DB.QueryRowContext(ctx, s.rebind(`
			SELECT id FROM audit_runs
			WHERE status = ?
			ORDER BY created_at, id
			LIMIT 1
		`), string(core.StatusPending)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select pending run: %w", err)
		}

		started := s.now()
		res, err := s.DB.ExecContext(ctx, s.rebind(`
			UPDATE audit_runs SET status = ?, started_at = ?
			WHERE id = ? AND status = ?
		`), string(core.StatusProcessing), toMillis(started), id, string(core.StatusPending))
		if err != nil {
			return nil, fmt.Errorf("claim run: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			return s.GetRun(ctx, id)
		}
	}
	return nil, nil
}

// MarkProcessing moves a pending run to processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	err = s.transition(ctx, s.DB, id, core.StatusProcessing, `started_at = ?`, toMillis(s.now()))
	return s.explain(ctx, id, err)
}

// MarkCompleted stores result and moves its run to completed. The run's
// finish time and elapsed duration are filled in on result.Run.
func (s *Store) MarkCompleted(ctx context.Context, result *core.AuditResult) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("audit result is required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}

	run := &result.Run
	if run.StartedAt == nil {
		// Callers that marked the run processing by id only hold the
		// pending copy; the start time lives in the row.
		var started sql.NullInt64
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT started_at FROM audit_runs WHERE id = ?`), run.ID).Scan(&started)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			_ = tx.Rollback()
			return fmt.Errorf("fetch run start: %w", err)
		}
		run.StartedAt = millisFromNull(started)
	}
	finished := s.now()
	run.Status = core.StatusCompleted
	run.FinishedAt = &finished
	if run.StartedAt != nil {
		run.Elapsed = finished.Sub(*run.StartedAt)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("encode result: %w", err)
	}
	err = s.transition(ctx, tx, run.ID, core.StatusCompleted,
		`progress = ?, progress_message = ?, total_score = ?, platform = ?, finished_at = ?, elapsed_ms = ?`,
		run.Progress, run.ProgressMessage, nullInt(run.TotalScore), string(run.Platform),
		toMillis(finished), run.Elapsed.Milliseconds())
	if err != nil {
		_ = tx.Rollback()
		return s.explain(ctx, run.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_results (run_id, result_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			result_json = excluded.result_json,
			created_at = excluded.created_at
	`), run.ID, string(payload), toMillis(finished)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

// MarkFailed moves a pending or processing run to failed with message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	err = s.transition(ctx, s.DB, id, core.StatusFailed,
		`error = ?, finished_at = ?`, message, toMillis(s.now()))
	return s.explain(ctx, id, err)
}

// ReportProgress records a milestone for a processing run. Updates for runs
// in any other state, or below the stored progress, are ignored.
func (s *Store) ReportProgress(ctx context.Context, runID string, percent int, message string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, s.rebind(`
		UPDATE audit_runs SET progress = ?, progress_message = ?
		WHERE id = ? AND status = ? AND progress <= ?
	`), percent, message, runID, string(core.StatusProcessing), percent)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_progress (run_id, percent, message, recorded_at)
		VALUES (?, ?, ?, ?)
	`), runID, percent, message, toMillis(s.now())); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// ListProgress returns the progress history of a run in order.
func (s *Store) ListProgress(ctx context.Context, runID string) ([]ProgressEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT run_id, percent, message, recorded_at
		FROM audit_progress
		WHERE run_id = ?
		ORDER BY recorded_at, percent
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	entries := []ProgressEntry{}
	for rows.Next() {
		var (
			entry      ProgressEntry
			recordedAt int64
		)
		if err := rows.Scan(&entry.RunID, &entry.Percent, &entry.Message, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		entry.RecordedAt = fromMillis(recordedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return entries, nil
}

// GetResult returns the stored result of a completed run.
func (s *Store) GetResult(ctx context.Context, runID string) (*core.AuditResult, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	var payload string
	err = s.DB.QueryRowContext(ctx, s.rebind(`SELECT result_json FROM audit_results WHERE run_id = ?`), runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	var result core.AuditResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// transition applies a status-conditioned update. Only runs whose current
// status may move to next are touched.
func (s *Store) transition(ctx context.Context, db execer, id string, next core.RunStatus, set string, args ...any) error {
	from := sourcesOf(next)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing moves to %s", ErrInvalidTransition, next)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE audit_runs SET status = ?, ` + set + ` WHERE id = ? AND status IN (` + placeholders + `)`

	params := make([]any, 0, len(args)+len(from)+2)
	params = append(params, string(next))
	params = append(params, args...)
	params = append(params, id)
	for _, status := range from {
		params = append(params, string(status))
	}

	res, err := db.ExecContext(ctx, s.rebind(query), params...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if affected == 0 {
		return errNoTransition{next: next}
	}
	return nil
}

type errNoTransition struct {
	next core.RunStatus
}

func (e errNoTransition) Error() string {
	return "no run moved to " + string(e.next)
}

// explain turns an unapplied transition into ErrNotFound or
// ErrInvalidTransition. It must run outside any open transaction.
func (s *Store) explain(ctx context.Context, id string, err error) error {
	var none errNoTransition
	if err == nil || !errors.As(err, &none) {
		return err
	}
	run, getErr := s.GetRun(ctx, id)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, none.next)
}

func sourcesOf(next core.RunStatus) []core.RunStatus {
	var from []core.RunStatus
	for _, status := range allStatuses {
		if status.CanTransitionTo(next) {
			from = append(from, status)
		}
	}
	return from
}

func scanRun(row rowScanner) (*core.AuditRun, error) {
	var (
		run        core.AuditRun
		status     string
		platform   string
		totalScore sql.NullInt64
		createdAt  int64
		startedAt  sql.NullInt64
		finishedAt sql.NullInt64
		elapsedMS  int64
	)
	if err := row.Scan(&run.ID, &run.TargetURL, &run.Domain, &status, &run.Progress, &run.ProgressMessage,
		&run.Error, &totalScore, &platform, &createdAt, &startedAt, &finishedAt, &elapsedMS); err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)
	run.Platform = core.Platform(platform)
	run.CreatedAt = fromMillis(createdAt)
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if totalScore.Valid {
		score := int(totalScore.Int64)
		run.TotalScore = &score
	}
	run.StartedAt = millisFromNull(startedAt)
	run.FinishedAt = millisFromNull(finishedAt)
	return &run, nil
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func millisFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
