package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/store"
	apperrors "github.com/storelens/storelens/internal/errors"
)

const maxCreateBody = 16 << 10

// AuditStore is the run store surface the API reads and writes.
type AuditStore interface {
	CreateRun(ctx context.Context, run core.AuditRun) error
	GetRun(ctx context.Context, id string) (*core.AuditRun, error)
	ListRuns(ctx context.Context, limit int, status core.RunStatus) ([]core.AuditRun, error)
	GetResult(ctx context.Context, runID string) (*core.AuditResult, error)
	ListProgress(ctx context.Context, runID string) ([]store.ProgressEntry, error)
}

// StatusNotifier is told about runs accepted over the API.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, run core.AuditRun) error
}

// Audits serves /v1/audits. Created runs stay pending until a worker claims
// them.
type Audits struct {
	Store    AuditStore
	Notifier StatusNotifier
	Clock    func() time.Time
}

type createAuditRequest struct {
	URL string `json:"url"`
}

// ProgressResponse is the body of GET /v1/audits/{id}/progress.
type ProgressResponse struct {
	RunID    string                `json:"run_id"`
	Status   core.RunStatus        `json:"status"`
	Progress int                   `json:"progress"`
	Entries  []store.ProgressEntry `json:"entries"`
}

// Routes mounts the audit endpoints.
func (a *Audits) Routes(r chi.Router) {
	r.Post("/", a.Create)
	r.Get("/", a.List)
	r.Get("/{id}", a.Get)
	r.Get("/{id}/result", a.Result)
	r.Get("/{id}/progress", a.Progress)
}

// Create validates the target URL and queues a pending run.
func (a *Audits) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createAuditRequest
	body := http.MaxBytesReader(w, r.Body, maxCreateBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apperrors.RespondWithError(w, r, apperrors.WrapValidationError(ctx, err, "request body must be a JSON object with a url"))
		return
	}

	run, err := core.NewAuditRun(req.URL, a.now())
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapValidationError(ctx, err, core.PublicMessage(err)))
		return
	}

	if err := a.Store.CreateRun(ctx, run); err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to queue audit"))
		return
	}
	if a.Notifier != nil {
		_ = a.Notifier.NotifyStatus(ctx, run)
	}

	w.Header().Set("Location", "/v1/audits/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// List returns recent runs, newest first.
func (a *Audits) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			apperrors.RespondWithError(w, r, apperrors.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	var status core.RunStatus
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		parsed, err := core.ParseRunStatus(raw)
		if err != nil {
			apperrors.RespondWithError(w, r, apperrors.WrapValidationError(ctx, err, err.Error()))
			return
		}
		status = parsed
	}

	runs, err := a.Store.ListRuns(ctx, limit, status)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to list audits"))
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Get returns a single run.
func (a *Audits) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Result returns the stored result of a completed run. Runs that are not
// completed answer 409 with their current status.
func (a *Audits) Result(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	if run.Status != core.StatusCompleted {
		env := apperrors.NewResultNotReadyError(run.ID, run.Status)
		if run.Error != "" {
			env = env.WithDetails(map[string]interface{}{"error": run.Error})
		}
		apperrors.RespondWithError(w, r, env)
		return
	}

	result, err := a.Store.GetResult(ctx, run.ID)
	switch {
	case errors.Is(err, store.ErrResultNotFound):
		apperrors.RespondWithError(w, r, apperrors.WrapNotFound(ctx, err, "audit result not found"))
		return
	case err != nil:
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to load audit result"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Progress returns the ordered progress history of a run.
func (a *Audits) Progress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}

	entries, err := a.Store.ListProgress(ctx, run.ID)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to load audit progress"))
		return
	}
	if entries == nil {
		entries = []store.ProgressEntry{}
	}
	writeJSON(w, http.StatusOK, ProgressResponse{
		RunID:    run.ID,
		Status:   run.Status,
		Progress: run.Progress,
		Entries:  entries,
	})
}

func (a *Audits) loadRun(w http.ResponseWriter, r *http.Request) (*core.AuditRun, bool) {
	ctx := r.Context()
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		apperrors.RespondWithError(w, r, apperrors.NewValidationError("audit id is required"))
		return nil, false
	}

	run, err := a.Store.GetRun(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		apperrors.RespondWithError(w, r, apperrors.WrapNotFound(ctx, err, "audit not found"))
		return nil, false
	case err != nil:
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(ctx, err, "failed to load audit"))
		return nil, false
	}
	return run, true
}

func (a *Audits) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}
