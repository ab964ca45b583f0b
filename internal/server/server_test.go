package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/store"
	apperrors "github.com/storelens/storelens/internal/errors"
	"github.com/storelens/storelens/internal/server/handlers"
)

type memoryStore struct {
	runs map[string]core.AuditRun
}

func (m *memoryStore) CreateRun(_ context.Context, run core.AuditRun) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStore) GetRun(_ context.Context, id string) (*core.AuditRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &run, nil
}

func (m *memoryStore) ListRuns(context.Context, int, core.RunStatus) ([]core.AuditRun, error) {
	out := make([]core.AuditRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	return out, nil
}

func (m *memoryStore) GetResult(context.Context, string) (*core.AuditResult, error) {
	return nil, store.ErrResultNotFound
}

func (m *memoryStore) ListProgress(context.Context, string) ([]store.ProgressEntry, error) {
	return nil, nil
}

func newTestServer(t *testing.T, health *handlers.HealthManager) (*Server, *memoryStore) {
	t.Helper()
	ms := &memoryStore{runs: map[string]core.AuditRun{}}
	srv := New(Options{
		Health: health,
		Audits: &handlers.Audits{Store: ms},
	})
	return srv, ms
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/audits", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerMountsAuditRoutes(t *testing.T) {
	srv, ms := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/audits", strings.NewReader(`{"url":"https://shop.example.com"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Len(t, ms.runs, 1)

	var run core.AuditRun
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audits/"+run.ID+"/result", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServerHealthUsesManager(t *testing.T) {
	health := handlers.NewHealthManager("test")
	health.RegisterChecker("store", handlers.CheckerFunc(func(context.Context) error {
		return errors.New("closed")
	}))
	srv, _ := newTestServer(t, health)
	require.Same(t, health, srv.Health())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "goroutine")
}

func TestAdminEndpointRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestProfilerMountedOnlyWhenEnabled(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Options{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	New(Options{Pprof: true}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
