package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/server/middleware"
)

func respond(t *testing.T, ctx context.Context, err error) (int, HTTPErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/audits/run-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	RespondWithError(rec, req, err)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestHTTPStatusFromCode(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(CodeValidationFailed))
	require.Equal(t, http.StatusConflict, HTTPStatusFromCode(CodeConflict))
	require.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromCode(CodeServiceUnavailable))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(CodeDatabase))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_NEW"))
}

func TestRespondHidesPlainErrors(t *testing.T) {
	status, body := respond(t, context.Background(), stderrors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, CodeInternal, body.Error.Code)
	require.Equal(t, "unexpected error", body.Error.Message)
	require.Nil(t, body.Error.Details)
	require.True(t, strings.HasPrefix(body.Error.RequestID, "fallback-"))
}

func TestRespondUsesRequestID(t *testing.T) {
	ctx := middleware.WithRequestID(context.Background(), "req-42")
	env := WrapDatabaseError(ctx, stderrors.New("disk full"), "failed to load audit run")

	status, body := respond(t, ctx, env)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, CodeDatabase, body.Error.Code)
	require.Equal(t, "failed to load audit run", body.Error.Message)
	require.Equal(t, "req-42", body.Error.RequestID)
	require.Nil(t, body.Error.Details)
}

func TestRespondResultNotReady(t *testing.T) {
	env := NewResultNotReadyError("run-1", core.StatusProcessing)
	status, body := respond(t, context.Background(), env)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "run-1", body.Error.Details["run_id"])
	require.Equal(t, "processing", body.Error.Details["status"])
}

func TestWrapKeepsCause(t *testing.T) {
	env := WrapValidationError(context.Background(), stderrors.New("scheme must be http or https"), "invalid target url")
	require.Equal(t, CodeValidationFailed, env.Code)
	require.Equal(t, "scheme must be http or https", env.Context["wrapped_error"])
	require.NotEmpty(t, env.CorrelationID)
	require.Equal(t, env.CorrelationID, env.TraceID)
}
