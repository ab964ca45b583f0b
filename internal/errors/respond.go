package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/metrics"
	"github.com/storelens/storelens/internal/observability"
	"github.com/storelens/storelens/internal/server/middleware"
)

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail under an "error" key.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError writes err as a JSON error response. Errors that are not
// envelopes become INTERNAL_ERROR without leaking their text.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}
	envelope := ensureEnvelope(err)
	if envelope.CorrelationID == "" {
		id := ""
		if r != nil {
			id = middleware.GetRequestID(r.Context())
		}
		if id == "" {
			id = "fallback-" + errors.GenerateCorrelationID()
		}
		envelope = envelope.WithCorrelationID(id)
	}

	status := HTTPStatusFromCode(envelope.Code)
	logHTTPError(envelope, status)
	recordErrorMetrics(r, envelope.Code, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   publicDetails(envelope),
		RequestID: envelope.CorrelationID,
	}})
}

func ensureEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}
	if err == nil {
		return errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
	}
	return withContext(errors.NewErrorEnvelope(CodeInternal, "unexpected error"), map[string]any{
		"wrapped_error": err.Error(),
	})
}

// publicDetails merges envelope details with its context. wrapped_error is
// kept for the logs only.
func publicDetails(envelope *errors.ErrorEnvelope) map[string]any {
	details := make(map[string]any, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Context {
		if key != "wrapped_error" {
			details[key] = value
		}
	}
	for key, value := range envelope.Details {
		details[key] = value
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func logHTTPError(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error(envelope.Message, fields...)
	case status == http.StatusConflict || status == http.StatusNotFound:
		logger.Info(envelope.Message, fields...)
	default:
		logger.Warn(envelope.Message, fields...)
	}
}

func recordErrorMetrics(r *http.Request, code string, status int) {
	metrics.RecordError(code, status)
	if r == nil || r.URL == nil {
		return
	}
	// chi patterns keep run ids out of the metric labels.
	endpoint := middleware.RoutePattern(r)
	if endpoint == "" {
		endpoint = r.URL.Path
	}
	metrics.RecordErrorByEndpoint(endpoint, code)
}
