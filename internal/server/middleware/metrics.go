package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/metrics"
	"github.com/storelens/storelens/internal/observability"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// RoutePattern returns the matched chi route pattern, or "" outside a
// routed request.
func RoutePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// endpointLabel keeps metric labels low-cardinality: run ids never appear.
func endpointLabel(r *http.Request) string {
	if pattern := RoutePattern(r); pattern != "" {
		return pattern
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/health"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case strings.HasPrefix(path, "/v1/audits"):
		return "/v1/audits/*"
	default:
		return "/unknown"
	}
}

// RequestMetrics records every request once the handler returns and logs
// it with its request id. It is a pass-through until telemetry is enabled.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Routing is complete here, so the chi pattern is set.
		req := metrics.HTTPRequest{
			Method:        r.Method,
			Endpoint:      endpointLabel(r),
			Status:        rec.status,
			Duration:      time.Since(start),
			RequestBytes:  max(r.ContentLength, 0),
			ResponseBytes: rec.bytes,
		}
		metrics.RecordHTTPRequest(req)

		if logger := observability.ServerLogger; logger != nil {
			logger.Info("HTTP request completed",
				zap.String("method", req.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", req.Endpoint),
				zap.Int("status", req.Status),
				zap.Duration("duration", req.Duration),
				zap.Int64("request_size", req.RequestBytes),
				zap.Int64("response_size", req.ResponseBytes),
				zap.String("request_id", GetRequestID(r.Context())))
		}
	})
}
