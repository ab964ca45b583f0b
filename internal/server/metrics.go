package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/storelens/storelens/internal/errors"
	"github.com/storelens/storelens/internal/observability"
)

const metricsProxyTimeout = 5 * time.Second

// metricsTransport reaches the local Prometheus exporter.
var metricsTransport http.RoundTripper = http.DefaultTransport

// metricsHandler proxies the Prometheus exporter so /metrics can be scraped
// on the API port.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("metrics exporter not initialized"))
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", s.exporterPort()), Path: "/metrics"}
	ctx, cancel := context.WithTimeout(r.Context(), metricsProxyTimeout)
	defer cancel()

	proxy := &httputil.ReverseProxy{
		Transport: metricsTransport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = target
			pr.Out.Host = target.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.Header.Get("Content-Type") == "" {
				resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if logger := observability.ServerLogger; logger != nil {
				logger.Warn("Prometheus exporter unreachable", zap.String("target", target.String()), zap.Error(err))
			}
			apperrors.RespondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "prometheus exporter unavailable"))
		},
	}
	proxy.ServeHTTP(w, r.WithContext(ctx))
}

// exporterPort prefers the port the exporter actually bound.
func (s *Server) exporterPort() int {
	if port := observability.GetMetricsPort(); port != 0 {
		return port
	}
	if s.metricsPort != 0 {
		return s.metricsPort
	}
	return 9090
}
