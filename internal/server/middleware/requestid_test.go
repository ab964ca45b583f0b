package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func captureRequestID(t *testing.T, header string) (string, string) {
	t.Helper()
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/audits", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec.Header().Get(RequestIDHeader)
}

func TestRequestIDKeepsCallerID(t *testing.T) {
	seen, echoed := captureRequestID(t, "audit-dashboard-42")
	require.Equal(t, "audit-dashboard-42", seen)
	require.Equal(t, seen, echoed)
}

func TestRequestIDReplacesUnusableIDs(t *testing.T) {
	for _, header := range []string{"", "has space", strings.Repeat("x", maxRequestIDLen+1)} {
		seen, echoed := captureRequestID(t, header)
		_, err := uuid.Parse(seen)
		require.NoError(t, err, "header %q", header)
		require.Equal(t, seen, echoed)
	}
}
