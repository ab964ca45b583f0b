package driver

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProviderErrorReadsEnvelope(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"12"}}}
	body := []byte(`{"error":{"message":"Rate limit reached for gpt-4o","type":"requests"}}`)

	err := NewProviderError("openai", resp, body)
	require.Equal(t, "Rate limit reached for gpt-4o", err.Message)
	require.Equal(t, 12*time.Second, err.RetryAfter)
	require.Equal(t, body, err.RawResponse)

	wait, ok := err.Throttle()
	require.True(t, ok)
	require.Equal(t, 12*time.Second, wait)
	require.EqualError(t, err, "openai request failed: status 429: Rate limit reached for gpt-4o")
}

func TestNewProviderErrorFallsBackToBody(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}

	err := NewProviderError("xai", resp, []byte(`{"error":"upstream unavailable"}`))
	require.Equal(t, "upstream unavailable", err.Message)

	err = NewProviderError("xai", resp, []byte("  <html>bad gateway</html>\n"))
	require.Equal(t, "<html>bad gateway</html>", err.Message)
	_, ok := err.Throttle()
	require.False(t, ok)

	long := NewProviderError("xai", resp, []byte(strings.Repeat("x", 2*maxMessageLen)))
	require.Len(t, long.Message, maxMessageLen+3)
}

func TestRetryAfterIgnoresPastDates(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	require.Zero(t, retryAfter(h))
	require.Zero(t, retryAfter(http.Header{"Retry-After": []string{"soon"}}))
}

func TestNilProviderError(t *testing.T) {
	var err *ProviderError
	require.Equal(t, "provider error", err.Error())
	_, ok := err.Throttle()
	require.False(t, ok)
}
