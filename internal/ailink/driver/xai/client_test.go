package xai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/ailink/content"
	"github.com/storelens/storelens/internal/ailink/driver"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "key")
	require.Equal(t, "xai", client.Name())
	require.Equal(t, defaultBaseURL, client.BaseURL)
	require.False(t, client.Capabilities().SupportsJSONSchema)
	require.True(t, client.Capabilities().SupportsImages)
}

func TestClientReportsProviderName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "grok-2-vision", payload["model"])
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	client.HTTPClient = server.Client()
	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "grok-2-vision",
		Messages: []content.Message{{Role: "user", Content: []content.ContentBlock{content.Text("hi")}}},
	})
	var perr *driver.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "xai", perr.Provider)
	require.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
}
