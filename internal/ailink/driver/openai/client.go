package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storelens/storelens/internal/ailink/driver"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	completionsPath = "/chat/completions"

	// maxResponseBytes caps what is read from a provider body.
	maxResponseBytes = 8 << 20
)

// Client speaks the chat completions wire shape over plain HTTP. Other
// providers with the same shape reuse it by overriding Provider and BaseURL.
type Client struct {
	Provider   string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	// JSONSchema reports whether the provider accepts json_schema response formats.
	JSONSchema bool
}

func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}
	return &Client{
		Provider:   "openai",
		BaseURL:    url,
		APIKey:     strings.TrimSpace(apiKey),
		JSONSchema: true,
	}
}

func (c *Client) Name() string {
	if c == nil || c.Provider == "" {
		return "openai"
	}
	return c.Provider
}

func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsImages:     true,
		SupportsJSONSchema: c != nil && c.JSONSchema,
	}
}

// Complete posts one chat completion and decodes the first choice.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, errors.New("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("api key is required")
	}

	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	entry := driver.TraceEntry{
		Timestamp:   time.Now(),
		Driver:      c.Name(),
		Endpoint:    strings.TrimRight(c.BaseURL, "/") + completionsPath,
		Method:      http.MethodPost,
		Model:       payload.Model,
		RequestBody: body,
	}
	status, respBody, err := c.post(ctx, entry.Endpoint, body)
	entry.DurationMs = time.Since(entry.Timestamp).Milliseconds()
	entry.StatusCode = status.StatusCode
	if err != nil {
		entry.Error = err.Error()
	} else if json.Valid(respBody) {
		entry.Response = respBody
	}
	driver.Trace(entry)

	switch {
	case err != nil:
		return nil, err
	case status.StatusCode < http.StatusOK || status.StatusCode >= http.StatusMultipleChoices:
		return nil, driver.NewProviderError(c.Name(), status, respBody)
	}
	return decodeChatResponse(respBody)
}

// post sends body and returns the response head with its bytes. The returned
// response never has a readable Body.
func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &http.Response{}, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return &http.Response{}, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, respBody, nil
}
