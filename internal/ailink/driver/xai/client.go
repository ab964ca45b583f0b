package xai

import (
	"strings"

	"github.com/storelens/storelens/internal/ailink/driver/openai"
)

const defaultBaseURL = "https://api.x.ai/v1"

// NewClient returns a chat completions client pointed at x.ai. Grok vision
// models accept image_url parts but not strict json_schema formats, so
// structured output falls back to json_object.
func NewClient(baseURL, apiKey string) *openai.Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}
	client := openai.NewClient(url, apiKey)
	client.Provider = "xai"
	client.JSONSchema = false
	return client
}
