package ailink

import (
	"encoding/json"
	"time"
)

// Image is a single image attached to a grade request.
type Image struct {
	MIME string
	Data []byte
}

// GradeRequest runs a prompt with template variables and attached images.
type GradeRequest struct {
	Role       string
	PromptSlug string
	Variables  map[string]string
	Images     []Image
	// Tier selects a model class from the provider's models map.
	Tier    string
	Model   string
	Timeout time.Duration
	// IncludeRaw keeps the raw payload on the response when debug capture is enabled.
	IncludeRaw bool
}

// GradeResponse carries the schema-valid JSON payload and who produced it.
type GradeResponse struct {
	Raw      json.RawMessage `json:"raw"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Usage    *Usage          `json:"usage,omitempty"`
}

// Usage mirrors provider token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderFailure is a classified provider error safe to surface to users.
type ProviderFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (f *ProviderFailure) Error() string {
	if f == nil {
		return "provider failure"
	}
	if f.Details != "" {
		return f.Message + ": " + safeOneLine(f.Details)
	}
	return f.Message
}

func (f *ProviderFailure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Retryable reports whether another provider may succeed where this one failed.
func (f *ProviderFailure) Retryable() bool {
	if f == nil {
		return false
	}
	switch f.Code {
	case CodeTimeout, CodeRateLimit, CodeUnavailable:
		return true
	default:
		return false
	}
}
