package ailink

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawResponseError is returned when a provider answered but its content is
// not JSON or does not match the prompt's response schema. Raw is the
// (possibly truncated) content and is only set when debug capture is on.
type RawResponseError struct {
	Provider string
	Model    string
	Err      error
	Raw      json.RawMessage
}

func (e *RawResponseError) Error() string {
	if e == nil || e.Err == nil {
		return "ailink error"
	}
	if e.Provider == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *RawResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// captureRaw keeps at most CaptureRawMaxBytes of content, and only when both
// the config and the request ask for it.
func captureRaw(cfg DebugConfig, requested bool, content []byte) json.RawMessage {
	if !requested || !cfg.CaptureRawEnabled || cfg.CaptureRawMaxBytes <= 0 {
		return nil
	}
	n := min(len(content), cfg.CaptureRawMaxBytes)
	out := make(json.RawMessage, n)
	copy(out, content[:n])
	return out
}

func safeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
