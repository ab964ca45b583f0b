package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/ailink/content"
	"github.com/storelens/storelens/internal/ailink/driver"
)

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Refusal string          `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *driver.Usage `json:"usage,omitempty"`
}

// decodeChatResponse reads the first choice. Content may be a plain string
// or, on some compatible providers, a list of text parts.
func decodeChatResponse(body []byte) (*driver.Response, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("empty response choices")
	}

	first := parsed.Choices[0]
	text, err := messageText(first.Message.Content)
	if err != nil {
		return nil, err
	}
	if text == "" && first.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", first.Message.Refusal)
	}

	return &driver.Response{
		Content:      []content.ContentBlock{content.Text(text)},
		FinishReason: first.FinishReason,
		Usage:        parsed.Usage,
	}, nil
}

func messageText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("decode message content: %w", err)
	}
	var b strings.Builder
	for _, part := range parts {
		if part.Type == "text" || part.Type == "output_text" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
