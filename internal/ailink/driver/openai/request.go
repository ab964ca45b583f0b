package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/ailink/content"
	"github.com/storelens/storelens/internal/ailink/driver"
)

// chatCompletionRequest is the /chat/completions body. driver.ResponseFormat
// already carries the wire field names.
type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	ResponseFormat *driver.ResponseFormat `json:"response_format,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
}

// chatMessage content is a string for plain text or a list of parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Screenshots are graded on small type and contrast, so low detail is never
// requested.
const imageDetail = "high"

func buildChatRequest(req *driver.Request) (*chatCompletionRequest, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model is required")
	}
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	return &chatCompletionRequest{
		Model:          req.Model,
		Messages:       messages,
		ResponseFormat: req.ResponseFormat,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	}, nil
}

func convertMessages(messages []content.Message) ([]chatMessage, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages are required")
	}
	result := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		contentValue, err := convertContent(msg.Content)
		if err != nil {
			return nil, err
		}
		result = append(result, chatMessage{Role: msg.Role, Content: contentValue})
	}
	return result, nil
}

// convertContent collapses a lone text block to a string and otherwise emits
// typed parts, with images as data URLs.
func convertContent(blocks []content.ContentBlock) (any, error) {
	if len(blocks) == 0 {
		return "", nil
	}
	if len(blocks) == 1 && blocks[0].Type == content.ContentTypeText {
		return blocks[0].Text, nil
	}

	parts := make([]contentPart, 0, len(blocks))
	for _, block := range blocks {
		switch {
		case block.Type == content.ContentTypeText:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		case block.Type.IsImage():
			if len(block.Data) == 0 && block.DataURL == "" {
				return nil, errors.New("image block has no data")
			}
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: block.URL(), Detail: imageDetail}})
		default:
			return nil, fmt.Errorf("unsupported content type: %s", block.Type)
		}
	}
	return parts, nil
}
