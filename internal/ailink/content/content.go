package content

import "github.com/storelens/storelens/internal/ailink/encode"

// ContentType represents supported content types using IANA media types.
type ContentType string

const (
	ContentTypeText      ContentType = "text/plain"
	ContentTypeJSON      ContentType = "application/json"
	ContentTypeImagePNG  ContentType = "image/png"
	ContentTypeImageJPEG ContentType = "image/jpeg"
)

// IsImage reports whether the content type carries image bytes.
func (t ContentType) IsImage() bool {
	return t == ContentTypeImagePNG || t == ContentTypeImageJPEG
}

// ContentBlock represents a single piece of content.
type ContentBlock struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	Data    []byte      `json:"data,omitempty"`
	DataURL string      `json:"data_url,omitempty"`
}

// Text returns a plain text block.
func Text(value string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: value}
}

// Image returns an image block for the given media type.
func Image(mime string, data []byte) ContentBlock {
	return ContentBlock{Type: ContentType(mime), Data: data}
}

// URL returns the block's data URL, encoding Data when no URL is set.
func (b ContentBlock) URL() string {
	if b.DataURL != "" {
		return b.DataURL
	}
	return encode.DataURL(string(b.Type), b.Data)
}

// Message represents a chat message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}
