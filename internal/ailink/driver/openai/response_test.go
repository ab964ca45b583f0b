package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/ailink/content"
)

func TestDecodeChatResponseString(t *testing.T) {
	resp, err := decodeChatResponse([]byte(`{
		"choices": [{"message": {"content": "{\"score\": 6}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 900, "completion_tokens": 40, "total_tokens": 940}
	}`))
	require.NoError(t, err)
	require.Equal(t, []content.ContentBlock{content.Text(`{"score": 6}`)}, resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 940, resp.Usage.TotalTokens)
}

func TestDecodeChatResponseParts(t *testing.T) {
	resp, err := decodeChatResponse([]byte(`{"choices": [{"message": {"content": [
		{"type": "text", "text": "{\"score\":"},
		{"type": "reasoning", "text": "ignored"},
		{"type": "output_text", "text": " 3}"}
	]}}]}`))
	require.NoError(t, err)
	require.Equal(t, []content.ContentBlock{content.Text(`{"score": 3}`)}, resp.Content)
	require.Nil(t, resp.Usage)
}

func TestDecodeChatResponseFailures(t *testing.T) {
	_, err := decodeChatResponse([]byte(`{"choices": []}`))
	require.ErrorContains(t, err, "empty response choices")

	_, err = decodeChatResponse([]byte(`{"choices": [{"message": {"content": null, "refusal": "cannot view image"}}]}`))
	require.ErrorContains(t, err, "model refused: cannot view image")

	_, err = decodeChatResponse([]byte(`not json`))
	require.ErrorContains(t, err, "decode response")

	_, err = decodeChatResponse([]byte(`{"choices": [{"message": {"content": 42}}]}`))
	require.ErrorContains(t, err, "decode message content")
}
