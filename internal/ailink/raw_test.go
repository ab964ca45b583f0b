package ailink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureRawHonoursConfigAndRequest(t *testing.T) {
	content := []byte(`{"categories":[{"id":"trust","score":4}]}`)
	on := DebugConfig{CaptureRawEnabled: true, CaptureRawMaxBytes: 14}

	require.Equal(t, `{"categories":`, string(captureRaw(on, true, content)))
	require.Nil(t, captureRaw(on, false, content))
	require.Nil(t, captureRaw(DebugConfig{CaptureRawEnabled: true}, true, content))
	require.Nil(t, captureRaw(DebugConfig{CaptureRawMaxBytes: 64}, true, content))

	on.CaptureRawMaxBytes = 4096
	require.Equal(t, string(content), string(captureRaw(on, true, content)))
}

func TestRawResponseErrorNamesProvider(t *testing.T) {
	cause := errors.New("schema validation failed")
	err := &RawResponseError{Provider: "primary", Model: "gpt-4o", Err: cause}
	require.EqualError(t, err, "primary/gpt-4o: schema validation failed")
	require.ErrorIs(t, err, cause)

	require.EqualError(t, &RawResponseError{Err: cause}, "schema validation failed")
	require.EqualError(t, (*RawResponseError)(nil), "ailink error")
}
