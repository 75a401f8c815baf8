package toolrun

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolOutputSuccessRoundTrip(t *testing.T) {
	out := Success(json.RawMessage(`{"key":"value"}`))
	raw := out.ToJSONString()
	assert.JSONEq(t, `{"ok":true,"data":{"key":"value"}}`, raw)

	var parsed ToolOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	assert.True(t, parsed.IsOK())
	assert.JSONEq(t, `{"key":"value"}`, string(parsed.Data))
}

func TestToolOutputFailureRoundTrip(t *testing.T) {
	out := Failure("test_code", "test message", "test details")
	raw := out.ToJSONString()

	var parsed ToolOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	assert.False(t, parsed.IsOK())
	code, message, details, ok := parsed.ErrorInfo()
	require.True(t, ok)
	assert.Equal(t, "test_code", code)
	assert.Equal(t, "test message", message)
	assert.Equal(t, "test details", details)
}

// TestToolOutputCanceledRoundTrip verifies Canceled serializes as a
// failure with code "canceled" on the wire but deserializes back to a
// distinct Canceled value rather than a generic Failure.
func TestToolOutputCanceledRoundTrip(t *testing.T) {
	out := Canceled("User interrupted")
	raw := out.ToJSONString()
	assert.JSONEq(t, `{"ok":false,"error":{"code":"canceled","message":"User interrupted"}}`, raw)

	var parsed ToolOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	assert.Equal(t, OutputCanceled, parsed.Kind)
	assert.False(t, parsed.IsOK())
	code, message, _, ok := parsed.ErrorInfo()
	require.True(t, ok)
	assert.Equal(t, "canceled", code)
	assert.Equal(t, "User interrupted", message)
}

func TestToolOutputUnknownErrorFallback(t *testing.T) {
	var parsed ToolOutput
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false}`), &parsed))
	assert.Equal(t, OutputFailure, parsed.Kind)
	code, message, _, ok := parsed.ErrorInfo()
	require.True(t, ok)
	assert.Equal(t, "unknown", code)
	assert.Equal(t, "Unknown error", message)
}

func TestToolOutputImageNeverSerialized(t *testing.T) {
	out := SuccessWithImage(json.RawMessage(`{}`), ImageContent{MimeType: "image/png", Data: "abcd"})
	raw := out.ToJSONString()
	assert.NotContains(t, raw, "abcd")
	assert.NotContains(t, raw, "image/png")
}
