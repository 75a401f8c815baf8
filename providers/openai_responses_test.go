package providers

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go/v3/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResponsesStream drives decodeResponsesStream from a fixed list of raw
// JSON event frames, each unmarshaled into the SDK's own
// ResponseStreamEventUnion the way openai-go/v3 decodes real SSE frames, so
// decodeResponsesStream is exercised against the real union type without a
// live HTTP server.
type fakeResponsesStream struct {
	frames  []string
	pos     int
	current responses.ResponseStreamEventUnion
	err     error
}

func (f *fakeResponsesStream) Next() bool {
	if f.err != nil || f.pos >= len(f.frames) {
		return false
	}
	if err := json.Unmarshal([]byte(f.frames[f.pos]), &f.current); err != nil {
		f.err = err
		return false
	}
	f.pos++
	return true
}

func (f *fakeResponsesStream) Current() responses.ResponseStreamEventUnion { return f.current }
func (f *fakeResponsesStream) Err() error                                 { return f.err }

// TestResponsesTextAndToolCallStream exercises a text item followed by a
// function-call item, verifying output_index-keyed block allocation and
// the call_id|id join for tool-call correlation.
func TestResponsesTextAndToolCallStream(t *testing.T) {
	stream := &fakeResponsesStream{frames: []string{
		`{"type":"response.content_part.added","output_index":0,"item_id":"msg_1","part":{"type":"output_text","text":""}}`,
		`{"type":"response.output_text.delta","output_index":0,"item_id":"msg_1","delta":"Looking it up"}`,
		`{"type":"response.output_item.added","output_index":1,"item":{"type":"function_call","call_id":"call_1","id":"fc_1","name":"read_file","arguments":""}}`,
		`{"type":"response.function_call_arguments.delta","output_index":1,"item_id":"fc_1","delta":"{\"path\":\"a.go\"}"}`,
		`{"type":"response.completed","response":{"id":"resp_1","status":"completed","model":"gpt-5","usage":{"input_tokens":10,"output_tokens":6}}}`,
	}}

	eventCh := make(chan Event, 32)
	go func() {
		defer close(eventCh)
		_, err := decodeResponsesStream(stream, "gpt-5", eventCh)
		require.NoError(t, err)
	}()
	events := drainEvents(eventCh)

	var toolUseID string
	var sawToolStart bool
	for _, ev := range events {
		if ev.Type == EventContentBlockStart && ev.Kind == BlockKindToolUse {
			sawToolStart = true
			toolUseID = ev.ToolUseID
			assert.Equal(t, "read_file", ev.ToolName)
		}
	}
	require.True(t, sawToolStart)
	assert.Equal(t, "call_1|fc_1", toolUseID)

	last := events[len(events)-1]
	assert.Equal(t, EventMessageCompleted, last.Type)
	assert.Equal(t, StopToolUse, last.StopReason)
}

func TestCallIDJoinSplitRoundTrip(t *testing.T) {
	joined := joinCallID("call_1", "fc_1")
	assert.Equal(t, "call_1|fc_1", joined)
	callID, id := splitCallJoinedID(joined)
	assert.Equal(t, "call_1", callID)
	assert.Equal(t, "fc_1", id)

	// An id-less join (no "|") splits to (callID, "").
	callID2, id2 := splitCallJoinedID("call_only")
	assert.Equal(t, "call_only", callID2)
	assert.Equal(t, "", id2)
}

// TestResponsesReasoningReplayRoundTrip verifies a reasoning block carrying
// an OpenAI replay token converts to a reasoning input item with its id and
// encrypted content preserved.
func TestResponsesReasoningReplayRoundTrip(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			ReasoningBlock("already summarized", &ReplayToken{Kind: ReplayOpenAI, ID: "rs_1", EncryptedContent: "enc"}),
		}},
	}
	items, err := messagesToResponsesInput(messages)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].OfReasoning)
	assert.Equal(t, "rs_1", items[0].OfReasoning.ID)
	require.Len(t, items[0].OfReasoning.Summary, 1)
	assert.Equal(t, "already summarized", items[0].OfReasoning.Summary[0].Text)
	assert.Equal(t, "enc", items[0].OfReasoning.EncryptedContent.Value)
}

// TestResponsesReasoningWithoutReplayTokenDropped verifies a reasoning
// block with no OpenAI replay token is dropped from the outbound input,
// per spec.md invariant: unsigned reasoning is never replayed.
func TestResponsesReasoningWithoutReplayTokenDropped(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			ReasoningBlock("scratch thoughts", nil),
			TextBlock("final answer"),
		}},
	}
	items, err := messagesToResponsesInput(messages)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].OfOutputMessage)
}

// TestResponsesToolResultEmitsFunctionCallOutput verifies a tool_result
// block maps to a function_call_output item keyed by the call_id half of
// the joined ToolUseID.
func TestResponsesToolResultEmitsFunctionCallOutput(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock("call_1|fc_1", "file contents", false),
		}},
	}
	items, err := messagesToResponsesInput(messages)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].OfFunctionCallOutput)
	assert.Equal(t, "call_1", items[0].OfFunctionCallOutput.CallID)
	assert.Equal(t, "file contents", items[0].OfFunctionCallOutput.Output)
}
