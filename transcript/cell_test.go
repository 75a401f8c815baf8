package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"zdx/toolrun"
)

func TestCellIDsAreMonotonicallyIncreasing(t *testing.T) {
	a := NewCellID()
	b := NewCellID()
	assert.Less(t, uint64(a), uint64(b))
}

func TestToolCellCompleteTransitionsState(t *testing.T) {
	c := NewToolCell("call_1", "read", json.RawMessage(`{}`))
	assert.Equal(t, ToolRunning, c.State)

	c.Complete(toolrun.Success(json.RawMessage(`"ok"`)))
	assert.Equal(t, ToolDone, c.State)
	assert.NotNil(t, c.Result)
}

func TestToolCellCompleteWithFailureIsErrorState(t *testing.T) {
	c := NewToolCell("call_1", "read", json.RawMessage(`{}`))
	c.Complete(toolrun.Failure("not_found", "no such file", ""))
	assert.Equal(t, ToolError, c.State)
}

func TestToolCellCompleteWithCanceledIsCancelledState(t *testing.T) {
	c := NewToolCell("call_1", "read", json.RawMessage(`{}`))
	c.Complete(toolrun.Canceled("interrupted"))
	assert.Equal(t, ToolCancelled, c.State)
}

func TestAssistantCellStreamingLifecycle(t *testing.T) {
	c := NewAssistantCell("", true)
	c.AppendDelta("Hello")
	c.AppendDelta(", world")
	assert.Equal(t, "Hello, world", c.Content)
	assert.True(t, c.IsStreaming)

	c.Finalize(nil)
	assert.False(t, c.IsStreaming)
}

func TestAssistantCellInterrupt(t *testing.T) {
	c := NewAssistantCell("partial", true)
	c.Interrupt()
	assert.False(t, c.IsStreaming)
	assert.True(t, c.IsInterrupted)
}
