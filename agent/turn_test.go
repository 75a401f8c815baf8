package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/common"
	"zdx/interrupt"
	"zdx/providers"
	"zdx/toolrun"
)

// scriptedClient replays a fixed sequence of rounds: each round emits a
// canned set of events on eventCh, then returns a canned response. This
// lets a test drive the multi-round tool-use loop deterministically
// without a real provider.
type scriptedClient struct {
	rounds []func(eventCh chan<- providers.Event) *providers.MessageResponse
	calls  int
}

func (c *scriptedClient) Stream(ctx context.Context, req providers.Request, eventCh chan<- providers.Event) (*providers.MessageResponse, error) {
	round := c.rounds[c.calls]
	c.calls++
	resp := round(eventCh)
	return resp, nil
}

func drainAgentEvents(ch chan AgentEvent) []AgentEvent {
	var out []AgentEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

// TestRunTurnTextOnlyCompletes exercises a single round with no tool
// use: the loop should publish AssistantCompleted/TurnCompleted and
// return without looping back for another round.
func TestRunTurnTextOnlyCompletes(t *testing.T) {
	client := &scriptedClient{rounds: []func(chan<- providers.Event) *providers.MessageResponse{
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			eventCh <- providers.Event{Type: providers.EventContentBlockStart, Index: 0, Kind: providers.BlockKindText}
			eventCh <- providers.Event{Type: providers.EventTextDelta, Index: 0, Text: "hi there"}
			eventCh <- providers.Event{Type: providers.EventContentBlockCompleted, Index: 0, Kind: providers.BlockKindText}
			return &providers.MessageResponse{
				Output:     providers.Message{Role: providers.RoleAssistant, Content: []providers.ContentBlock{providers.TextBlock("hi there")}},
				StopReason: providers.StopEndTurn,
			}
		},
	}}

	sender := NewEventSender(make(chan AgentEvent, 32))
	sig := interrupt.New()
	registry := toolrun.NewRegistry()

	messages, err := RunTurn(context.Background(), client, providers.Request{}, registry, &toolrun.Context{}, sender, sig, Options{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, providers.RoleAssistant, messages[0].Role)

	events := drainAgentEvents(sender.ch)
	var sawCompleted, sawTurnCompleted bool
	for _, ev := range events {
		if ev.Type == EventAssistantCompleted {
			sawCompleted = true
			assert.Equal(t, "hi there", ev.FinalText)
		}
		if ev.Type == EventTurnCompleted {
			sawTurnCompleted = true
		}
	}
	assert.True(t, sawCompleted)
	assert.True(t, sawTurnCompleted)
}

// TestRunTurnExecutesToolThenContinues exercises a tool-use stop
// followed by a second round that ends the turn, verifying the tool
// result is folded into message history before the next round runs.
func TestRunTurnExecutesToolThenContinues(t *testing.T) {
	client := &scriptedClient{rounds: []func(chan<- providers.Event) *providers.MessageResponse{
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			eventCh <- providers.Event{Type: providers.EventContentBlockStart, Index: 0, Kind: providers.BlockKindToolUse, ToolUseID: "call_1", ToolName: "echo"}
			eventCh <- providers.Event{Type: providers.EventInputJSONDelta, Index: 0, Text: `{"x":1}`}
			eventCh <- providers.Event{Type: providers.EventContentBlockCompleted, Index: 0, Kind: providers.BlockKindToolUse}
			return &providers.MessageResponse{
				Output:     providers.Message{Role: providers.RoleAssistant, Content: []providers.ContentBlock{providers.ToolUseBlock("call_1", "echo", []byte(`{"x":1}`))}},
				StopReason: providers.StopToolUse,
			}
		},
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			eventCh <- providers.Event{Type: providers.EventTextDelta, Index: 0, Text: "done"}
			return &providers.MessageResponse{
				Output:     providers.Message{Role: providers.RoleAssistant, Content: []providers.ContentBlock{providers.TextBlock("done")}},
				StopReason: providers.StopEndTurn,
			}
		},
	}}

	registry := toolrun.NewRegistry()
	registry.Register(common.ToolDefinition{Name: "echo"}, func(ctx context.Context, id string, input json.RawMessage, tctx *toolrun.Context) toolrun.ToolOutput {
		return toolrun.Success(input)
	})

	sender := NewEventSender(make(chan AgentEvent, 32))
	sig := interrupt.New()
	toolCtx := &toolrun.Context{EnabledTools: map[string]struct{}{"echo": {}}}

	messages, err := RunTurn(context.Background(), client, providers.Request{}, registry, toolCtx, sender, sig, Options{})
	require.NoError(t, err)
	require.Len(t, messages, 3) // assistant tool_use, user tool_result, assistant final text
	assert.Equal(t, providers.RoleUser, messages[1].Role)
	require.Len(t, messages[1].Content, 1)
	assert.Equal(t, providers.BlockToolResult, messages[1].Content[0].Type)
	assert.Equal(t, "call_1", messages[1].Content[0].ToolResultForID)
	assert.False(t, messages[1].Content[0].ToolResultIsErr)
}

// TestRunTurnInterruptBetweenRoundsStopsLoop verifies a pre-set
// interrupt signal short-circuits the loop before a new round starts.
func TestRunTurnInterruptBetweenRoundsStopsLoop(t *testing.T) {
	client := &scriptedClient{rounds: []func(chan<- providers.Event) *providers.MessageResponse{
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			t.Fatal("stream should not have been invoked once interrupted")
			return nil
		},
	}}

	sender := NewEventSender(make(chan AgentEvent, 32))
	sig := interrupt.New()
	sig.Set()

	messages, err := RunTurn(context.Background(), client, providers.Request{}, toolrun.NewRegistry(), &toolrun.Context{}, sender, sig, Options{})
	require.NoError(t, err)
	assert.Empty(t, messages)

	events := drainAgentEvents(sender.ch)
	var sawInterrupted bool
	for _, ev := range events {
		if ev.Type == EventInterrupted {
			sawInterrupted = true
		}
	}
	assert.True(t, sawInterrupted)
}

// TestRunTurnInterruptDuringToolExecutionEmitsTurnCompletedThenInterrupted
// exercises spec step 4's mid-tool-execution interrupt path: the tool
// handler itself sets the interrupt signal partway through, which the
// orchestrator reacts to by canceling the batch. finishRound must still
// publish TurnCompleted (with the partial history) before Interrupted,
// per invariant 11 ("exactly one Interrupted event after at most one
// TurnCompleted").
func TestRunTurnInterruptDuringToolExecutionEmitsTurnCompletedThenInterrupted(t *testing.T) {
	client := &scriptedClient{rounds: []func(chan<- providers.Event) *providers.MessageResponse{
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			eventCh <- providers.Event{Type: providers.EventContentBlockStart, Index: 0, Kind: providers.BlockKindToolUse, ToolUseID: "call_1", ToolName: "slow"}
			eventCh <- providers.Event{Type: providers.EventInputJSONDelta, Index: 0, Text: `{}`}
			eventCh <- providers.Event{Type: providers.EventContentBlockCompleted, Index: 0, Kind: providers.BlockKindToolUse}
			return &providers.MessageResponse{
				Output:     providers.Message{Role: providers.RoleAssistant, Content: []providers.ContentBlock{providers.ToolUseBlock("call_1", "slow", []byte(`{}`))}},
				StopReason: providers.StopToolUse,
			}
		},
		func(eventCh chan<- providers.Event) *providers.MessageResponse {
			t.Fatal("a second round should never start once interrupted during tool execution")
			return nil
		},
	}}

	sig := interrupt.New()
	registry := toolrun.NewRegistry()
	registry.Register(common.ToolDefinition{Name: "slow"}, func(ctx context.Context, id string, input json.RawMessage, tctx *toolrun.Context) toolrun.ToolOutput {
		sig.Set() // interrupt fires mid-execution
		<-ctx.Done()
		return toolrun.Canceled("interrupted")
	})

	sender := NewEventSender(make(chan AgentEvent, 32))
	toolCtx := &toolrun.Context{EnabledTools: map[string]struct{}{"slow": {}}}

	messages, err := RunTurn(context.Background(), client, providers.Request{}, registry, toolCtx, sender, sig, Options{})
	require.NoError(t, err)
	require.Len(t, messages, 2) // assistant tool_use, user tool_result (canceled)

	events := drainAgentEvents(sender.ch)
	var turnCompletedIdx, interruptedIdx = -1, -1
	for i, ev := range events {
		if ev.Type == EventTurnCompleted && turnCompletedIdx == -1 {
			turnCompletedIdx = i
		}
		if ev.Type == EventInterrupted && interruptedIdx == -1 {
			interruptedIdx = i
		}
	}
	require.GreaterOrEqual(t, turnCompletedIdx, 0, "expected a TurnCompleted event")
	require.GreaterOrEqual(t, interruptedIdx, 0, "expected an Interrupted event")
	assert.Less(t, turnCompletedIdx, interruptedIdx, "TurnCompleted must precede Interrupted")
}
