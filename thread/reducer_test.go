package thread

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/providers"
)

func TestToMessagesGroupsThinkingWithText(t *testing.T) {
	events := []Event{
		MetaEvent("", ""),
		UserMessageEvent("question"),
		ThinkingEvent("working it out", "sig-1"),
		AssistantMessageEvent("the answer"),
	}
	messages := ToMessages(events)
	require.Len(t, messages, 2)
	assert.Equal(t, providers.RoleUser, messages[0].Role)

	assistant := messages[1]
	assert.Equal(t, providers.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, providers.BlockReasoning, assistant.Content[0].Type)
	assert.Equal(t, providers.BlockText, assistant.Content[1].Type)
	assert.Equal(t, "the answer", assistant.Content[1].Text)
}

func TestToMessagesGroupsThinkingWithToolUseThenClosesOnResult(t *testing.T) {
	events := []Event{
		MetaEvent("", ""),
		ThinkingEvent("let me check", "sig-1"),
		ToolUseEvent("call_1", "read", json.RawMessage(`{"path":"a.go"}`)),
		ToolResultEvent("call_1", json.RawMessage(`{"ok":true,"data":"contents"}`), true),
		ThinkingEvent("now the next turn", "sig-2"),
		AssistantMessageEvent("done"),
	}
	messages := ToMessages(events)
	require.Len(t, messages, 3)

	turn1 := messages[0]
	assert.Equal(t, providers.RoleAssistant, turn1.Role)
	require.Len(t, turn1.Content, 2)
	assert.Equal(t, providers.BlockReasoning, turn1.Content[0].Type)
	assert.Equal(t, providers.BlockToolUse, turn1.Content[1].Type)

	results := messages[1]
	assert.Equal(t, providers.RoleUser, results.Role)
	require.Len(t, results.Content, 1)
	assert.Equal(t, providers.BlockToolResult, results.Content[0].Type)
	assert.Equal(t, "call_1", results.Content[0].ToolResultForID)

	turn2 := messages[2]
	assert.Equal(t, providers.RoleAssistant, turn2.Role)
	require.Len(t, turn2.Content, 2)
	assert.Equal(t, providers.BlockReasoning, turn2.Content[0].Type, "thinking after a flushed tool result starts a new turn")
}

func TestToMessagesAbortedThinkingBecomesText(t *testing.T) {
	events := []Event{
		MetaEvent("", ""),
		ThinkingEvent("cut off mid-thought", ""),
		AssistantMessageEvent("partial"),
	}
	messages := ToMessages(events)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Content, 2)
	assert.Equal(t, providers.BlockText, messages[0].Content[0].Type, "an unsigned thinking block has no valid replay token")
}

func TestToMessagesSynthesizesInterruptedResultForOpenToolUse(t *testing.T) {
	events := []Event{
		MetaEvent("", ""),
		ToolUseEvent("call_1", "read", json.RawMessage(`{}`)),
	}
	messages := ToMessages(events)
	require.Len(t, messages, 2)
	results := messages[1]
	require.Len(t, results.Content, 1)
	assert.True(t, results.Content[0].ToolResultIsErr)
	assert.Contains(t, results.Content[0].ToolResultText, "interrupted")
}

func TestExtractUsageSumsAndKeepsLatest(t *testing.T) {
	events := []Event{
		UsageEvent(Usage{InputTokens: 10, OutputTokens: 5}),
		UsageEvent(Usage{InputTokens: 3, OutputTokens: 1}),
	}
	cumulative, latest := ExtractUsage(events)
	assert.Equal(t, 13, cumulative.InputTokens)
	assert.Equal(t, 6, cumulative.OutputTokens)
	assert.Equal(t, 3, latest.InputTokens)
	assert.Equal(t, 1, latest.OutputTokens)
}
