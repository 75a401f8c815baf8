package agent

import (
	"strings"

	"zdx/providers"
	"zdx/toolrun"
)

// blockState tracks one in-progress content block while its deltas are
// still streaming in, keyed by the provider event's block Index.
type blockState struct {
	kind      providers.BlockKind
	toolID    string
	toolName  string
	jsonBuf   strings.Builder
	reasonBuf strings.Builder
	signature string
}

// turnBuilder accumulates the provider's raw event stream into the
// pieces the turn loop needs once the stream ends: which tool calls
// were requested (so they can be executed), and which reasoning blocks
// completed (so a ReasoningCompleted event can be published once, not
// once per provider quirk), per spec.md 4.7's AssistantTurnBuilder.
type turnBuilder struct {
	blocks           map[int]*blockState
	reasoningEmitted map[int]bool
	toolCalls        []toolrun.Call
}

func newTurnBuilder() *turnBuilder {
	return &turnBuilder{
		blocks:           make(map[int]*blockState),
		reasoningEmitted: make(map[int]bool),
	}
}

func (b *turnBuilder) start(ev providers.Event) *blockState {
	st := &blockState{kind: ev.Kind, toolID: ev.ToolUseID, toolName: ev.ToolName}
	b.blocks[ev.Index] = st
	return st
}

func (b *turnBuilder) get(index int) *blockState {
	return b.blocks[index]
}

// finishToolUse records a completed tool-use block's accumulated input
// JSON as a pending call to execute once the stream ends.
func (b *turnBuilder) finishToolUse(st *blockState) {
	input := st.jsonBuf.String()
	if input == "" {
		input = "{}"
	}
	b.toolCalls = append(b.toolCalls, toolrun.Call{ID: st.toolID, Name: st.toolName, Input: []byte(input)})
}
