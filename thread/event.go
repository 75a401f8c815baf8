// Package thread implements the append-only JSONL thread log from
// spec.md 4.9/4.10/6.3: each turn's events are persisted as one JSON
// object per line, recovered best-effort on load, and reduced back into
// a provider message history for resuming a conversation.
package thread

import (
	"encoding/json"
	"time"
)

// SchemaVersion is written into every new thread's Meta event.
const SchemaVersion = 1

// EventType discriminates the persisted ThreadEvent sum type.
type EventType string

const (
	EventMeta        EventType = "meta"
	EventMessage     EventType = "message"
	EventToolUse     EventType = "tool_use"
	EventToolResult  EventType = "tool_result"
	EventInterrupted EventType = "interrupted"
	EventThinking    EventType = "thinking"
	EventUsage       EventType = "usage"
)

// Usage is the per-request token accounting persisted alongside a turn,
// summed across a thread's lifetime for cumulative display and taken
// as-is from the last event for context-window display.
type Usage struct {
	InputTokens      int `json:"inputTokens"`
	OutputTokens     int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens"`
	CacheWriteTokens int `json:"cacheWriteTokens"`
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
	}
}

// Event is one persisted line of a thread's JSONL file. Only the fields
// relevant to Type are meaningful, mirroring the tagged-union layout
// providers.Event/agent.AgentEvent already use in this module.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`

	// Meta
	SchemaVersion int    `json:"schemaVersion,omitempty"`
	Title         string `json:"title,omitempty"`
	RootPath      string `json:"rootPath,omitempty"`

	// Message
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// ToolUse
	ToolUseID string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// ToolResult
	ToolResultForID string          `json:"toolUseId,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	OK              bool            `json:"ok,omitempty"`

	// Thinking
	Content   string `json:"content,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Usage
	Usage Usage `json:"usage"`
}

func nowTS() string { return time.Now().UTC().Format(time.RFC3339) }

func MetaEvent(title, rootPath string) Event {
	return Event{Type: EventMeta, SchemaVersion: SchemaVersion, Title: title, RootPath: rootPath, TS: nowTS()}
}

func UserMessageEvent(text string) Event {
	return Event{Type: EventMessage, Role: "user", Text: text, TS: nowTS()}
}

func AssistantMessageEvent(text string) Event {
	return Event{Type: EventMessage, Role: "assistant", Text: text, TS: nowTS()}
}

func ToolUseEvent(id, name string, input json.RawMessage) Event {
	return Event{Type: EventToolUse, ToolUseID: id, ToolName: name, Input: input, TS: nowTS()}
}

func ToolResultEvent(toolUseID string, output json.RawMessage, ok bool) Event {
	return Event{Type: EventToolResult, ToolResultForID: toolUseID, Output: output, OK: ok, TS: nowTS()}
}

func InterruptedEvent() Event {
	return Event{Type: EventInterrupted, Role: "assistant", Text: "Interrupted by user", TS: nowTS()}
}

// ThinkingEvent records a completed reasoning block. An empty signature
// means the thinking was aborted mid-stream (the reducer converts it to
// a plain text block on replay rather than resending an invalid
// continuity token).
func ThinkingEvent(content, signature string) Event {
	return Event{Type: EventThinking, Content: content, Signature: signature, TS: nowTS()}
}

func UsageEvent(u Usage) Event {
	return Event{Type: EventUsage, Usage: u, TS: nowTS()}
}
