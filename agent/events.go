// Package agent implements the turn loop from spec.md 4.7: it drives a
// provider Client through one assistant turn, accumulating streamed
// content into finished message blocks, dispatching tool calls through
// toolrun, and publishing progress as AgentEvent values.
package agent

import (
	"encoding/json"

	"zdx/providers"
	"zdx/toolrun"
)

// EventType discriminates the AgentEvent sum type, per spec.md 6.5.
type EventType string

const (
	EventTurnStarted         EventType = "turn_started"
	EventReasoningDelta      EventType = "reasoning_delta"
	EventReasoningCompleted  EventType = "reasoning_completed"
	EventAssistantDelta      EventType = "assistant_delta"
	EventAssistantCompleted  EventType = "assistant_completed"
	EventToolRequested       EventType = "tool_requested"
	EventToolInputCompleted  EventType = "tool_input_completed"
	EventToolInputDelta      EventType = "tool_input_delta"
	EventToolStarted         EventType = "tool_started"
	EventToolOutputDelta     EventType = "tool_output_delta"
	EventToolCompleted       EventType = "tool_completed"
	EventError               EventType = "error"
	EventInterrupted         EventType = "interrupted"
	EventTurnCompleted       EventType = "turn_completed"
	EventUsageUpdate         EventType = "usage_update"
)

// ErrorKind mirrors providers.ErrorKind, including the Internal category
// also used for failures that never reached a provider (e.g. the channel
// closing unexpectedly).
type ErrorKind string

const (
	ErrorHTTPStatus ErrorKind = "http_status"
	ErrorTimeout    ErrorKind = "timeout"
	ErrorParse      ErrorKind = "parse"
	ErrorAPIError   ErrorKind = "api_error"
	ErrorInternal   ErrorKind = "internal"
)

func errorKindFromProvider(k providers.ErrorKind) ErrorKind {
	switch k {
	case providers.ErrorHTTPStatus:
		return ErrorHTTPStatus
	case providers.ErrorTimeout:
		return ErrorTimeout
	case providers.ErrorParse:
		return ErrorParse
	case providers.ErrorAPIError:
		return ErrorAPIError
	default:
		return ErrorInternal
	}
}

// AgentEvent is the event vocabulary the turn loop publishes for a TUI,
// CLI, or thread logger to consume. Only the fields relevant to Type are
// meaningful, following the same flattened-struct convention as
// providers.Event.
type AgentEvent struct {
	Type EventType

	// ReasoningDelta / AssistantDelta
	Text string

	// ReasoningCompleted
	Reasoning providers.ContentBlock

	// AssistantCompleted
	FinalText string

	// ToolRequested / ToolInputCompleted / ToolInputDelta / ToolStarted
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage
	Delta     string

	// ToolOutputDelta
	Chunk string

	// ToolCompleted
	ToolResult toolrun.ToolOutput

	// Error
	ErrorKind    ErrorKind
	ErrorMessage string
	ErrorDetails string

	// Interrupted
	PartialContent string

	// TurnCompleted
	Messages []providers.Message

	// UsageUpdate
	Usage providers.Usage
}

func (e AgentEvent) isTerminal() bool {
	switch e.Type {
	case EventTurnCompleted, EventInterrupted, EventError:
		return true
	default:
		return false
	}
}
