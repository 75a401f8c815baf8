package providers

import (
	"context"

	"zdx/common"
)

// Request is everything a provider needs to build one turn's request
// body, per spec.md 4.4: message history, the offered tool set, and an
// optional system prompt.
type Request struct {
	Messages []Message
	Tools    []common.ToolDefinition
	System   string

	Model         string
	MaxTokens     int
	ThinkingLevel common.ThinkingLevel

	// IncludeReasoningContent opts into surfacing a chat-completions
	// provider's reasoning_content delta field as EventReasoningDelta.
	// Off by default since the field's semantics vary across the
	// OpenAI-compatible providers that emit it.
	IncludeReasoningContent bool
}

// Client is the provider client facade from spec.md 4.5: one operation,
// streaming normalized events. Implementations MUST NOT close eventCh;
// the caller owns the channel's lifecycle, mirroring the teacher's
// llm2.Provider contract.
type Client interface {
	Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error)
}

// MessageResponse is the finalized, accumulated result of one stream,
// returned alongside the event stream for callers that only need the end
// state (e.g. tests, non-streaming batch callers).
type MessageResponse struct {
	Model      string
	Output     Message
	StopReason StopReason
	Usage      Usage
}
