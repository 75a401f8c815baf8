package providers

// EventType discriminates the normalized stream-event union every
// provider parser emits into, per spec.md 4.1.
type EventType string

const (
	EventMessageStart            EventType = "message_start"
	EventContentBlockStart       EventType = "content_block_start"
	EventTextDelta                EventType = "text_delta"
	EventInputJSONDelta            EventType = "input_json_delta"
	EventReasoningDelta            EventType = "reasoning_delta"
	EventReasoningSignatureDelta   EventType = "reasoning_signature_delta"
	EventReasoningCompleted        EventType = "reasoning_completed"
	EventContentBlockCompleted     EventType = "content_block_completed"
	EventMessageDelta              EventType = "message_delta"
	EventMessageCompleted          EventType = "message_completed"
	EventPing                      EventType = "ping"
	EventError                     EventType = "error"
)

// BlockKind distinguishes the kinds of content block a ContentBlockStart
// can open.
type BlockKind string

const (
	BlockKindText      BlockKind = "text"
	BlockKindReasoning BlockKind = "reasoning"
	BlockKindToolUse   BlockKind = "tool_use"
)

// Event is the normalized stream event every per-provider parser produces.
// Only the fields relevant to Type are meaningful; this mirrors the
// wire-event tagged unions each provider actually sends, flattened into
// one Go struct for simplicity of construction and pattern-matching via
// a type switch on Type.
type Event struct {
	Type EventType

	// MessageStart
	Model        string
	InitialUsage Usage

	// ContentBlockStart / *Delta / ContentBlockCompleted / ReasoningCompleted
	Index int
	Kind  BlockKind
	// ToolUse block metadata, present on ContentBlockStart for BlockKindToolUse.
	ToolUseID string
	ToolName  string

	// TextDelta / InputJSONDelta / ReasoningDelta
	Text string

	// ReasoningSignatureDelta
	Signature string

	// ReasoningCompleted (OpenAI-flavor replay payload)
	ReasoningID               string
	ReasoningEncryptedContent string
	ReasoningSummary          string

	// MessageDelta / MessageCompleted
	StopReason   StopReason
	DeltaUsage   Usage

	// Error
	ErrorType    string
	ErrorMessage string
}

func newEvent(t EventType) Event { return Event{Type: t} }
