package providers

import "encoding/json"

// Role of a Message, per spec.md 3. Tool results are carried inside a
// user message as a ToolResult content block rather than a dedicated
// "tool" role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlockType discriminates the ContentBlock sum type.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockImage      ContentBlockType = "image"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
	BlockReasoning  ContentBlockType = "reasoning"
)

// ReplayTokenKind discriminates the ReplayToken sum type.
type ReplayTokenKind string

const (
	ReplayAnthropic ReplayTokenKind = "anthropic"
	ReplayGemini    ReplayTokenKind = "gemini"
	ReplayOpenAI    ReplayTokenKind = "openai"
)

// ReplayToken is opaque provider-specific continuity data attached to a
// Reasoning block so a follow-up request can resume cached thinking
// (spec.md 3). Each provider's request builder matches its own kind and
// ignores tokens from other providers.
type ReplayToken struct {
	Kind ReplayTokenKind `json:"kind"`

	// Anthropic / Gemini: an opaque signature bound to the thinking block.
	Signature string `json:"signature,omitempty"`

	// OpenAI: an opaque reasoning-item id plus its encrypted payload.
	ID               string `json:"id,omitempty"`
	EncryptedContent string `json:"encryptedContent,omitempty"`
}

// ContentBlock is the sum type from spec.md 3: exactly one of the
// pointer/value fields relevant to Type is meaningful.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text
	Text string `json:"text,omitempty"`

	// Image
	MimeType   string `json:"mimeType,omitempty"`
	Base64Data string `json:"base64Data,omitempty"`

	// ToolUse
	ToolUseID   string          `json:"toolUseId,omitempty"`
	ToolName    string          `json:"toolName,omitempty"`
	ToolInput   json.RawMessage `json:"toolInput,omitempty"`

	// ToolResult
	ToolResultForID string `json:"toolResultForId,omitempty"`
	ToolResultText  string `json:"toolResultText,omitempty"`
	ToolResultIsErr bool   `json:"toolResultIsError,omitempty"`

	// Reasoning
	ReasoningText string       `json:"reasoningText,omitempty"`
	Replay        *ReplayToken `json:"replay,omitempty"`

	// CacheControl carries an opt-in prefix-cache directive (Anthropic's
	// "ephemeral" marker); empty means no cache marker.
	CacheControl string `json:"cacheControl,omitempty"`
}

func TextBlock(text string) ContentBlock { return ContentBlock{Type: BlockText, Text: text} }

func ImageBlock(mimeType, base64Data string) ContentBlock {
	return ContentBlock{Type: BlockImage, MimeType: mimeType, Base64Data: base64Data}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

func ToolResultBlock(toolUseID, text string, isErr bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResultForID: toolUseID, ToolResultText: text, ToolResultIsErr: isErr}
}

func ReasoningBlock(text string, replay *ReplayToken) ContentBlock {
	return ContentBlock{Type: BlockReasoning, ReasoningText: text, Replay: replay}
}

// Message is an ordered (role, content) pair, per spec.md 3.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// StopReason is the normalized terminal classification for a turn.
type StopReason string

const (
	StopEndTurn   StopReason = "stop"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// Usage carries token accounting deltas for one request, per spec.md 3.
type Usage struct {
	InputTokens       int `json:"inputTokens"`
	OutputTokens      int `json:"outputTokens"`
	CacheReadTokens   int `json:"cacheReadTokens"`
	CacheWriteTokens  int `json:"cacheWriteTokens"`
}
