package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"zdx/secretmanager"
	"zdx/sse"
)

// OpenAIChatProvider implements Client against the OpenAI Chat Completions
// SSE API, per spec.md 4.4, used as-is for OpenAI and as the wire shape
// underneath StepFunProvider's XML-tool-call transform.
type OpenAIChatProvider struct {
	BaseURL     string
	SecretName  string
	HTTP        *http.Client
	Secrets     secretmanager.SecretManager
}

func NewOpenAIChatProvider(baseURL, secretName string, secrets secretmanager.SecretManager) *OpenAIChatProvider {
	return &OpenAIChatProvider{
		BaseURL:    baseURL,
		SecretName: secretName,
		HTTP:       &http.Client{Timeout: 45 * time.Minute},
		Secrets:    secrets,
	}
}

type chatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []chatToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	Index    int              `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model         string            `json:"model"`
	Messages      []chatMessage     `json:"messages"`
	Tools         []chatTool        `json:"tools,omitempty"`
	Stream        bool              `json:"stream"`
	StreamOptions chatStreamOptions `json:"stream_options"`
	MaxTokens     int               `json:"max_completion_tokens,omitempty"`
}

func (p *OpenAIChatProvider) Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	secretName := p.SecretName
	if secretName == "" {
		secretName = "OPENAI_API_KEY"
	}
	apiKey, err := p.Secrets.GetSecret(secretName)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", "Bearer "+apiKey)

	resp, err := p.HTTP.Do(httpReq)
	if err != nil {
		return nil, NewTimeoutError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, NewHTTPStatusError(resp.StatusCode, string(data))
	}

	return parseChatStream(resp.Body, req.Model, req.IncludeReasoningContent, eventCh)
}

func (p *OpenAIChatProvider) buildRequest(req Request) ([]byte, error) {
	messages, err := messagesToChat(req.Messages)
	if err != nil {
		return nil, err
	}
	if req.System != "" {
		messages = append([]chatMessage{{Role: "system", Content: req.System}}, messages...)
	}

	out := chatRequest{
		Model:         req.Model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: chatStreamOptions{IncludeUsage: true},
		MaxTokens:     req.MaxTokens,
	}

	for _, tool := range req.Tools {
		params, err := toolSchemaToMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("converting schema for tool %s: %w", tool.Name, err)
		}
		out.Tools = append(out.Tools, chatTool{Type: "function", Function: chatFunction{Name: tool.Name, Description: tool.Description, Parameters: params}})
	}

	return json.Marshal(out)
}

func messagesToChat(messages []Message) ([]chatMessage, error) {
	var out []chatMessage
	for _, msg := range messages {
		var text string
		var toolCalls []chatToolCall
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				text += block.Text
			case BlockReasoning:
				// chat completions has no reasoning-replay slot; dropped.
			case BlockToolUse:
				input := block.ToolInput
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				toolCalls = append(toolCalls, chatToolCall{
					ID:   block.ToolUseID,
					Type: "function",
					Function: chatToolCallFunc{Name: block.ToolName, Arguments: string(input)},
				})
			case BlockToolResult:
				out = append(out, chatMessage{Role: "tool", Content: block.ToolResultText, ToolCallID: block.ToolResultForID})
				continue
			case BlockImage:
				return nil, fmt.Errorf("image content blocks not supported by chat completions provider")
			default:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)
			}
		}
		if text != "" || len(toolCalls) > 0 {
			out = append(out, chatMessage{Role: string(msg.Role), Content: text, ToolCalls: toolCalls})
		}
	}
	return out, nil
}

type chatWireChunk struct {
	Model   string             `json:"model,omitempty"`
	Choices []chatWireChoice   `json:"choices"`
	Usage   *chatWireUsage     `json:"usage,omitempty"`
}

type chatWireChoice struct {
	Index        int             `json:"index"`
	Delta        chatWireDelta   `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type chatWireDelta struct {
	Content          string         `json:"content,omitempty"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []chatToolCall `json:"tool_calls,omitempty"`
}

type chatWireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// parseChatStream decodes one chat-completions SSE stream. Text deltas go
// to a single text block whose content-block index is allocated when the
// first text arrives; each distinct tool-call index from the wire gets its
// own content-block index allocated on first sight, per spec.md 4.3.
func parseChatStream(r io.Reader, requestedModel string, includeReasoningContent bool, eventCh chan<- Event) (*MessageResponse, error) {
	dec := sse.NewDecoder(r)

	accum := Message{Role: RoleAssistant}
	model := requestedModel
	var usage Usage
	var stopReason StopReason
	textBlockIndex := -1
	toolBlockIndexByWireIndex := map[int]int{}
	textStarted := false

	startBlock := func(kind BlockKind, toolUseID, toolName string) int {
		idx := len(accum.Content)
		switch kind {
		case BlockKindText:
			accum.Content = append(accum.Content, TextBlock(""))
		case BlockKindToolUse:
			accum.Content = append(accum.Content, ToolUseBlock(toolUseID, toolName, nil))
		}
		eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: kind, ToolUseID: toolUseID, ToolName: toolName}
		return idx
	}

	for {
		frame, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewParseError(err.Error())
		}

		var chunk chatWireChunk
		if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
			return nil, NewParseError(err.Error())
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}

		for _, choice := range chunk.Choices {
			if includeReasoningContent && choice.Delta.ReasoningContent != "" {
				// no dedicated reasoning slot for chat completions; carried
				// as a best-effort delta only, never replayed.
				eventCh <- Event{Type: EventReasoningDelta, Text: choice.Delta.ReasoningContent}
			}
			if choice.Delta.Content != "" {
				if !textStarted {
					textBlockIndex = startBlock(BlockKindText, "", "")
					textStarted = true
				}
				accum.Content[textBlockIndex].Text += choice.Delta.Content
				eventCh <- Event{Type: EventTextDelta, Index: textBlockIndex, Text: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx, ok := toolBlockIndexByWireIndex[tc.Index]
				if !ok {
					idx = startBlock(BlockKindToolUse, tc.ID, tc.Function.Name)
					toolBlockIndexByWireIndex[tc.Index] = idx
				}
				if tc.Function.Arguments != "" {
					accum.Content[idx].ToolInput = append(accum.Content[idx].ToolInput, tc.Function.Arguments...)
					eventCh <- Event{Type: EventInputJSONDelta, Index: idx, Text: tc.Function.Arguments}
				}
			}
			switch choice.FinishReason {
			case "stop":
				stopReason = StopEndTurn
			case "tool_calls":
				stopReason = StopToolUse
			case "length":
				stopReason = StopMaxTokens
			}
		}
	}

	eventCh <- Event{Type: EventMessageCompleted, StopReason: stopReason, DeltaUsage: usage}
	return &MessageResponse{Model: model, Output: accum, StopReason: stopReason, Usage: usage}, nil
}
