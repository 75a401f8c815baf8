package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"zdx/common"
	"zdx/secretmanager"
)

const (
	anthropicDefaultBaseURL   = "https://api.anthropic.com"
	anthropicBetaInterleave   = "interleaved-thinking-2025-05-14"
	anthropicOAuthBetaHeaders = "oauth-2025-04-20,claude-code-20250219,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14"
	anthropicOAuthSystem      = "You are Claude Code, Anthropic's official CLI for Claude."
)

// anthropic4Family matches Claude 4 model ids, including the 4.6 line;
// isAnthropic4NonAdaptive combines it with anthropic46Family to select the
// non-4.6 models that get the interleaved-thinking beta header, per
// spec.md 4.4.
var anthropic4Family = regexp.MustCompile(`claude-(opus|sonnet|haiku)-4(?:-\d+)?$`)
var anthropic46Family = regexp.MustCompile(`claude-(opus|sonnet|haiku)-4-6`)

// AnthropicProvider implements Client against the Anthropic Messages API
// via the official anthropic-sdk-go client, per spec.md 4.4 and 7. Request
// building and stream decoding both go through the SDK's typed params and
// event union rather than a hand-rolled wire format.
type AnthropicProvider struct {
	BaseURL string
	HTTP    *http.Client
	Secrets secretmanager.SecretManager
}

func NewAnthropicProvider(secrets secretmanager.SecretManager) *AnthropicProvider {
	return &AnthropicProvider{
		BaseURL: anthropicDefaultBaseURL,
		HTTP:    &http.Client{Timeout: 45 * time.Minute},
		Secrets: secrets,
	}
}

func isAnthropic4NonAdaptive(model string) bool {
	return anthropic4Family.MatchString(model) && !anthropic46Family.MatchString(model)
}

var anthropicIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeAnthropicToolID replaces any character outside [A-Za-z0-9_-] with
// '_'. It is idempotent. It is not collision-free: every illegal character
// becomes the same '_', so ids that differ only in which illegal character
// (or '_') sits at a position, e.g. "a!b" and "a_b", map to the same id.
func sanitizeAnthropicToolID(id string) string {
	return anthropicIDSanitizer.ReplaceAllString(id, "_")
}

func (p *AnthropicProvider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return &http.Client{Timeout: 45 * time.Minute}
}

func (p *AnthropicProvider) baseURLOption() []option.RequestOption {
	if p.BaseURL == "" || p.BaseURL == anthropicDefaultBaseURL {
		return nil
	}
	return []option.RequestOption{option.WithBaseURL(p.BaseURL)}
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error) {
	oauth, err := secretmanager.FetchOAuthCredentials(p.Secrets, secretmanager.AnthropicOAuthSecretName, nil)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	clientOpts := append([]option.RequestOption{option.WithHTTPClient(p.httpClient())}, p.baseURLOption()...)
	useOAuth := oauth != nil
	if useOAuth {
		clientOpts = append(clientOpts,
			option.WithHeader("Authorization", "Bearer "+oauth.AccessToken),
			option.WithHeader("anthropic-beta", anthropicOAuthBetaHeaders))
	} else {
		apiKey, err := p.Secrets.GetSecret("ANTHROPIC_API_KEY")
		if err != nil {
			return nil, NewInternalError(err.Error())
		}
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
		if isAnthropic4NonAdaptive(req.Model) {
			clientOpts = append(clientOpts, option.WithHeader("anthropic-beta", anthropicBetaInterleave))
		}
	}
	client := anthropic.NewClient(clientOpts...)

	params, err := p.buildRequest(req, useOAuth)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	stream := client.Messages.NewStreaming(ctx, params)

	resp, err := decodeAnthropicStream(stream, req.Model, eventCh)
	if err != nil {
		if apiErr, ok := asAnthropicAPIError(err); ok {
			return nil, apiErr
		}
		return nil, NewTimeoutError(err.Error())
	}
	return resp, nil
}

// asAnthropicAPIError recognizes the SDK's *anthropic.Error (an HTTP-status
// wrapped response) and re-taxonomizes it per spec.md 7.
func asAnthropicAPIError(err error) (*StreamError, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewHTTPStatusError(apiErr.StatusCode, apiErr.Error()), true
	}
	return nil, false
}

func (p *AnthropicProvider) buildRequest(req Request, useOAuth bool) (anthropic.MessageNewParams, error) {
	messages, err := messagesToAnthropicParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	applyLastUserCacheControl(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}

	var systemBlocks []anthropic.TextBlockParam
	if useOAuth {
		// OAuth tokens require the Claude Code system prompt, or the API
		// returns a 400; it is prepended ahead of any caller-supplied system
		// text.
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: anthropicOAuthSystem})
	}
	if req.System != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.System})
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		tools, err := toolsToAnthropicParams(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	if req.ThinkingLevel.IsEnabled() {
		if !anthropic46Family.MatchString(req.Model) && req.ThinkingLevel == common.ThinkingXHigh {
			return anthropic.MessageNewParams{}, fmt.Errorf("thinking level %q requires a claude-*-4-6 model, got %q", req.ThinkingLevel, req.Model)
		}
		budget := int64(req.ThinkingLevel.BudgetTokens(req.MaxTokens))
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + 1000
		}
	}

	return params, nil
}

// applyLastUserCacheControl marks the final content block of the final user
// message as ephemeral-cached, per spec.md invariant 8.
func applyLastUserCacheControl(messages []anthropic.MessageParam) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != anthropic.MessageParamRoleUser {
			continue
		}
		if len(messages[i].Content) == 0 {
			return
		}
		last := &messages[i].Content[len(messages[i].Content)-1]
		setAnthropicCacheControl(last)
		return
	}
}

func setAnthropicCacheControl(block *anthropic.ContentBlockParamUnion) {
	cc := anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = cc
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = cc
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = cc
	case block.OfImage != nil:
		block.OfImage.CacheControl = cc
	}
}

func messagesToAnthropicParams(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var currentRole anthropic.MessageParamRole
	var currentBlocks []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(currentBlocks) == 0 {
			return
		}
		if currentRole == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(currentBlocks...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(currentBlocks...))
		}
		currentBlocks = nil
	}

	for _, msg := range messages {
		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if role != currentRole && len(currentBlocks) > 0 {
			flush()
		}
		currentRole = role

		for _, block := range msg.Content {
			ab, err := contentBlockToAnthropicParam(block)
			if err != nil {
				return nil, err
			}
			currentBlocks = append(currentBlocks, ab)
		}
	}
	flush()
	return result, nil
}

func contentBlockToAnthropicParam(block ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch block.Type {
	case BlockText:
		return anthropic.NewTextBlock(block.Text), nil

	case BlockReasoning:
		if block.Replay != nil && block.Replay.Kind == ReplayAnthropic && block.Replay.Signature != "" {
			return anthropic.NewThinkingBlock(block.Replay.Signature, block.ReasoningText), nil
		}
		return anthropic.NewTextBlock(block.ReasoningText), nil

	case BlockImage:
		return anthropic.NewImageBlockBase64(block.MimeType, block.Base64Data), nil

	case BlockToolUse:
		var args map[string]any
		if len(block.ToolInput) > 0 {
			if err := json.Unmarshal(block.ToolInput, &args); err != nil {
				args = map[string]any{"invalid_json_stringified": string(block.ToolInput)}
			}
		} else {
			args = map[string]any{}
		}
		return anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    sanitizeAnthropicToolID(block.ToolUseID),
				Name:  block.ToolName,
				Input: args,
			},
		}, nil

	case BlockToolResult:
		return anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: sanitizeAnthropicToolID(block.ToolResultForID),
				IsError:   anthropic.Bool(block.ToolResultIsErr),
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: block.ToolResultText}},
				},
			},
		}, nil

	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported content block type: %s", block.Type)
	}
}

func toolsToAnthropicParams(tools []common.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		props := map[string]any{}
		var required []string
		if tool.InputSchema != nil {
			if tool.InputSchema.Properties != nil {
				for pair := tool.InputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
					props[pair.Key] = pair.Value
				}
			}
			required = tool.InputSchema.Required
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.Opt(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       constant.Object("object"),
					Properties: props,
					Required:   required,
				},
			},
		}
	}
	return result, nil
}

// AnthropicEventStream is the subset of *ssestream.Stream[anthropic.MessageStreamEventUnion]
// (as returned by client.Messages.NewStreaming) that decodeAnthropicStream
// needs, narrowed to an interface so tests can drive it with a fake.
type AnthropicEventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}

// decodeAnthropicStream drains the SDK's typed event stream, translating
// each anthropic.MessageStreamEventUnion into the normalized Event
// vocabulary (events.go) and accumulating the response via the SDK's own
// Message.Accumulate, mirroring llm2's AnthropicProvider.Stream loop.
func decodeAnthropicStream(stream AnthropicEventStream, requestedModel string, eventCh chan<- Event) (*MessageResponse, error) {
	var finalMessage anthropic.Message
	blockIndexMap := make(map[int64]int)
	var blockKinds []BlockKind
	var sigBuf []string
	accum := Message{Role: RoleAssistant}
	var usage Usage
	var stopReason StopReason
	model := requestedModel
	started, stopped := 0, 0

	for stream.Next() {
		event := stream.Current()
		if err := finalMessage.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate message: %w", err)
		}

		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			if string(evt.Message.Model) != "" {
				model = string(evt.Message.Model)
			}
			usage.InputTokens = int(evt.Message.Usage.InputTokens) + int(evt.Message.Usage.CacheReadInputTokens) + int(evt.Message.Usage.CacheCreationInputTokens)
			usage.CacheReadTokens = int(evt.Message.Usage.CacheReadInputTokens)
			usage.CacheWriteTokens = int(evt.Message.Usage.CacheCreationInputTokens)
			eventCh <- Event{Type: EventMessageStart, Model: model, InitialUsage: usage}

		case anthropic.ContentBlockStartEvent:
			idx := len(blockKinds)
			blockIndexMap[evt.Index] = idx
			var kind BlockKind
			var toolID, toolName string
			switch evt.ContentBlock.Type {
			case "text":
				kind = BlockKindText
				accum.Content = append(accum.Content, TextBlock(""))
			case "tool_use":
				kind = BlockKindToolUse
				toolID, toolName = evt.ContentBlock.ID, evt.ContentBlock.Name
				accum.Content = append(accum.Content, ToolUseBlock(toolID, toolName, nil))
			case "thinking":
				kind = BlockKindReasoning
				accum.Content = append(accum.Content, ReasoningBlock("", nil))
				sigBuf = append(sigBuf, "")
			default:
				return nil, fmt.Errorf("unsupported content block type: %s", evt.ContentBlock.Type)
			}
			blockKinds = append(blockKinds, kind)
			started++
			eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: kind, ToolUseID: toolID, ToolName: toolName}

		case anthropic.ContentBlockDeltaEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				return nil, fmt.Errorf("delta for unknown block index %d", evt.Index)
			}
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				accum.Content[idx].Text += delta.Text
				eventCh <- Event{Type: EventTextDelta, Index: idx, Text: delta.Text}
			case anthropic.InputJSONDelta:
				eventCh <- Event{Type: EventInputJSONDelta, Index: idx, Text: delta.PartialJSON}
			case anthropic.ThinkingDelta:
				accum.Content[idx].ReasoningText += delta.Thinking
				eventCh <- Event{Type: EventReasoningDelta, Index: idx, Text: delta.Thinking}
			case anthropic.SignatureDelta:
				sigBuf[reasoningSlot(blockKinds, idx)] += delta.Signature
				eventCh <- Event{Type: EventReasoningSignatureDelta, Index: idx, Signature: delta.Signature}
			}

		case anthropic.ContentBlockStopEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				return nil, fmt.Errorf("stop for unknown block index %d", evt.Index)
			}
			stopped++
			if blockKinds[idx] == BlockKindReasoning {
				sig := sigBuf[reasoningSlot(blockKinds, idx)]
				accum.Content[idx].Replay = &ReplayToken{Kind: ReplayAnthropic, Signature: sig}
				eventCh <- Event{Type: EventReasoningCompleted, Index: idx, Signature: sig}
			}
			if blockKinds[idx] == BlockKindToolUse {
				eventCh <- Event{Type: EventContentBlockCompleted, Index: idx, Kind: blockKinds[idx], ToolUseID: accum.Content[idx].ToolUseID, ToolName: accum.Content[idx].ToolName}
			} else {
				eventCh <- Event{Type: EventContentBlockCompleted, Index: idx, Kind: blockKinds[idx]}
			}

		case anthropic.MessageDeltaEvent:
			stopReason = mapAnthropicStopReason(string(evt.Delta.StopReason))
			delta := Usage{OutputTokens: int(evt.Usage.OutputTokens)}
			usage.OutputTokens = int(evt.Usage.OutputTokens)
			eventCh <- Event{Type: EventMessageDelta, StopReason: stopReason, DeltaUsage: delta}

		case anthropic.MessageStopEvent:
			// usage was already reported by MessageStart and MessageDelta.
			eventCh <- Event{Type: EventMessageCompleted, StopReason: stopReason}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	if started != stopped {
		return nil, fmt.Errorf("stream truncated: started %d blocks but stopped %d", started, stopped)
	}

	responseModel := string(finalMessage.Model)
	if responseModel == "" {
		responseModel = model
	}
	return &MessageResponse{Model: responseModel, Output: accum, StopReason: stopReason, Usage: usage}, nil
}

// reasoningSlot finds the ordinal position of idx among reasoning blocks
// seen so far, since signature text accumulates in a side buffer indexed by
// reasoning-block-order rather than global content-block index.
func reasoningSlot(kinds []BlockKind, idx int) int {
	slot := 0
	for i := 0; i < idx; i++ {
		if kinds[i] == BlockKindReasoning {
			slot++
		}
	}
	return slot
}

func mapAnthropicStopReason(raw string) StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}
