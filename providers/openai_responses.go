package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"zdx/common"
	"zdx/secretmanager"
)

const openaiResponsesDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIResponsesProvider implements Client against the OpenAI Responses
// API via the official openai-go/v3 client, per spec.md 4.4 and 7.
type OpenAIResponsesProvider struct {
	BaseURL string
	HTTP    *http.Client
	Secrets secretmanager.SecretManager
}

func NewOpenAIResponsesProvider(secrets secretmanager.SecretManager) *OpenAIResponsesProvider {
	return &OpenAIResponsesProvider{
		BaseURL: openaiResponsesDefaultBaseURL,
		HTTP:    &http.Client{Timeout: 45 * time.Minute},
		Secrets: secrets,
	}
}

func (p *OpenAIResponsesProvider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return &http.Client{Timeout: 45 * time.Minute}
}

func (p *OpenAIResponsesProvider) Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error) {
	apiKey, err := p.Secrets.GetSecret("OPENAI_API_KEY")
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(p.httpClient())}
	if p.BaseURL != "" && p.BaseURL != openaiResponsesDefaultBaseURL {
		clientOpts = append(clientOpts, option.WithBaseURL(p.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	params, err := p.buildRequest(req)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	stream := client.Responses.NewStreaming(ctx, params)

	resp, err := decodeResponsesStream(stream, req.Model, eventCh)
	if err != nil {
		if apiErr, ok := asOpenAIAPIError(err); ok {
			return nil, apiErr
		}
		return nil, NewTimeoutError(err.Error())
	}
	return resp, nil
}

// asOpenAIAPIError recognizes the SDK's *openai.Error (an HTTP-status
// wrapped response) and re-taxonomizes it per spec.md 7.
func asOpenAIAPIError(err error) (*StreamError, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewHTTPStatusError(apiErr.StatusCode, apiErr.Error()), true
	}
	return nil, false
}

func (p *OpenAIResponsesProvider) buildRequest(req Request) (responses.ResponseNewParams, error) {
	items, err := messagesToResponsesInput(req.Messages)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Model: openai.ChatModel(req.Model),
		Store: openai.Bool(false),
	}
	if req.System != "" {
		params.Instructions = param.NewOpt(req.System)
	}

	if len(req.Tools) > 0 {
		tools, err := openaiResponsesFromTools(req.Tools)
		if err != nil {
			return responses.ResponseNewParams{}, err
		}
		params.Tools = tools
	}

	if req.ThinkingLevel.IsEnabled() {
		params.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		params.Reasoning.Effort = shared.ReasoningEffort(req.ThinkingLevel.EffortLabel())
		params.Reasoning.Summary = shared.ReasoningSummaryDetailed
	}

	return params, nil
}

func openaiResponsesFromTools(tools []common.ToolDefinition) ([]responses.ToolUnionParam, error) {
	result := make([]responses.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		params, err := toolSchemaToMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("converting schema for tool %s: %w", tool.Name, err)
		}
		result = append(result, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        tool.Name,
				Description: param.NewOpt(tool.Description),
				Parameters:  params,
			},
		})
	}
	return result, nil
}

func toolSchemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// splitCallJoinedID separates the internal "call_id|id" join used to carry
// both OpenAI identifiers on one ToolUseID, per spec.md 4.3.
func splitCallJoinedID(joined string) (callID, id string) {
	if idx := strings.IndexByte(joined, '|'); idx >= 0 {
		return joined[:idx], joined[idx+1:]
	}
	return joined, ""
}

func joinCallID(callID, id string) string {
	if id == "" {
		return callID
	}
	return callID + "|" + id
}

func messagesToResponsesInput(messages []Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam

	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				if msg.Role == RoleAssistant {
					items = append(items, responses.ResponseInputItemParamOfOutputMessage(
						[]responses.ResponseOutputMessageContentUnionParam{
							{OfOutputText: &responses.ResponseOutputTextParam{Text: block.Text}},
						},
						"",
						responses.ResponseOutputMessageStatusCompleted,
					))
				} else {
					items = append(items, responses.ResponseInputItemParamOfMessage(block.Text, responses.EasyInputMessageRoleUser))
				}

			case BlockToolUse:
				callID, id := splitCallJoinedID(block.ToolUseID)
				item := responses.ResponseInputItemParamOfFunctionCall(string(block.ToolInput), callID, block.ToolName)
				if id != "" && item.OfFunctionCall != nil {
					item.OfFunctionCall.ID = param.NewOpt(id)
				}
				items = append(items, item)

			case BlockToolResult:
				callID, _ := splitCallJoinedID(block.ToolResultForID)
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(callID, block.ToolResultText))

			case BlockReasoning:
				if block.Replay == nil || block.Replay.Kind != ReplayOpenAI {
					continue // unsigned reasoning dropped, per spec.md invariant
				}
				reasoning := responses.ResponseReasoningItemParam{ID: block.Replay.ID}
				if block.ReasoningText != "" {
					reasoning.Content = append(reasoning.Content, responses.ResponseReasoningItemContentParam{Text: block.ReasoningText})
					reasoning.Summary = append(reasoning.Summary, responses.ResponseReasoningItemSummaryParam{Text: block.ReasoningText})
				}
				if block.Replay.EncryptedContent != "" {
					reasoning.EncryptedContent = param.NewOpt(block.Replay.EncryptedContent)
				}
				items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &reasoning})

			case BlockImage:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)

			default:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)
			}
		}
	}

	return items, nil
}

// ResponsesEventStream is the subset of *ssestream.Stream[responses.ResponseStreamEventUnion]
// (as returned by client.Responses.NewStreaming) that decodeResponsesStream
// needs, narrowed to an interface so tests can drive it with a fake.
type ResponsesEventStream interface {
	Next() bool
	Current() responses.ResponseStreamEventUnion
	Err() error
}

// decodeResponsesStream drains the SDK's typed event stream, translating
// each responses.ResponseStreamEventUnion into the normalized Event
// vocabulary (events.go), mirroring llm2's OpenAIResponsesProvider.Stream
// loop but accumulating directly into our own Message shape instead of a
// side list of llm2 events.
func decodeResponsesStream(stream ResponsesEventStream, requestedModel string, eventCh chan<- Event) (*MessageResponse, error) {
	accum := Message{Role: RoleAssistant}
	reasoningItemIndexByID := map[string]int{}
	var stopReason StopReason
	var usage Usage
	model := requestedModel

	for stream.Next() {
		data := stream.Current()

		switch evt := data.AsAny().(type) {
		case responses.ResponseCompletedEvent:
			resp := evt.Response
			if resp.IncompleteDetails.Reason != "" {
				stopReason = StopMaxTokens
			} else {
				stopReason = stopReasonFromOutput(accum.Content)
			}
			if resp.Usage.InputTokens > 0 {
				usage.InputTokens = int(resp.Usage.InputTokens)
			}
			if resp.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(resp.Usage.OutputTokens)
			}

			for _, output := range resp.Output {
				if item, ok := output.AsAny().(responses.ResponseReasoningItem); ok {
					if idx, ok := reasoningItemIndexByID[item.ID]; ok {
						sig := reasoningSummaryText(item.Summary)
						accum.Content[idx].Replay = &ReplayToken{Kind: ReplayOpenAI, ID: item.ID, EncryptedContent: item.EncryptedContent}
						eventCh <- Event{Type: EventReasoningCompleted, Index: idx, ReasoningID: item.ID, ReasoningEncryptedContent: item.EncryptedContent, ReasoningSummary: sig}
					}
				}
			}

			eventCh <- Event{Type: EventMessageCompleted, StopReason: stopReason, DeltaUsage: usage}

		case responses.ResponseContentPartAddedEvent:
			idx := int(evt.OutputIndex)
			switch part := evt.Part.AsAny().(type) {
			case responses.ResponseOutputText:
				accum.Content = append(padToIndex(accum.Content, idx), TextBlock(part.Text))
				eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindText}
			case responses.ResponseContentPartAddedEventPartReasoningText:
				accum.Content = append(padToIndex(accum.Content, idx), ReasoningBlock(part.Text, nil))
				eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindReasoning}
			}

		case responses.ResponseOutputItemAddedEvent:
			idx := int(evt.OutputIndex)
			switch item := evt.Item.AsAny().(type) {
			case responses.ResponseFunctionToolCall:
				id := joinCallID(item.CallID, item.ID)
				accum.Content = append(padToIndex(accum.Content, idx), ToolUseBlock(id, item.Name, nil))
				eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindToolUse, ToolUseID: id, ToolName: item.Name}
			case responses.ResponseReasoningItem:
				reasoningItemIndexByID[item.ID] = idx
				accum.Content = append(padToIndex(accum.Content, idx), ReasoningBlock(reasoningTextFrom(item.Content), &ReplayToken{Kind: ReplayOpenAI, ID: item.ID}))
				eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindReasoning}
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			idx := int(evt.OutputIndex)
			if idx < len(accum.Content) {
				accum.Content[idx].ToolInput = append(accum.Content[idx].ToolInput, evt.Delta...)
			}
			eventCh <- Event{Type: EventInputJSONDelta, Index: idx, Text: evt.Delta}

		case responses.ResponseTextDeltaEvent:
			idx := int(evt.OutputIndex)
			setText(&accum, idx, evt.Delta)
			eventCh <- Event{Type: EventTextDelta, Index: idx, Text: evt.Delta}

		case responses.ResponseReasoningTextDeltaEvent:
			idx := int(evt.OutputIndex)
			appendReasoning(&accum, idx, evt.Delta)
			eventCh <- Event{Type: EventReasoningDelta, Index: idx, Text: evt.Delta}

		case responses.ResponseReasoningSummaryTextDeltaEvent:
			idx := int(evt.OutputIndex)
			appendReasoning(&accum, idx, evt.Delta)
			eventCh <- Event{Type: EventReasoningDelta, Index: idx, Text: evt.Delta}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &MessageResponse{Model: model, Output: accum, StopReason: stopReason, Usage: usage}, nil
}

func stopReasonFromOutput(content []ContentBlock) StopReason {
	for _, b := range content {
		if b.Type == BlockToolUse {
			return StopToolUse
		}
	}
	return StopEndTurn
}

func reasoningTextFrom(content []responses.ResponseReasoningItemContent) string {
	var sb strings.Builder
	for _, c := range content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func reasoningSummaryText(summary []responses.ResponseReasoningItemSummary) string {
	var sb strings.Builder
	for _, s := range summary {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func padToIndex(content []ContentBlock, idx int) []ContentBlock {
	for len(content) < idx {
		content = append(content, ContentBlock{})
	}
	return content
}

func setText(msg *Message, idx int, delta string) {
	if idx < len(msg.Content) {
		msg.Content[idx].Text += delta
	}
}

func appendReasoning(msg *Message, idx int, delta string) {
	if idx < len(msg.Content) {
		msg.Content[idx].ReasoningText += delta
	}
}
