package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"zdx/secretmanager"
	"zdx/sse"
)

const (
	geminiCCAEndpoint   = "https://cloudcode-pa.googleapis.com"
	geminiCCAStreamPath = "/v1internal:streamGenerateContent"
	geminiCCAUserAgent  = "GeminiCLI/0.23.0 (darwin; arm64)"
)

// GeminiCloudCodeProvider implements Client against Gemini's OAuth-mediated
// Cloud Code Assist endpoint, the wire variant Gemini CLI itself uses: same
// generateContent response shape as GeminiProvider but wrapped under a
// "response" envelope, and the request wrapped with project/session
// metadata, per spec.md 4.3/4.4.
//
// google.golang.org/genai only targets the public Gemini API and Vertex AI
// backends; it has no hook for this undocumented internal endpoint, its
// OAuth bearer auth, or its project/session request envelope, so this
// provider keeps talking the wire protocol directly rather than going
// through the SDK client used by GeminiProvider.
type GeminiCloudCodeProvider struct {
	HTTP      *http.Client
	Secrets   secretmanager.SecretManager
	SessionID string

	promptSeq atomic.Uint32
}

func NewGeminiCloudCodeProvider(secrets secretmanager.SecretManager) *GeminiCloudCodeProvider {
	return &GeminiCloudCodeProvider{
		HTTP:      &http.Client{Timeout: 10 * time.Minute},
		Secrets:   secrets,
		SessionID: uuid.NewString(),
	}
}

// The CCA endpoint's "request" field is shaped exactly like the public
// generateContent request body, so it's modeled with the same hand-rolled
// wire types GeminiProvider used before it moved onto the official SDK.
type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	Thought          bool            `json:"thought,omitempty"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
	InlineData       *geminiInline   `json:"inlineData,omitempty"`
}

type geminiFuncCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFuncResp struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiThinkingConfig struct {
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
	ThinkingBudget  *int   `json:"thinkingBudget,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type cloudCodeRequest struct {
	Project      string        `json:"project"`
	Model        string        `json:"model"`
	Request      geminiRequest `json:"request"`
	UserPromptID string        `json:"user_prompt_id"`
	SessionID    string        `json:"session_id"`
}

func (p *GeminiCloudCodeProvider) Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error) {
	oauth, err := secretmanager.FetchOAuthCredentials(p.Secrets, secretmanager.GeminiOAuthSecretName, nil)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	if oauth == nil {
		return nil, NewInternalError("gemini OAuth credentials not configured")
	}

	body, reasoningModel, err := p.buildRequest(req, oauth.ProjectID)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	url := geminiCCAEndpoint + geminiCCAStreamPath + "?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	httpReq.Header.Set("authorization", "Bearer "+oauth.AccessToken)
	httpReq.Header.Set("user-agent", geminiCCAUserAgent)
	httpReq.Header.Set("x-goog-api-client", "gl-node/22.16.0")
	httpReq.Header.Set("accept", "*/*")
	httpReq.Header.Set("content-type", "application/json")

	resp, err := p.HTTP.Do(httpReq)
	if err != nil {
		return nil, NewTimeoutError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, NewHTTPStatusError(resp.StatusCode, string(data))
	}

	return parseGeminiCCAStream(resp.Body, req.Model, reasoningModel, eventCh)
}

func (p *GeminiCloudCodeProvider) buildRequest(req Request, projectID string) ([]byte, bool, error) {
	reasoningModel := req.ThinkingLevel.IsEnabled()

	contents, err := messagesToGeminiWire(req.Messages, reasoningModel)
	if err != nil {
		return nil, false, err
	}

	inner := geminiRequest{Contents: contents}
	if req.System != "" {
		inner.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	for _, tool := range req.Tools {
		params, err := toolSchemaToMap(tool.InputSchema)
		if err != nil {
			return nil, false, fmt.Errorf("converting schema for tool %s: %w", tool.Name, err)
		}
		inner.Tools = append(inner.Tools, geminiTool{FunctionDeclarations: []geminiFunctionDecl{{Name: tool.Name, Description: tool.Description, Parameters: params}}})
	}

	genConfig := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	if reasoningModel {
		tc := &geminiThinkingConfig{IncludeThoughts: true}
		if strings.Contains(req.Model, "2.5") {
			budget := int(geminiLegacyThinkingBudget[strings.ToLower(string(req.ThinkingLevel))])
			if budget == 0 {
				budget = req.ThinkingLevel.BudgetTokens(req.MaxTokens)
			}
			tc.ThinkingBudget = &budget
		} else {
			tc.ThinkingLevel = strings.ToUpper(string(req.ThinkingLevel))
		}
		genConfig.ThinkingConfig = tc
	}
	inner.GenerationConfig = genConfig

	seq := p.promptSeq.Add(1)
	out := cloudCodeRequest{
		Project:      projectID,
		Model:        req.Model,
		Request:      inner,
		UserPromptID: fmt.Sprintf("%s-%d", p.SessionID, seq),
		SessionID:    p.SessionID,
	}
	data, err := json.Marshal(out)
	return data, reasoningModel, err
}

func messagesToGeminiWire(messages []Message, reasoningModel bool) ([]geminiContent, error) {
	var out []geminiContent
	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		gc := geminiContent{Role: role}
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				gc.Parts = append(gc.Parts, geminiPart{Text: block.Text})
			case BlockReasoning:
				if !reasoningModel || block.Replay == nil || block.Replay.Kind != ReplayGemini {
					continue // unsigned thought, or non-reasoning model: dropped
				}
				gc.Parts = append(gc.Parts, geminiPart{Text: block.ReasoningText, Thought: true, ThoughtSignature: block.Replay.Signature})
			case BlockImage:
				gc.Parts = append(gc.Parts, geminiPart{InlineData: &geminiInline{MimeType: block.MimeType, Data: block.Base64Data}})
			case BlockToolUse:
				var args map[string]any
				if len(block.ToolInput) > 0 {
					_ = json.Unmarshal(block.ToolInput, &args)
				}
				gc.Parts = append(gc.Parts, geminiPart{FunctionCall: &geminiFuncCall{ID: block.ToolUseID, Name: block.ToolName, Args: args}})
			case BlockToolResult:
				gc.Parts = append(gc.Parts, geminiPart{FunctionResponse: &geminiFuncResp{
					ID:       block.ToolResultForID,
					Response: map[string]any{"output": block.ToolResultText, "error": block.ToolResultIsErr},
				}})
			default:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)
			}
		}
		out = append(out, gc)
	}
	return out, nil
}

type geminiWireResponse struct {
	Candidates    []geminiWireCandidate `json:"candidates"`
	UsageMetadata *geminiWireUsage      `json:"usageMetadata,omitempty"`
}

type geminiWireCandidate struct {
	Content      *geminiContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

type geminiWireUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type cloudCodeWireFrame struct {
	Response json.RawMessage `json:"response"`
}

// parseGeminiCCAStream unwraps the CCA "response" envelope per-frame, then
// runs the same candidate/part coalescing state machine decodeGenaiStream
// uses, against the hand-rolled wire types rather than the SDK's typed
// response (this endpoint's "response" payload resends each open block's
// full cumulative text on every chunk rather than just the new fragment,
// so the block's stored Text/ReasoningText doubles as the previous
// cumulative value and new text is diffed against it for the delta).
func parseGeminiCCAStream(r io.Reader, requestedModel string, reasoningModel bool, eventCh chan<- Event) (*MessageResponse, error) {
	dec := sse.NewDecoder(r)

	state := &geminiStreamState{}
	var usage Usage
	var stopReason StopReason

	closeBlock := func() {
		if !state.blockStarted {
			return
		}
		sig := state.pendingSignature
		state.pendingSignature = ""
		if sig != "" && state.currentKind == BlockKindReasoning {
			state.content[state.currentIdx].Replay = &ReplayToken{Kind: ReplayGemini, Signature: sig}
		}
		eventCh <- Event{Type: EventContentBlockCompleted, Index: state.currentIdx, Kind: state.currentKind, Signature: sig}
		state.blockStarted = false
	}

	emittedToolCalls := map[string]struct{}{}

	for {
		frame, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewParseError(err.Error())
		}

		var envelope cloudCodeWireFrame
		payload := []byte(frame.Data)
		if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Response) > 0 {
			payload = envelope.Response
		}

		var wire geminiWireResponse
		if err := json.Unmarshal(payload, &wire); err != nil {
			return nil, NewParseError(err.Error())
		}

		if wire.UsageMetadata != nil {
			usage.InputTokens = wire.UsageMetadata.PromptTokenCount
			usage.OutputTokens = wire.UsageMetadata.CandidatesTokenCount + wire.UsageMetadata.ThoughtsTokenCount
			usage.CacheReadTokens = wire.UsageMetadata.CachedContentTokenCount
		}
		if len(wire.Candidates) == 0 || wire.Candidates[0].Content == nil {
			continue
		}
		candidate := wire.Candidates[0]
		if candidate.FinishReason != "" {
			stopReason = mapGeminiStopReason(candidate.FinishReason)
		}

		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				argsBytes, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					argsBytes = []byte("{}")
				}
				dedupKey := part.FunctionCall.Name + ":" + string(argsBytes)
				if _, seen := emittedToolCalls[dedupKey]; seen {
					continue
				}
				emittedToolCalls[dedupKey] = struct{}{}

				closeBlock()
				idx := len(state.content)
				id := part.FunctionCall.ID
				if id == "" {
					id = part.FunctionCall.Name
				}
				state.content = append(state.content, ToolUseBlock(id, part.FunctionCall.Name, argsBytes))
				eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindToolUse, ToolUseID: id, ToolName: part.FunctionCall.Name}
				eventCh <- Event{Type: EventInputJSONDelta, Index: idx, Text: string(argsBytes)}
				eventCh <- Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindToolUse, ToolUseID: id, ToolName: part.FunctionCall.Name}

			case part.Text == "" && part.ThoughtSignature != "":
				state.pendingSignature = part.ThoughtSignature

			case part.Text != "" || part.ThoughtSignature != "":
				kind := BlockKindText
				if part.Thought {
					kind = BlockKindReasoning
				}
				hasSig := part.ThoughtSignature != ""
				needNew := !state.blockStarted || state.currentKind != kind || state.currentHasSig || hasSig
				if needNew {
					closeBlock()
					idx := len(state.content)
					state.currentIdx = idx
					state.currentKind = kind
					state.blockStarted = true
					state.currentHasSig = hasSig
					if kind == BlockKindReasoning {
						var replay *ReplayToken
						if hasSig {
							replay = &ReplayToken{Kind: ReplayGemini, Signature: part.ThoughtSignature}
						}
						state.content = append(state.content, ReasoningBlock("", replay))
					} else {
						state.content = append(state.content, TextBlock(""))
					}
					eventCh <- Event{Type: EventContentBlockStart, Index: idx, Kind: kind}
				}
				if part.Text != "" {
					if kind == BlockKindReasoning {
						prev := state.content[state.currentIdx].ReasoningText
						delta := part.Text
						if strings.HasPrefix(part.Text, prev) {
							delta = part.Text[len(prev):]
						}
						state.content[state.currentIdx].ReasoningText = part.Text
						if delta != "" {
							eventCh <- Event{Type: EventReasoningDelta, Index: state.currentIdx, Text: delta}
						}
					} else {
						prev := state.content[state.currentIdx].Text
						delta := part.Text
						if strings.HasPrefix(part.Text, prev) {
							delta = part.Text[len(prev):]
						}
						state.content[state.currentIdx].Text = part.Text
						if delta != "" {
							eventCh <- Event{Type: EventTextDelta, Index: state.currentIdx, Text: delta}
						}
					}
				}
			}
		}
	}

	closeBlock()
	eventCh <- Event{Type: EventMessageCompleted, StopReason: stopReason, DeltaUsage: usage}

	return &MessageResponse{Model: requestedModel, Output: Message{Role: RoleAssistant, Content: state.content}, StopReason: stopReason, Usage: usage}, nil
}
