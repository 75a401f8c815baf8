package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/ksuid"

	"zdx/secretmanager"
)

const stepfunDefaultBaseURL = "https://api.stepfun.ai"

// StepFunProvider wraps OpenAIChatProvider with a text-tool-call transform:
// StepFun models emit tool calls as XML-like text in the content field
// rather than as native tool_calls, per spec.md 4.3.
type StepFunProvider struct {
	inner *OpenAIChatProvider
}

func NewStepFunProvider(secrets secretmanager.SecretManager) *StepFunProvider {
	return &StepFunProvider{inner: NewOpenAIChatProvider(stepfunDefaultBaseURL, "STEPFUN_API_KEY", secrets)}
}

func (p *StepFunProvider) Stream(ctx context.Context, req Request, eventCh chan<- Event) (*MessageResponse, error) {
	req.Messages = convertToolUsesToText(req.Messages)

	innerCh := make(chan Event, 128)
	var innerErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(innerCh)
		_, innerErr = p.inner.Stream(ctx, req, innerCh)
	}()

	tr := newStepfunTransformer()
	for ev := range innerCh {
		for _, out := range tr.handle(ev) {
			eventCh <- out
		}
	}
	<-done
	if innerErr != nil {
		return nil, innerErr
	}

	for _, out := range tr.finish() {
		eventCh <- out
	}

	return &MessageResponse{Model: req.Model, Output: tr.message(), StopReason: tr.stopReason, Usage: tr.usage}, nil
}

// convertToolUsesToText rewrites assistant ToolUse blocks into the XML text
// form StepFun expects in lieu of native tool_calls.
func convertToolUsesToText(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		if msg.Role != RoleAssistant {
			out[i] = msg
			continue
		}
		var blocks []ContentBlock
		var toolText strings.Builder
		flush := func() {
			if toolText.Len() > 0 {
				blocks = append(blocks, TextBlock(toolText.String()))
				toolText.Reset()
			}
		}
		for _, block := range msg.Content {
			if block.Type != BlockToolUse {
				flush()
				blocks = append(blocks, block)
				continue
			}
			toolText.WriteString("<tool_call>\n")
			fmt.Fprintf(&toolText, "<function=%s>\n", block.ToolName)
			var args map[string]any
			if len(block.ToolInput) > 0 {
				_ = json.Unmarshal(block.ToolInput, &args)
			}
			for key, value := range args {
				var valueStr string
				if s, ok := value.(string); ok {
					valueStr = s
				} else {
					raw, _ := json.Marshal(value)
					valueStr = string(raw)
				}
				fmt.Fprintf(&toolText, "<parameter=%s>\n%s\n</parameter>\n", key, valueStr)
			}
			toolText.WriteString("</function>\n</tool_call>")
		}
		flush()
		out[i] = Message{Role: msg.Role, Content: blocks}
	}
	return out
}

// stepfunTransformer reproduces the teacher's inner-stream-to-normalized-
// events transform: it scans flushed text for tool-call XML fragments and
// a </think> reasoning sentinel, synthesizing ToolUse/Reasoning blocks.
type stepfunTransformer struct {
	content []ContentBlock

	textBuffer        strings.Builder
	textIndex         int
	haveTextIndex     bool
	reasoningIndex    int
	haveReasoningIdx  bool
	reasoningComplete bool
	emittedToolCalls  bool
	trimLeadingOnce   bool

	stopReason StopReason
	usage      Usage
}

func newStepfunTransformer() *stepfunTransformer {
	return &stepfunTransformer{stopReason: StopEndTurn}
}

func (t *stepfunTransformer) ensureTextBlock() int {
	if t.haveTextIndex {
		return t.textIndex
	}
	t.textIndex = len(t.content)
	t.haveTextIndex = true
	t.content = append(t.content, TextBlock(""))
	return t.textIndex
}

func (t *stepfunTransformer) ensureReasoningBlock() int {
	if t.haveReasoningIdx {
		return t.reasoningIndex
	}
	t.reasoningIndex = len(t.content)
	t.haveReasoningIdx = true
	t.content = append(t.content, ReasoningBlock("", nil))
	return t.reasoningIndex
}

func (t *stepfunTransformer) handle(ev Event) []Event {
	switch ev.Type {
	case EventContentBlockStart:
		// upstream's own block-start bookkeeping is ignored; text and
		// reasoning blocks are (re)started lazily as text actually arrives.
		return nil

	case EventTextDelta:
		return t.pushTextAndProcess(ev.Text)

	case EventReasoningDelta:
		return t.processReasoning(ev.Text)

	case EventInputJSONDelta, EventReasoningSignatureDelta, EventReasoningCompleted, EventContentBlockCompleted:
		return nil

	case EventMessageDelta:
		if ev.StopReason != "" {
			t.stopReason = ev.StopReason
		}
		t.usage = ev.DeltaUsage
		return nil

	case EventMessageCompleted:
		if ev.StopReason != "" {
			t.stopReason = ev.StopReason
		}
		if ev.DeltaUsage != (Usage{}) {
			t.usage = ev.DeltaUsage
		}
		var out []Event
		out = append(out, t.processBuffer()...)
		out = append(out, t.flushRemaining(true)...)
		return out

	default:
		return []Event{ev}
	}
}

func (t *stepfunTransformer) finish() []Event {
	var out []Event
	if t.haveReasoningIdx {
		idx := t.reasoningIndex
		t.haveReasoningIdx = false
		out = append(out, Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindReasoning})
	}
	if t.haveTextIndex {
		idx := t.textIndex
		t.haveTextIndex = false
		out = append(out, Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindText})
	}
	if t.emittedToolCalls {
		t.stopReason = StopToolUse
	}
	out = append(out, Event{Type: EventMessageCompleted, StopReason: t.stopReason, DeltaUsage: t.usage})
	return out
}

func (t *stepfunTransformer) pushTextAndProcess(chunk string) []Event {
	t.textBuffer.WriteString(chunk)
	buf := t.textBuffer.String()
	if hasCompleteToolCall(buf) {
		return t.processBuffer()
	}
	return t.flushRemaining(false)
}

func (t *stepfunTransformer) processBuffer() []Event {
	buf := t.textBuffer.String()
	if buf == "" || !hasCompleteToolCall(buf) {
		return nil
	}

	var out []Event

	markerPos := firstToolMarker(buf)
	if markerPos > 0 {
		before := buf[:markerPos]
		buf = buf[markerPos:]
		if strings.TrimSpace(before) != "" {
			out = append(out, t.emitText(before)...)
		}
	}

	calls, remaining := parseToolCalls(buf)
	if len(calls) == 0 {
		t.textBuffer.Reset()
		t.textBuffer.WriteString(buf)
		return append(out, t.flushRemaining(true)...)
	}

	t.emittedToolCalls = true
	if t.haveTextIndex {
		idx := t.textIndex
		t.haveTextIndex = false
		out = append(out, Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindText})
	}

	for _, call := range calls {
		id := "toolcall-" + ksuid.New().String()
		idx := len(t.content)
		argsJSON := toolCallArgumentsJSON(call.Arguments)
		t.content = append(t.content, ToolUseBlock(id, call.Name, json.RawMessage(argsJSON)))
		out = append(out, Event{Type: EventContentBlockStart, Index: idx, Kind: BlockKindToolUse, ToolUseID: id, ToolName: call.Name})
		out = append(out, Event{Type: EventInputJSONDelta, Index: idx, Text: argsJSON})
		out = append(out, Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindToolUse, ToolUseID: id, ToolName: call.Name})
	}

	t.textBuffer.Reset()
	t.textBuffer.WriteString(remaining)
	return out
}

func (t *stepfunTransformer) flushRemaining(force bool) []Event {
	buf := t.textBuffer.String()
	if buf == "" {
		return nil
	}

	if force {
		t.textBuffer.Reset()
		if strings.TrimSpace(buf) == "" {
			return nil
		}
		return t.emitText(buf)
	}

	markerPos := firstToolMarker(buf)
	switch {
	case markerPos == 0:
		return nil
	case markerPos > 0:
		before := buf[:markerPos]
		t.textBuffer.Reset()
		t.textBuffer.WriteString(buf[markerPos:])
		if strings.TrimSpace(before) == "" {
			return nil
		}
		return t.emitText(before)
	default:
		if endsWithPartialToolMarker(buf) {
			return nil
		}
		t.textBuffer.Reset()
		if strings.TrimSpace(buf) == "" {
			return nil
		}
		return t.emitText(buf)
	}
}

func (t *stepfunTransformer) emitText(text string) []Event {
	if t.trimLeadingOnce {
		trimmed := strings.TrimLeft(text, " \t\n\r")
		if trimmed == "" {
			return nil
		}
		text = trimmed
		t.trimLeadingOnce = false
	}
	if text == "" {
		return nil
	}
	idx := t.ensureTextBlock()
	t.content[idx].Text += text
	return []Event{{Type: EventTextDelta, Index: idx, Text: text}}
}

func (t *stepfunTransformer) processReasoning(delta string) []Event {
	if t.reasoningComplete {
		return t.pushTextAndProcess(delta)
	}

	delta = stripThinkStart(delta)
	before, complete, after := parseThinking(delta)

	if !complete {
		idx := t.ensureReasoningBlock()
		t.content[idx].ReasoningText += delta
		return []Event{{Type: EventReasoningDelta, Index: idx, Text: delta}}
	}

	var out []Event
	t.reasoningComplete = true
	if before != "" {
		idx := t.ensureReasoningBlock()
		t.content[idx].ReasoningText += before
		out = append(out, Event{Type: EventReasoningDelta, Index: idx, Text: before})
	}
	if t.haveReasoningIdx {
		idx := t.reasoningIndex
		t.haveReasoningIdx = false
		out = append(out, Event{Type: EventContentBlockCompleted, Index: idx, Kind: BlockKindReasoning})
	}
	t.trimLeadingOnce = true
	if after != "" {
		out = append(out, t.pushTextAndProcess(after)...)
	}
	return out
}

func (t *stepfunTransformer) message() Message {
	return Message{Role: RoleAssistant, Content: t.content}
}

// firstToolMarker returns the earliest index of "<tool_call" or
// "<function=" in content, or -1 if neither appears.
func firstToolMarker(content string) int {
	toolCallPos := strings.Index(content, "<tool_call")
	functionPos := strings.Index(content, "<function=")
	switch {
	case toolCallPos >= 0 && functionPos >= 0:
		if toolCallPos < functionPos {
			return toolCallPos
		}
		return functionPos
	case toolCallPos >= 0:
		return toolCallPos
	case functionPos >= 0:
		return functionPos
	default:
		return -1
	}
}
