package agent

import (
	"context"
	"time"

	"zdx/interrupt"
	"zdx/providers"
	"zdx/toolrun"
)

// Options configures RunTurn. ToolTimeoutSeconds bounds a single tool
// invocation; zero disables the per-tool timeout, per spec.md 4.6.
type Options struct {
	ToolTimeoutSeconds int
}

// RunTurn drives client through as many provider round trips as it
// takes to reach a non-tool stop reason, executing any requested tools
// in between via registry and publishing progress on sender. It
// returns the updated message history (the caller's original messages
// plus every assistant/tool-result message produced this turn).
//
// The interrupt signal is checked both between round trips and, via
// select, while a round trip's stream is still being read; Go's select
// over eventCh/doneCh/sig.Wait() replaces the source runtime's
// fixed-interval interrupt poll with a single blocking multiplex.
func RunTurn(ctx context.Context, client providers.Client, req providers.Request, registry *toolrun.Registry, toolCtx *toolrun.Context, sender *EventSender, sig *interrupt.Signal, opts Options) ([]providers.Message, error) {
	sender.SendImportant(ctx, AgentEvent{Type: EventTurnStarted})

	messages := append([]providers.Message(nil), req.Messages...)

	for {
		if sig.IsSet() {
			return emitInterrupted(ctx, sender, messages, "")
		}

		roundReq := req
		roundReq.Messages = messages

		eventCh := make(chan providers.Event, 128)
		type streamResult struct {
			resp *providers.MessageResponse
			err  error
		}
		doneCh := make(chan streamResult, 1)
		go func() {
			resp, err := client.Stream(ctx, roundReq, eventCh)
			close(eventCh)
			doneCh <- streamResult{resp: resp, err: err}
		}()

		builder := newTurnBuilder()
		var lastText string
		var interrupted bool

	drain:
		for {
			select {
			case ev, ok := <-eventCh:
				if !ok {
					eventCh = nil // stop selecting a closed channel; doneCh carries the final result
					continue drain
				}
				if t := handleProviderEvent(ctx, sender, builder, ev); t != "" {
					lastText += t
				}
			case res := <-doneCh:
				if eventCh != nil {
					// eventCh is closed before doneCh is sent, so this drains
					// whatever the select did not reach yet and then ends.
					for ev := range eventCh {
						if t := handleProviderEvent(ctx, sender, builder, ev); t != "" {
							lastText += t
						}
					}
				}
				if res.err != nil {
					translateAndEmitError(ctx, sender, res.err)
					return messages, res.err
				}
				return finishRound(ctx, client, req, registry, toolCtx, sender, sig, opts, messages, builder, res.resp)
			case <-sig.Wait():
				interrupted = true
				break drain
			}
		}

		if interrupted {
			return emitInterrupted(ctx, sender, messages, lastText)
		}
	}
}

// handleProviderEvent folds one normalized provider event into builder
// state and republishes it as the matching AgentEvent. For a text delta
// it returns that delta's text (empty for every other event); the caller
// concatenates these into the partial-content payload used if the turn is
// interrupted mid-stream.
func handleProviderEvent(ctx context.Context, sender *EventSender, builder *turnBuilder, ev providers.Event) string {
	switch ev.Type {
	case providers.EventContentBlockStart:
		st := builder.start(ev)
		if ev.Kind == providers.BlockKindToolUse {
			sender.SendImportant(ctx, AgentEvent{Type: EventToolRequested, ToolID: st.toolID, ToolName: st.toolName, ToolInput: []byte("{}")})
		}

	case providers.EventInputJSONDelta:
		if st := builder.get(ev.Index); st != nil {
			st.jsonBuf.WriteString(ev.Text)
			sender.SendDelta(AgentEvent{Type: EventToolInputDelta, ToolID: st.toolID, ToolName: st.toolName, Delta: ev.Text})
		}

	case providers.EventReasoningDelta:
		if st := builder.get(ev.Index); st != nil {
			st.reasonBuf.WriteString(ev.Text)
		}
		sender.SendDelta(AgentEvent{Type: EventReasoningDelta, Text: ev.Text})

	case providers.EventReasoningSignatureDelta:
		if st := builder.get(ev.Index); st != nil {
			st.signature = ev.Signature
		}

	case providers.EventReasoningCompleted:
		if st := builder.get(ev.Index); st != nil {
			builder.reasoningEmitted[ev.Index] = true
			block := providers.ReasoningBlock(st.reasonBuf.String(), replayFromEvent(ev, st))
			sender.SendImportant(ctx, AgentEvent{Type: EventReasoningCompleted, Reasoning: block})
		}

	case providers.EventContentBlockCompleted:
		st := builder.get(ev.Index)
		if st == nil {
			break
		}
		switch ev.Kind {
		case providers.BlockKindToolUse:
			builder.finishToolUse(st)
			sender.SendImportant(ctx, AgentEvent{Type: EventToolInputCompleted, ToolID: st.toolID, ToolName: st.toolName, ToolInput: []byte(st.jsonBuf.String())})
		case providers.BlockKindReasoning:
			if !builder.reasoningEmitted[ev.Index] {
				builder.reasoningEmitted[ev.Index] = true
				block := providers.ReasoningBlock(st.reasonBuf.String(), replayFromEvent(ev, st))
				sender.SendImportant(ctx, AgentEvent{Type: EventReasoningCompleted, Reasoning: block})
			}
		}

	case providers.EventTextDelta:
		sender.SendDelta(AgentEvent{Type: EventAssistantDelta, Text: ev.Text})
		return ev.Text

	case providers.EventMessageStart:
		sender.SendDelta(AgentEvent{Type: EventUsageUpdate, Usage: ev.InitialUsage})

	case providers.EventMessageDelta, providers.EventMessageCompleted:
		sender.SendDelta(AgentEvent{Type: EventUsageUpdate, Usage: ev.DeltaUsage})

	case providers.EventError:
		sender.SendImportant(ctx, AgentEvent{Type: EventError, ErrorKind: ErrorAPIError, ErrorMessage: ev.ErrorMessage})
	}
	return ""
}

func replayFromEvent(ev providers.Event, st *blockState) *providers.ReplayToken {
	if ev.ReasoningID != "" || ev.ReasoningEncryptedContent != "" {
		return &providers.ReplayToken{Kind: providers.ReplayOpenAI, ID: ev.ReasoningID, EncryptedContent: ev.ReasoningEncryptedContent}
	}
	if st.signature != "" {
		return &providers.ReplayToken{Kind: providers.ReplayAnthropic, Signature: st.signature}
	}
	return nil
}

// finishRound handles the end of one provider round trip: on a tool-use
// stop it executes the requested tools and loops back into RunTurn for
// another round; on any other stop it publishes the terminal events and
// returns.
func finishRound(ctx context.Context, client providers.Client, req providers.Request, registry *toolrun.Registry, toolCtx *toolrun.Context, sender *EventSender, sig *interrupt.Signal, opts Options, messages []providers.Message, builder *turnBuilder, resp *providers.MessageResponse) ([]providers.Message, error) {
	messages = append(messages, resp.Output)

	if resp.StopReason != providers.StopToolUse || len(builder.toolCalls) == 0 {
		finalText := extractText(resp.Output)
		sender.SendImportant(ctx, AgentEvent{Type: EventAssistantCompleted, FinalText: finalText})
		sender.SendImportant(ctx, AgentEvent{Type: EventTurnCompleted, Messages: messages})
		return messages, nil
	}

	timeout := toolTimeout(opts)
	sink := toolSink{ctx: ctx, sender: sender}
	results := toolrun.ExecuteBatch(ctx, builder.toolCalls, toolCtx, registry, sink, sig.Wait(), timeout)

	resultBlocks := make([]providers.ContentBlock, 0, len(results))
	for _, r := range results {
		resultBlocks = append(resultBlocks, providers.ToolResultBlock(r.ID, r.Output.ToJSONString(), !r.Output.IsOK()))
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: resultBlocks})

	if sig.IsSet() {
		sender.SendImportant(ctx, AgentEvent{Type: EventTurnCompleted, Messages: messages})
		return emitInterrupted(ctx, sender, messages, "")
	}

	nextReq := req
	nextReq.Messages = messages
	return RunTurn(ctx, client, nextReq, registry, toolCtx, sender, sig, opts)
}

func toolTimeout(opts Options) time.Duration {
	if opts.ToolTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(opts.ToolTimeoutSeconds) * time.Second
}

func emitInterrupted(ctx context.Context, sender *EventSender, messages []providers.Message, partial string) ([]providers.Message, error) {
	ev := AgentEvent{Type: EventInterrupted}
	if partial != "" {
		ev.PartialContent = partial
	}
	sender.SendImportant(ctx, ev)
	return messages, nil
}

func translateAndEmitError(ctx context.Context, sender *EventSender, err error) {
	kind := ErrorInternal
	if se, ok := err.(*providers.StreamError); ok {
		kind = errorKindFromProvider(se.Kind)
	}
	sender.SendImportant(ctx, AgentEvent{Type: EventError, ErrorKind: kind, ErrorMessage: err.Error()})
}

func extractText(msg providers.Message) string {
	var out string
	for _, b := range msg.Content {
		if b.Type == providers.BlockText {
			out += b.Text
		}
	}
	return out
}
