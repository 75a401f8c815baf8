package thread

import (
	"encoding/json"

	"zdx/providers"
)

// ToMessages reduces a thread's persisted events back into the provider
// message history used to resume a conversation, grouping a run of
// Thinking + ToolUse events into one assistant message the way a single
// streamed turn produced them, per spec.md 4.10.
//
// Grouping rules:
//   - Thinking followed directly by an assistant Message (no intervening
//     ToolUse) merges into one assistant message: thinking block(s) then
//     the text block.
//   - Thinking followed by ToolUse groups as [thinking..., tool_use...]
//     and is closed out by the ToolResult events that follow, which flush
//     as a separate user message.
//   - A Thinking event seen right after a flushed ToolResult batch starts
//     a new assistant turn rather than reopening the old one.
//   - A Thinking block with an empty signature (thinking aborted
//     mid-stream) converts to a plain text block instead of a Reasoning
//     block, since it carries no valid replay token.
//
// Any ToolUse left open when the events run out (the thread was
// interrupted mid-tool-call) is closed with a synthesized
// {"ok":false,"error":{"code":"interrupted"}} result so the next
// request's message history is never left with a dangling tool_use.
func ToMessages(events []Event) []providers.Message {
	var messages []providers.Message

	var pendingThinking []providers.ContentBlock
	var pendingToolUses []providers.ContentBlock
	var pendingToolResults []providers.ContentBlock
	var openToolUses []string

	flush := func() {
		if len(pendingThinking) > 0 || len(pendingToolUses) > 0 {
			blocks := append(append([]providers.ContentBlock{}, pendingThinking...), pendingToolUses...)
			if len(blocks) > 0 {
				messages = append(messages, providers.Message{Role: providers.RoleAssistant, Content: blocks})
			}
			pendingThinking = nil
			pendingToolUses = nil
		}
		if len(pendingToolResults) > 0 {
			messages = append(messages, providers.Message{Role: providers.RoleUser, Content: pendingToolResults})
			pendingToolResults = nil
		}
	}

	for _, ev := range events {
		switch ev.Type {
		case EventMeta, EventInterrupted, EventUsage:
			// not part of the replayable message history

		case EventMessage:
			if ev.Role == string(providers.RoleAssistant) && len(pendingThinking) > 0 && len(pendingToolUses) == 0 {
				if len(pendingToolResults) > 0 {
					messages = append(messages, providers.Message{Role: providers.RoleUser, Content: pendingToolResults})
					pendingToolResults = nil
				}
				blocks := pendingThinking
				pendingThinking = nil
				if ev.Text != "" {
					blocks = append(blocks, providers.TextBlock(ev.Text))
				}
				messages = append(messages, providers.Message{Role: providers.RoleAssistant, Content: blocks})
				continue
			}
			flush()
			messages = append(messages, providers.Message{Role: providers.Role(ev.Role), Content: []providers.ContentBlock{providers.TextBlock(ev.Text)}})

		case EventThinking:
			if ev.Signature == "" {
				pendingThinking = append(pendingThinking, providers.TextBlock(ev.Content))
			} else {
				pendingThinking = append(pendingThinking, providers.ReasoningBlock(ev.Content, &providers.ReplayToken{Kind: providers.ReplayAnthropic, Signature: ev.Signature}))
			}

		case EventToolUse:
			openToolUses = append(openToolUses, ev.ToolUseID)
			pendingToolUses = append(pendingToolUses, providers.ToolUseBlock(ev.ToolUseID, ev.ToolName, ev.Input))

		case EventToolResult:
			for i, id := range openToolUses {
				if id == ev.ToolResultForID {
					openToolUses = append(openToolUses[:i], openToolUses[i+1:]...)
					break
				}
			}
			flush()
			pendingToolResults = append(pendingToolResults, providers.ToolResultBlock(ev.ToolResultForID, string(ev.Output), !ev.OK))
		}
	}

	flush()

	if len(openToolUses) > 0 {
		for _, id := range openToolUses {
			out, _ := json.Marshal(map[string]any{"ok": false, "error": map[string]string{"code": "interrupted", "message": "Tool call was interrupted; no result recorded."}})
			pendingToolResults = append(pendingToolResults, providers.ToolResultBlock(id, string(out), true))
		}
		flush()
	}

	return messages
}
