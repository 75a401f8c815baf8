package agent

import (
	"context"

	"zdx/toolrun"
)

// EventSender is the turn loop's single outbound event channel, per
// spec.md 4.7/4.8. It draws the line between events the UI can afford
// to miss (deltas) and events that must never be dropped (lifecycle and
// terminal events): SendDelta never blocks and drops the event if the
// channel is full, while SendImportant blocks (subject to ctx
// cancellation) until there is room.
type EventSender struct {
	ch chan AgentEvent
}

func NewEventSender(ch chan AgentEvent) *EventSender {
	return &EventSender{ch: ch}
}

// SendDelta publishes a best-effort, high-frequency event (text/reasoning
// deltas, tool input previews). It never suspends the caller.
func (s *EventSender) SendDelta(ev AgentEvent) {
	select {
	case s.ch <- ev:
	default:
	}
}

// SendImportant publishes an event the consumer must eventually see
// (ToolStarted/ToolCompleted, TurnCompleted, Error, Interrupted). It
// awaits channel capacity, returning early only if ctx is canceled.
func (s *EventSender) SendImportant(ctx context.Context, ev AgentEvent) {
	select {
	case s.ch <- ev:
	case <-ctx.Done():
	}
}

// toolSink adapts an EventSender to toolrun.EventSink, so the tool
// orchestrator's ToolStarted/ToolCompleted notifications flow straight
// into the turn's event stream as reliable (SendImportant) events.
type toolSink struct {
	ctx    context.Context
	sender *EventSender
}

func (s toolSink) ToolStarted(id, name string) {
	s.sender.SendImportant(s.ctx, AgentEvent{Type: EventToolStarted, ToolID: id, ToolName: name})
}

func (s toolSink) ToolCompleted(id string, output toolrun.ToolOutput) {
	s.sender.SendImportant(s.ctx, AgentEvent{Type: EventToolCompleted, ToolID: id, ToolResult: output})
}
