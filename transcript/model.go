package transcript

import (
	"zdx/agent"
	"zdx/providers"
)

// Model owns the full in-memory transcript for one thread: its cells,
// wrap cache, and scroll state. It is fed by agent.AgentEvent values
// and discarded/replaced wholesale on thread switch.
type Model struct {
	cells  []*Cell
	byTool map[string]*Cell

	Wrap   *WrapCache
	Scroll *ScrollState
}

func NewModel() *Model {
	return &Model{
		byTool: make(map[string]*Cell),
		Wrap:   NewWrapCache(),
		Scroll: NewScrollState(),
	}
}

// Cells returns the current cell list in append order.
func (m *Model) Cells() []*Cell { return m.cells }

// Reset discards every cell and cache entry, used on thread switch.
func (m *Model) Reset() {
	m.cells = nil
	m.byTool = make(map[string]*Cell)
	m.Wrap.Reset()
	m.Scroll.Reset()
}

// PushUser appends a user cell, e.g. echoing the prompt that started a turn.
func (m *Model) PushUser(content string) *Cell {
	c := NewUserCell(content)
	m.cells = append(m.cells, c)
	return c
}

// Apply folds one AgentEvent into the transcript, creating or mutating
// cells as needed. It mirrors the cell lifecycle methods in cell.go:
// streaming cells are created on the first delta and finalized on
// completion; tool cells are correlated by tool_use_id, not cell id,
// matching the thread log's own addressing (spec.md's note that
// transcript cells reference tool outputs by tool_use_id).
func (m *Model) Apply(ev agent.AgentEvent) {
	switch ev.Type {
	case agent.EventReasoningDelta:
		m.appendStreamingThinking(ev.Text)
	case agent.EventReasoningCompleted:
		m.finalizeThinking(ev.Reasoning.Replay)
	case agent.EventAssistantDelta:
		m.appendStreamingAssistant(ev.Text)
	case agent.EventAssistantCompleted:
		m.finalizeAssistant()
	case agent.EventToolRequested:
		c := NewToolCell(ev.ToolID, ev.ToolName, ev.ToolInput)
		m.cells = append(m.cells, c)
		m.byTool[ev.ToolID] = c
	case agent.EventToolInputDelta:
		if c, ok := m.byTool[ev.ToolID]; ok {
			c.InputDelta += ev.Delta
			m.Wrap.Invalidate(c.ID)
		}
	case agent.EventToolInputCompleted:
		if c, ok := m.byTool[ev.ToolID]; ok {
			c.Input = ev.ToolInput
			m.Wrap.Invalidate(c.ID)
		}
	case agent.EventToolCompleted:
		if c, ok := m.byTool[ev.ToolID]; ok {
			c.Complete(ev.ToolResult)
			m.Wrap.Invalidate(c.ID)
		}
	case agent.EventInterrupted:
		m.interruptStreaming()
		if ev.PartialContent != "" {
			m.cells = append(m.cells, NewSystemCell("Interrupted"))
		}
	case agent.EventError:
		m.cells = append(m.cells, NewSystemCell(ev.ErrorMessage))
	}
}

func (m *Model) lastOpenCell(kind CellKind) *Cell {
	for i := len(m.cells) - 1; i >= 0; i-- {
		c := m.cells[i]
		if c.Kind != kind {
			return nil
		}
		if c.IsStreaming {
			return c
		}
		return nil
	}
	return nil
}

func (m *Model) appendStreamingThinking(delta string) {
	c := m.lastOpenCell(CellThinking)
	if c == nil {
		c = NewThinkingCell("", true)
		m.cells = append(m.cells, c)
	}
	c.AppendDelta(delta)
	m.Wrap.Invalidate(c.ID)
}

func (m *Model) finalizeThinking(replay *providers.ReplayToken) {
	if c := m.lastOpenCell(CellThinking); c != nil {
		c.Finalize(replay)
		m.Wrap.Invalidate(c.ID)
	}
}

func (m *Model) appendStreamingAssistant(delta string) {
	c := m.lastOpenCell(CellAssistant)
	if c == nil {
		c = NewAssistantCell("", true)
		m.cells = append(m.cells, c)
	}
	c.AppendDelta(delta)
	m.Wrap.Invalidate(c.ID)
}

func (m *Model) finalizeAssistant() {
	if c := m.lastOpenCell(CellAssistant); c != nil {
		c.Finalize(nil)
		m.Wrap.Invalidate(c.ID)
	}
}

func (m *Model) interruptStreaming() {
	for _, kind := range []CellKind{CellAssistant, CellThinking} {
		if c := m.lastOpenCell(kind); c != nil {
			c.Interrupt()
			m.Wrap.Invalidate(c.ID)
		}
	}
}
