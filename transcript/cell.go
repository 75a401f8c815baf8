// Package transcript implements the in-memory, cell-oriented view of a
// conversation used by an interactive renderer, per spec.md 4.11: cells
// accumulate as the agent emits events, a wrap cache memoizes
// width-dependent line rendering, and a scroll model tracks viewport
// position.
package transcript

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"zdx/providers"
	"zdx/toolrun"
)

// CellID addresses a transcript cell. IDs are monotonically increasing
// and unique within a process; used for selection anchoring, scroll
// position tracking, and wrap-cache keying.
type CellID uint64

var cellIDCounter uint64

// NewCellID allocates the next process-unique cell id.
func NewCellID() CellID {
	return CellID(atomic.AddUint64(&cellIDCounter, 1))
}

// ToolState is the lifecycle state of a Tool cell.
type ToolState string

const (
	ToolRunning   ToolState = "running"
	ToolDone      ToolState = "done"
	ToolError     ToolState = "error"
	ToolCancelled ToolState = "cancelled"
)

// CellKind discriminates the Cell sum type.
type CellKind string

const (
	CellUser      CellKind = "user"
	CellAssistant CellKind = "assistant"
	CellTool      CellKind = "tool"
	CellSystem    CellKind = "system"
	CellThinking  CellKind = "thinking"
	CellTiming    CellKind = "timing"
)

// Cell is a logical unit in the transcript: user input, an assistant
// response (streaming or final), a tool invocation, a thinking block,
// or an informational banner. Every variant shares an id and creation
// timestamp; only the fields relevant to Kind are populated.
type Cell struct {
	ID        CellID
	Kind      CellKind
	CreatedAt time.Time

	// User / Assistant / System / Thinking
	Content       string
	IsStreaming   bool
	IsInterrupted bool

	// Thinking
	Replay *providers.ReplayToken

	// Tool
	ToolUseID   string
	Name        string
	Input       json.RawMessage
	InputDelta  string
	State       ToolState
	StartedAt   time.Time
	Result      *toolrun.ToolOutput

	// Timing
	Duration  time.Duration
	ToolCount int
}

func NewUserCell(content string) *Cell {
	return &Cell{ID: NewCellID(), Kind: CellUser, CreatedAt: time.Now(), Content: content}
}

func NewAssistantCell(content string, streaming bool) *Cell {
	return &Cell{ID: NewCellID(), Kind: CellAssistant, CreatedAt: time.Now(), Content: content, IsStreaming: streaming}
}

func NewToolCell(toolUseID, name string, input json.RawMessage) *Cell {
	now := time.Now()
	return &Cell{
		ID:        NewCellID(),
		Kind:      CellTool,
		CreatedAt: now,
		ToolUseID: toolUseID,
		Name:      name,
		Input:     input,
		State:     ToolRunning,
		StartedAt: now,
	}
}

func NewSystemCell(content string) *Cell {
	return &Cell{ID: NewCellID(), Kind: CellSystem, CreatedAt: time.Now(), Content: content}
}

func NewThinkingCell(content string, streaming bool) *Cell {
	return &Cell{ID: NewCellID(), Kind: CellThinking, CreatedAt: time.Now(), Content: content, IsStreaming: streaming}
}

func NewTimingCell(d time.Duration, toolCount int) *Cell {
	return &Cell{ID: NewCellID(), Kind: CellTiming, CreatedAt: time.Now(), Duration: d, ToolCount: toolCount}
}

// AppendDelta appends text to a streaming Assistant or Thinking cell.
func (c *Cell) AppendDelta(delta string) {
	c.Content += delta
}

// Finalize marks a streaming Assistant/Thinking cell as complete,
// attaching a replay token for Thinking cells when one was captured.
func (c *Cell) Finalize(replay *providers.ReplayToken) {
	c.IsStreaming = false
	if c.Kind == CellThinking {
		c.Replay = replay
	}
}

// Interrupt marks a streaming cell as cut short by user interrupt.
func (c *Cell) Interrupt() {
	c.IsStreaming = false
	c.IsInterrupted = true
}

// Complete transitions a Tool cell out of Running, attaching its result.
func (c *Cell) Complete(output toolrun.ToolOutput) {
	c.Result = &output
	switch {
	case output.Kind == toolrun.OutputCanceled:
		c.State = ToolCancelled
	case output.IsOK():
		c.State = ToolDone
	default:
		c.State = ToolError
	}
}

// contentLengthDiscriminator is part of the wrap cache key: content
// length changes on every delta of a streaming cell, so keying on it
// (alongside CellID and width) naturally invalidates stale entries
// without the cache needing to know which cells are mid-stream.
func (c *Cell) contentLengthDiscriminator() int {
	return len(c.Content) + len(c.InputDelta)
}
