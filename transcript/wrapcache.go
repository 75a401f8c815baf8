package transcript

import "strings"

// wrapKey identifies one memoized render of a cell at a given width.
// content_length_discriminator changes on every delta of a streaming
// cell, which leaves stale entries unreachable as the cell grows (they
// stay in the map until Invalidate or Reset drops them).
type wrapKey struct {
	cell    CellID
	width   int
	discrim int
}

// WrapCache memoizes width-dependent line-wrapped rendering per cell,
// owned by a single renderer (spec.md 5: "the wrap cache is owned by
// the transcript state and accessed only from its single renderer").
// Cells mid-stream or running with a spinner opt out of caching, since
// their rendered content changes every frame regardless of width.
type WrapCache struct {
	entries map[wrapKey][]string
}

func NewWrapCache() *WrapCache {
	return &WrapCache{entries: make(map[wrapKey][]string)}
}

// Render returns the wrapped lines for c at width, using the cache
// when the cell is not actively streaming/spinning.
func (wc *WrapCache) Render(c *Cell, width int) []string {
	if cacheableCell(c) {
		key := wrapKey{cell: c.ID, width: width, discrim: c.contentLengthDiscriminator()}
		if lines, ok := wc.entries[key]; ok {
			return lines
		}
		lines := wrapCell(c, width)
		wc.entries[key] = lines
		return lines
	}
	return wrapCell(c, width)
}

// Invalidate drops every cached entry for a cell, used when a cell is
// mutated in a way the discriminator alone doesn't capture (e.g. a
// tool cell's state transitioning from Running to Done keeps the same
// content length but must re-render without a spinner).
func (wc *WrapCache) Invalidate(id CellID) {
	for key := range wc.entries {
		if key.cell == id {
			delete(wc.entries, key)
		}
	}
}

// Reset clears the entire cache, used on thread switch when every
// cell is discarded and replaced.
func (wc *WrapCache) Reset() {
	wc.entries = make(map[wrapKey][]string)
}

func cacheableCell(c *Cell) bool {
	switch c.Kind {
	case CellAssistant, CellThinking:
		return !c.IsStreaming
	case CellTool:
		return c.State != ToolRunning
	default:
		return true
	}
}

// wrapCell renders a cell's display text into width-wrapped lines.
// Real rendering (styling, spinners, syntax highlighting) belongs to
// the terminal drawing layer out of scope here; this produces the
// plain wrapped text the renderer styles.
func wrapCell(c *Cell, width int) []string {
	text := displayText(c)
	if width <= 0 {
		return strings.Split(text, "\n")
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func displayText(c *Cell) string {
	switch c.Kind {
	case CellUser, CellAssistant, CellThinking, CellSystem:
		return c.Content
	case CellTool:
		if c.InputDelta != "" {
			return c.Name + ": " + c.InputDelta
		}
		return c.Name + " " + string(c.Input)
	default:
		return ""
	}
}

func wrapLine(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}
	var out []string
	for len(runes) > width {
		out = append(out, string(runes[:width]))
		runes = runes[width:]
	}
	out = append(out, string(runes))
	return out
}
