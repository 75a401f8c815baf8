package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapCacheReturnsCachedSliceForFinalizedCell(t *testing.T) {
	wc := NewWrapCache()
	c := NewAssistantCell("hello world", false)

	lines1 := wc.Render(c, 5)
	lines2 := wc.Render(c, 5)
	assert.Equal(t, lines1, lines2)

	// mutate content to a same-length string without going through
	// AppendDelta/Invalidate: the key (id, width, content length) is
	// unchanged, so the cached entry must still be returned since nothing
	// told the cache this cell changed.
	c.Content = "HELLO WORLD"
	lines3 := wc.Render(c, 5)
	assert.Equal(t, lines1, lines3)
}

func TestWrapCacheBypassesCacheWhileStreaming(t *testing.T) {
	wc := NewWrapCache()
	c := NewAssistantCell("hello", true)

	lines1 := wc.Render(c, 80)
	c.AppendDelta(" world")
	lines2 := wc.Render(c, 80)
	assert.NotEqual(t, lines1, lines2)
}

func TestWrapCacheInvalidateDropsEntry(t *testing.T) {
	wc := NewWrapCache()
	c := NewAssistantCell("hello world", false)
	wc.Render(c, 5)
	wc.Invalidate(c.ID)
	assert.Empty(t, wc.entries)
}

func TestWrapLineSplitsOnWidth(t *testing.T) {
	lines := wrapLine("abcdefgh", 3)
	assert.Equal(t, []string{"abc", "def", "gh"}, lines)
}
