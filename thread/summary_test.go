package thread

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtimes(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

func TestShortIDTruncatesLongIDs(t *testing.T) {
	assert.Equal(t, "abcd1234…", ShortID("abcd1234-5678-90ab-cdef"))
	assert.Equal(t, "short", ShortID("short"))
}

func TestDisplayTitleFallsBackToShortID(t *testing.T) {
	s := Summary{ID: "abcd1234-5678"}
	assert.Equal(t, "abcd1234…", s.DisplayTitle())

	s.Title = "My Thread"
	assert.Equal(t, "My Thread", s.DisplayTitle())
}

func TestListThreadsSortsByRecency(t *testing.T) {
	withTempZdxHome(t)

	older, err := New("")
	require.NoError(t, err)
	require.NoError(t, older.Append(UserMessageEvent("first")))
	olderTime := time.Now().Add(-time.Hour)
	require.NoError(t, chtimes(older.Path(), olderTime))

	newer, err := New("")
	require.NoError(t, err)
	require.NoError(t, newer.Append(UserMessageEvent("second")))

	threads, err := ListThreads()
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, newer.ID, threads[0].ID)
	assert.Equal(t, older.ID, threads[1].ID)
}

func TestFormatTranscriptRendersMessagesAndToolCalls(t *testing.T) {
	events := []Event{
		MetaEvent("", ""),
		UserMessageEvent("hi"),
		ThinkingEvent("pondering", "sig"),
		AssistantMessageEvent("hello back"),
	}
	out := FormatTranscript(events)
	assert.Contains(t, out, "### You")
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, "### Thinking")
	assert.Contains(t, out, "### Assistant")
	assert.Contains(t, out, "hello back")
}
