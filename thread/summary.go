package thread

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"zdx/common"
)

// Summary is the lightweight per-thread listing used by a "recent
// threads" CLI view: just enough to display without loading and
// reducing the full event log.
type Summary struct {
	ID       string
	Title    string
	RootPath string
	Modified time.Time
}

// DisplayTitle falls back to the short id when no title was ever set.
func (s Summary) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return ShortID(s.ID)
}

// ShortID truncates a thread id to an 8-character prefix for compact
// CLI listings, leaving short ids (e.g. already-abbreviated ones)
// untouched.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "…"
	}
	return id
}

// ListThreads scans the threads directory and returns a summary per
// thread file, sorted newest-modified first.
func ListThreads() ([]Summary, error) {
	dir, err := common.GetThreadsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read threads directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		info, err := entry.Info()
		var modified time.Time
		if err == nil {
			modified = info.ModTime()
		}

		events, err := readEvents(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var title, rootPath string
		if len(events) > 0 && events[0].Type == EventMeta {
			title = events[0].Title
			rootPath = events[0].RootPath
		}
		out = append(out, Summary{ID: id, Title: title, RootPath: rootPath, Modified: modified})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// LatestThreadID returns the id of the most recently modified thread,
// or "" if none exist.
func LatestThreadID() (string, error) {
	threads, err := ListThreads()
	if err != nil {
		return "", err
	}
	if len(threads) == 0 {
		return "", nil
	}
	return threads[0].ID, nil
}

// ExtractUsage sums every Usage event for a cumulative total and keeps
// the most recent one for context-window-percent display, per
// spec.md 3's usage accounting.
func ExtractUsage(events []Event) (cumulative, latest Usage) {
	for _, ev := range events {
		if ev.Type != EventUsage {
			continue
		}
		cumulative = cumulative.Add(ev.Usage)
		latest = ev.Usage
	}
	return cumulative, latest
}

// FormatTranscript renders a thread's events as plain text for a
// non-TTY "show thread" path, truncating long thinking/tool-output
// blocks to keep the listing scannable.
func FormatTranscript(events []Event) string {
	const maxInline = 500
	var b strings.Builder

	for _, ev := range events {
		switch ev.Type {
		case EventMeta:
			fmt.Fprintf(&b, "### Thread (schema v%d)\n\n", ev.SchemaVersion)
		case EventMessage:
			label := "You"
			if ev.Role == "assistant" {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "### %s\n%s\n\n", label, ev.Text)
		case EventThinking:
			b.WriteString("### Thinking\n")
			b.WriteString(truncateForDisplay(ev.Content, maxInline))
			b.WriteString("\n\n")
		case EventToolUse:
			fmt.Fprintf(&b, "### Tool: %s\n```json\n%s\n```\n\n", ev.ToolName, ev.Input)
		case EventToolResult:
			status := "✓"
			if !ev.OK {
				status = "✗"
			}
			fmt.Fprintf(&b, "### Result %s\n```json\n%s\n```\n\n", status, truncateForDisplay(string(ev.Output), maxInline))
		case EventInterrupted:
			b.WriteString("### Interrupted\n\n")
		case EventUsage:
			// not shown in the transcript
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncateForDisplay(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !isUTF8Boundary(s, end) {
		end--
	}
	return s[:end] + "..."
}

func isUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
