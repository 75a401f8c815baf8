package thread

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"zdx/common"
)

// Log manages one thread's append-only JSONL file, lazily writing its
// Meta event on the first real append rather than at construction, so
// that a Log created but never written to leaves no file behind.
type Log struct {
	ID       string
	path     string
	isNew    bool
	title    string
	rootPath string
}

// New creates a fresh thread, associated with rootPath (typically the
// working directory the agent was invoked from).
func New(rootPath string) (*Log, error) {
	dir, err := common.GetThreadsDir()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	path := filepath.Join(dir, id+".jsonl")
	return &Log{ID: id, path: path, isNew: true, rootPath: rootPath}, nil
}

// Open resumes an existing thread by id, or begins a new file at that
// id if it doesn't exist yet (letting a caller pre-assign an id).
func Open(id string) (*Log, error) {
	dir, err := common.GetThreadsDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, id+".jsonl")
	_, err = os.Stat(path)
	return &Log{ID: id, path: path, isNew: os.IsNotExist(err)}, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) ensureMeta() error {
	if !l.isNew {
		return nil
	}
	if err := l.appendRaw(MetaEvent(l.title, l.rootPath)); err != nil {
		return err
	}
	l.isNew = false
	return nil
}

func (l *Log) appendRaw(ev Event) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open thread file: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal thread event: %w", err)
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

// Append writes ev to the file, first writing the Meta event if this is
// a new thread's first line (unless ev is itself a Meta event).
func (l *Log) Append(ev Event) error {
	if ev.Type != EventMeta {
		if err := l.ensureMeta(); err != nil {
			return err
		}
	}
	return l.appendRaw(ev)
}

// ReadEvents reads every event in the file, skipping blank and
// unparseable lines rather than failing the whole read: a partially
// corrupted thread (e.g. truncated by a crash mid-write) should still
// recover everything before the bad line.
func (l *Log) ReadEvents() ([]Event, error) {
	return readEvents(l.path)
}

func readEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open thread file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // best-effort: skip corrupted lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan thread file: %w", err)
	}
	return events, nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

// SetTitle rewrites the Meta line with a new title, preserving every
// other line, via an atomic write-to-temp-then-rename so a crash
// mid-rewrite can never leave a half-written thread file.
func (l *Log) SetTitle(title string) error {
	if err := l.ensureMeta(); err != nil {
		return err
	}
	l.title = title
	return l.rewriteMeta(func(meta *Event) { meta.Title = title })
}

// SetRootPath rewrites the Meta line with a new root path.
func (l *Log) SetRootPath(rootPath string) error {
	if err := l.ensureMeta(); err != nil {
		return err
	}
	l.rootPath = rootPath
	return l.rewriteMeta(func(meta *Event) { meta.RootPath = rootPath })
}

func (l *Log) rewriteMeta(mutate func(meta *Event)) error {
	events, err := l.ReadEvents()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("thread %s has no meta event to rewrite", l.ID)
	}
	mutate(&events[0])

	tmpPath := l.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp thread file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("marshal thread event: %w", err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, l.path)
}
