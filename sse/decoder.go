// Package sse decodes a byte stream into discrete Server-Sent Events,
// per spec.md 4.2: one event per "event:"/"data:" frame terminated by a
// blank line, UTF-8-safe across arbitrary chunk boundaries.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded SSE frame. Name is the "event:" field (empty when
// absent, e.g. plain "data:"-only frames). Data is the concatenation of
// every "data:" line in the frame, joined by "\n", per the SSE spec.
type Event struct {
	Name string
	Data string
}

// Decoder reads frames from an underlying byte stream. It buffers
// incomplete lines and a dangling last line across Read calls so that a
// multi-byte UTF-8 character split across chunk boundaries is never
// decoded prematurely: bufio.Scanner's default split function operates on
// completed lines only, and Decoder never looks at line content until a
// full line (terminated by '\n') has been buffered.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r, ready to decode SSE frames from it.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next decoded event. Interleaved "ping" frames are
// returned like any other frame (callers that want to drop pings check
// Name=="ping"); frames whose Data is empty or exactly "[DONE]" are
// silently dropped.
// Returns io.EOF when the stream is exhausted with no further frame.
func (d *Decoder) Next() (Event, error) {
	for {
		ev, err := d.nextFrame()
		if err != nil {
			return Event{}, err
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}
		return ev, nil
	}
}

// nextFrame reads lines until a blank line terminates a frame, per the SSE
// spec: "event:" sets Name, "data:" lines accumulate (joined by "\n"),
// any other field (id:, retry:) is ignored, and a leading ':' is a comment
// line that resets nothing.
func (d *Decoder) nextFrame() (Event, error) {
	var ev Event
	var dataLines []string
	sawAnyLine := false

	for d.scanner.Scan() {
		line := d.scanner.Text()
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if sawAnyLine {
				ev.Data = strings.Join(dataLines, "\n")
				return ev, nil
			}
			// blank line before any content: skip (keep-alive)
			continue
		}
		sawAnyLine = true

		if strings.HasPrefix(line, ":") {
			continue // comment
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Name = value
		case "data":
			dataLines = append(dataLines, value)
		default:
			// id:, retry:, and anything unrecognized are ignored
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	if sawAnyLine {
		// stream ended without a trailing blank line; flush what we have
		ev.Data = strings.Join(dataLines, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}
