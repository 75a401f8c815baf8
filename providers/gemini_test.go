package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// genaiResults turns a fixed list of responses into the iter.Seq2 shape
// client.Models.GenerateContentStream returns, so decodeGenaiStream can be
// exercised against the real SDK response type without a live HTTP server.
func genaiResults(results ...*genai.GenerateContentResponse) func(yield func(*genai.GenerateContentResponse, error) bool) {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// TestGeminiTextDeltaStream exercises a plain text turn split across two
// chunks, each part carrying only the new fragment (per the official SDK's
// streaming shape, unlike the raw CCA wire variant).
func TestGeminiTextDeltaStream(t *testing.T) {
	stream := genaiResults(
		&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "First"}}},
		}}},
		&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Role: "model", Parts: []*genai.Part{{Text: ", second"}}},
				FinishReason: "STOP",
			}},
		},
	)

	eventCh := make(chan Event, 32)
	go func() {
		defer close(eventCh)
		_, err := decodeGenaiStream(stream, "gemini-3-pro-preview", eventCh)
		require.NoError(t, err)
	}()
	events := drainEvents(eventCh)

	var texts []string
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"First", ", second"}, texts)

	last := events[len(events)-1]
	assert.Equal(t, EventMessageCompleted, last.Type)
	assert.Equal(t, StopEndTurn, last.StopReason)
}

// TestGeminiFunctionCallStream exercises a single-shot functionCall part,
// emitted as a Start+InputJSONDelta+Completed triple.
func TestGeminiFunctionCallStream(t *testing.T) {
	stream := genaiResults(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{{
			FunctionCall: &genai.FunctionCall{Name: "read_file", Args: map[string]any{"path": "a.go"}},
		}}},
		FinishReason: "STOP",
	}}})

	eventCh := make(chan Event, 32)
	go func() {
		defer close(eventCh)
		_, err := decodeGenaiStream(stream, "gemini-3-pro-preview", eventCh)
		require.NoError(t, err)
	}()
	events := drainEvents(eventCh)

	var sawStart, sawDelta, sawCompleted bool
	for _, ev := range events {
		switch ev.Type {
		case EventContentBlockStart:
			if ev.Kind == BlockKindToolUse {
				sawStart = true
				assert.Equal(t, "read_file", ev.ToolName)
			}
		case EventInputJSONDelta:
			sawDelta = true
			assert.Contains(t, ev.Text, "a.go")
		case EventContentBlockCompleted:
			if ev.Kind == BlockKindToolUse {
				sawCompleted = true
			}
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawDelta)
	assert.True(t, sawCompleted)
}

// TestGeminiReasoningDoesNotMergeAcrossSignatures verifies that a part
// carrying a thought signature closes its block rather than merging with a
// subsequent differently-signed part.
func TestGeminiReasoningDoesNotMergeAcrossSignatures(t *testing.T) {
	stream := genaiResults(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{Text: "thinking a", Thought: true, ThoughtSignature: []byte("sig-1")},
			{Text: "thinking b", Thought: true, ThoughtSignature: []byte("sig-2")},
		}},
		FinishReason: "STOP",
	}}})

	eventCh := make(chan Event, 32)
	go func() {
		defer close(eventCh)
		_, err := decodeGenaiStream(stream, "gemini-3-pro-preview", eventCh)
		require.NoError(t, err)
	}()
	events := drainEvents(eventCh)

	var starts, completes int
	for _, ev := range events {
		if ev.Type == EventContentBlockStart && ev.Kind == BlockKindReasoning {
			starts++
		}
		if ev.Type == EventContentBlockCompleted && ev.Kind == BlockKindReasoning {
			completes++
		}
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, completes)
}

// TestGeminiStreamPropagatesIteratorError verifies an error yielded mid-
// stream by the SDK's iterator surfaces rather than being swallowed.
func TestGeminiStreamPropagatesIteratorError(t *testing.T) {
	boom := assert.AnError
	stream := func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "partial"}}},
		}}}, nil)
		yield(nil, boom)
	}

	eventCh := make(chan Event, 32)
	_, err := decodeGenaiStream(stream, "gemini-3-pro-preview", eventCh)
	close(eventCh)
	drainEvents(eventCh)
	require.Error(t, err)
}

// TestGeminiIncrementalTextDeltaCloudCodeAssist re-runs the cumulative-text
// scenario through the Cloud Code Assist "response"-enveloped wire variant,
// which (unlike the official SDK's stream) resends each block's full
// cumulative text per chunk.
func TestGeminiIncrementalTextDeltaCloudCodeAssist(t *testing.T) {
	var raw strings.Builder
	raw.WriteString(sseFrame("", `{"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"First"}]}}]}}`))
	raw.WriteString(sseFrame("", `{"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"First, second"}]},"finishReason":"STOP"}]}}`))

	eventCh := make(chan Event, 32)
	go func() {
		defer close(eventCh)
		_, err := parseGeminiCCAStream(strings.NewReader(raw.String()), "gemini-2.5-pro", false, eventCh)
		require.NoError(t, err)
	}()
	events := drainEvents(eventCh)

	var texts []string
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"First", ", second"}, texts)
}
