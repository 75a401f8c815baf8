package toolrun

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/common"
)

type recordingSink struct {
	mu        sync.Mutex
	started   []string
	completed []string
}

func (s *recordingSink) ToolStarted(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
}

func (s *recordingSink) ToolCompleted(id string, output ToolOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
}

func instantRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "echo"}, func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
		return Success(input)
	})
	return reg
}

// TestExecuteBatchEmitsStartedBeforeSpawning verifies every ToolStarted
// is recorded, in batch order, before the orchestrator returns.
func TestExecuteBatchEmitsStartedBeforeSpawning(t *testing.T) {
	reg := instantRegistry()
	calls := []Call{
		{ID: "a", Name: "echo", Input: json.RawMessage(`1`)},
		{ID: "b", Name: "echo", Input: json.RawMessage(`2`)},
		{ID: "c", Name: "echo", Input: json.RawMessage(`3`)},
	}
	sink := &recordingSink{}
	tctx := &Context{EnabledTools: map[string]struct{}{"echo": {}}}
	interruptCh := make(chan struct{})

	results := ExecuteBatch(context.Background(), calls, tctx, reg, sink, interruptCh, 0)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, sink.started)
	for i, c := range calls {
		assert.Equal(t, c.ID, results[i].ID)
		assert.True(t, results[i].Output.IsOK())
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, sink.completed)
}

// TestExecuteBatchEveryInputSlotIsFilled verifies that even when one
// call fails, every output slot is still present and parallel-indexed
// with its input.
func TestExecuteBatchEveryInputSlotIsFilled(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "ok"}, func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
		return Success(input)
	})
	reg.Register(common.ToolDefinition{Name: "boom"}, func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
		return Failure("boom", "exploded", "")
	})

	calls := []Call{
		{ID: "a", Name: "ok", Input: json.RawMessage(`1`)},
		{ID: "b", Name: "boom", Input: json.RawMessage(`2`)},
	}
	tctx := &Context{EnabledTools: map[string]struct{}{"ok": {}, "boom": {}}}
	results := ExecuteBatch(context.Background(), calls, tctx, reg, &recordingSink{}, make(chan struct{}), 0)

	require.Len(t, results, 2)
	assert.True(t, results[0].Output.IsOK())
	assert.False(t, results[1].Output.IsOK())
}

// TestExecuteBatchInterruptCancelsUnfinishedTools verifies a tool still
// blocked on its context when the interrupt fires gets a synthesized
// Canceled envelope rather than hanging the batch forever.
func TestExecuteBatchInterruptCancelsUnfinishedTools(t *testing.T) {
	reg := NewRegistry()
	started := make(chan struct{})
	reg.Register(common.ToolDefinition{Name: "slow"}, func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
		close(started)
		<-ctx.Done()
		return Canceled("Interrupted by user")
	})

	calls := []Call{{ID: "a", Name: "slow", Input: nil}}
	tctx := &Context{EnabledTools: map[string]struct{}{"slow": {}}}
	interruptCh := make(chan struct{})

	resultCh := make(chan []Result, 1)
	go func() {
		resultCh <- ExecuteBatch(context.Background(), calls, tctx, reg, &recordingSink{}, interruptCh, 0)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tool never started")
	}
	close(interruptCh)

	select {
	case results := <-resultCh:
		require.Len(t, results, 1)
		assert.Equal(t, OutputCanceled, results[0].Output.Kind)
	case <-time.After(time.Second):
		t.Fatal("ExecuteBatch did not return after interrupt")
	}
}

// TestExecuteBatchPerToolTimeout verifies a tool exceeding its timeout
// is reported as a timeout failure rather than blocking the batch.
func TestExecuteBatchPerToolTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "hangs"}, func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
		<-ctx.Done()
		return Failure("internal", "should have been overridden by timeout handling", "")
	})

	calls := []Call{{ID: "a", Name: "hangs", Input: nil}}
	tctx := &Context{EnabledTools: map[string]struct{}{"hangs": {}}}
	results := ExecuteBatch(context.Background(), calls, tctx, reg, &recordingSink{}, make(chan struct{}), 20*time.Millisecond)

	require.Len(t, results, 1)
	code, _, _, ok := results[0].Output.ErrorInfo()
	require.True(t, ok)
	assert.Equal(t, "timeout", code)
}

func TestExecuteBatchEmpty(t *testing.T) {
	results := ExecuteBatch(context.Background(), nil, &Context{}, NewRegistry(), &recordingSink{}, make(chan struct{}), 0)
	assert.Empty(t, results)
}
