package toolrun

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Call is one model-requested tool invocation awaiting execution.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Result pairs a completed call's id with its output envelope. Results
// are returned parallel-indexed with the input Call slice: every slot
// is filled exactly once, whether the tool ran to completion, failed,
// timed out, or was canceled by an interrupt.
type Result struct {
	ID     string
	Output ToolOutput
}

// EventSink receives the ToolStarted/ToolCompleted notifications the
// orchestrator emits around a batch, per spec.md 4.6: every ToolStarted
// is sent, in batch order, before any task is spawned; ToolCompleted is
// sent in completion order as each task actually finishes (including
// synthesized cancellations).
type EventSink interface {
	ToolStarted(id, name string)
	ToolCompleted(id string, output ToolOutput)
}

type taskResult struct {
	index  int
	result Result
}

// ExecuteBatch runs calls concurrently against registry, honoring
// perToolTimeout (0 disables the per-call timeout) and reacting to
// interruptCh being closed by aborting every still-running call and
// filling its slot with a Canceled envelope. It is grounded on the
// source runtime's execute_tools_async: emit every ToolStarted up
// front, then race task completion against the interrupt signal,
// draining whatever already finished before synthesizing cancellations
// for the rest.
func ExecuteBatch(ctx context.Context, calls []Call, tctx *Context, registry *Registry, sink EventSink, interruptCh <-chan struct{}, perToolTimeout time.Duration) []Result {
	results := make([]Result, len(calls))
	filled := make([]bool, len(calls))

	if len(calls) == 0 {
		return results
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan taskResult, len(calls))

	for _, call := range calls {
		sink.ToolStarted(call.ID, call.Name)
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			taskCtx := runCtx
			var taskCancel context.CancelFunc
			if perToolTimeout > 0 {
				taskCtx, taskCancel = context.WithTimeout(runCtx, perToolTimeout)
				defer taskCancel()
			}

			output := registry.Execute(taskCtx, call.Name, call.ID, call.Input, tctx)
			if taskCtx.Err() == context.DeadlineExceeded && perToolTimeout > 0 {
				output = Failure("timeout", "tool timed out", "")
			} else if taskCtx.Err() == context.Canceled {
				output = Canceled("Interrupted by user")
			}
			select {
			case done <- taskResult{index: i, result: Result{ID: call.ID, Output: output}}:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	remaining := len(calls)
collect:
	for remaining > 0 {
		select {
		case <-interruptCh:
			cancel()
			// Drain whatever already finished without blocking further.
			drainLoop:
			for {
				select {
				case tr, ok := <-done:
					if !ok {
						break drainLoop
					}
					if !filled[tr.index] {
						filled[tr.index] = true
						results[tr.index] = tr.result
						sink.ToolCompleted(tr.result.ID, tr.result.Output)
						remaining--
					}
				default:
					break drainLoop
				}
			}
			for i, call := range calls {
				if filled[i] {
					continue
				}
				out := Canceled("Interrupted by user")
				filled[i] = true
				results[i] = Result{ID: call.ID, Output: out}
				sink.ToolCompleted(call.ID, out)
				remaining--
			}
			break collect
		case tr, ok := <-done:
			if !ok {
				break collect
			}
			if !filled[tr.index] {
				filled[tr.index] = true
				results[tr.index] = tr.result
				sink.ToolCompleted(tr.result.ID, tr.result.Output)
				remaining--
			}
		}
	}

	return results
}
