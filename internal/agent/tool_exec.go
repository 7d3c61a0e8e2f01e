package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/pkg/models"
)

// dispatchTools executes the tool calls of one assistant turn with bounded
// concurrency. EventToolResult events are emitted as results arrive
// (completion order); the returned slice is in original call order so the
// tool-role history append stays deterministic.
//
// Calls whose argument buffers never parsed get a synthesized error result
// without touching the executor. Returns ok=false on cancellation; the
// result slice is still complete, with canceled calls carrying error
// results, so the caller can keep the history well formed.
func (d *Driver) dispatchTools(ctx context.Context, calls []*pendingCall, events chan<- *Event) ([]models.ToolResult, bool) {
	type dispatched struct {
		idx    int
		name   string
		result models.ToolResult
	}

	results := make([]models.ToolResult, len(calls))
	resultCh := make(chan dispatched, len(calls))

	sem := make(chan struct{}, d.config.ToolConcurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call *pendingCall) {
			defer wg.Done()

			if call.invalid {
				resultCh <- dispatched{idx: idx, name: call.name, result: models.ToolResult{
					ToolCallID: call.id,
					Content:    fmt.Sprintf("invalid JSON arguments for tool %s", call.name),
					IsError:    true,
				}}
				return
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultCh <- dispatched{idx: idx, name: call.name, result: models.ToolResult{
					ToolCallID: call.id,
					Content:    "tool execution canceled",
					IsError:    true,
				}}
				return
			}

			tc := models.ToolCall{
				ID:    call.id,
				Name:  call.name,
				Input: json.RawMessage(call.args.String()),
			}

			start := time.Now()
			result := d.executeWithTimeout(ctx, tc)
			if d.metrics != nil {
				status := "success"
				if result.IsError {
					status = "error"
				}
				d.metrics.RecordToolExecution(call.name, status, time.Since(start).Seconds())
			}

			resultCh <- dispatched{idx: idx, name: call.name, result: result}
		}(i, call)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	ok := true
	for r := range resultCh {
		results[r.idx] = r.result
		if ok {
			ok = d.send(ctx, events, &Event{Type: EventToolResult, Result: &ToolResultEvent{
				ToolCallID: r.result.ToolCallID,
				ToolName:   r.name,
				Result:     r.result.Content,
				IsError:    r.result.IsError,
			}})
		}
	}
	if !ok || ctx.Err() != nil {
		return results, false
	}
	return results, true
}

// executeWithTimeout runs one tool call with the per-tool deadline.
// A timeout or executor error becomes an IsError result.
func (d *Driver) executeWithTimeout(ctx context.Context, call models.ToolCall) models.ToolResult {
	type execResult struct {
		result *models.ToolResult
		err    error
	}

	toolCtx, cancel := context.WithTimeout(ctx, d.config.PerToolTimeout)
	defer cancel()
	toolCtx = observability.AddToolCallID(toolCtx, call.ID)

	if d.tracer != nil {
		spanCtx, span := d.tracer.TraceToolExecution(toolCtx, call.Name, call.ID)
		toolCtx = spanCtx
		defer span.End()
	}

	resultChan := make(chan execResult, 1)
	go func() {
		result, err := d.executor.Execute(toolCtx, call)
		// Non-blocking send so the goroutine never leaks when the
		// deadline fired first.
		select {
		case resultChan <- execResult{result: result, err: err}:
		default:
			d.logger.Warn(toolCtx, "tool completed after timeout, result discarded",
				"tool", call.Name, "tool_call_id", call.ID)
		}
	}()

	select {
	case <-toolCtx.Done():
		content := "tool execution canceled"
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			content = fmt.Sprintf("tool execution timed out after %v", d.config.PerToolTimeout)
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    true,
		}
	case res := <-resultChan:
		if res.err != nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    res.err.Error(),
				IsError:    true,
			}
		}
		if res.result == nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    "tool execution returned no result",
				IsError:    true,
			}
		}
		out := *res.result
		if out.ToolCallID == "" {
			out.ToolCallID = call.ID
		}
		return out
	}
}
