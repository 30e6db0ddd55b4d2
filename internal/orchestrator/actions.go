package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ShayCichocki/loom/internal/platform"
	"github.com/ShayCichocki/loom/pkg/models"
)

const (
	// DefaultRetryAttempts is the total number of attempts per tool call.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = time.Second
)

// ActionConfig holds optional settings for an ActionExecutor.
type ActionConfig struct {
	// RetryAttempts is the total number of attempts per call. Values below 1
	// use DefaultRetryAttempts.
	RetryAttempts int
	// RetryDelay is the wait between attempts. Zero uses DefaultRetryDelay.
	RetryDelay time.Duration
	// Events receives action events. May be nil.
	Events *EventEmitter
}

// ActionExecutor runs tool calls against the platform one at a time.
type ActionExecutor struct {
	client   platform.Client
	attempts int
	delay    time.Duration
	events   *EventEmitter
}

// NewActionExecutor creates an action executor for client.
func NewActionExecutor(client platform.Client, cfg ActionConfig) *ActionExecutor {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = DefaultRetryAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &ActionExecutor{
		client:   client,
		attempts: attempts,
		delay:    delay,
		events:   cfg.Events,
	}
}

type pendingCall struct {
	taskID string
	call   models.ToolCall
}

// Run executes every tool call in results and returns one ExecutionResult
// per call, in execution order.
//
// Calls are gathered in result order, then call order, and stably sorted by
// their Order value. A failing call is retried with a fixed delay; once
// attempts are exhausted it is recorded as failed and the next call runs.
// After ctx is cancelled, remaining calls are recorded as failed without
// being executed. kinds maps task id to the agent kind recorded on results.
func (a *ActionExecutor) Run(ctx context.Context, results *models.TaskResults, kinds map[string]models.AgentKind) []models.ExecutionResult {
	calls := flatten(results)

	ctx, span := startSpan(ctx, "actions.run", attribute.Int("actions.count", len(calls)))
	defer span.End()

	out := make([]models.ExecutionResult, 0, len(calls))
	failed := 0
	for _, pc := range calls {
		res := a.execute(ctx, pc, kinds[pc.taskID])
		if !res.Success {
			failed++
		}
		out = append(out, res)
	}

	span.SetAttributes(attribute.Int("actions.failed", failed))
	debugLog("[actions] executed %d call(s), %d failed", len(out), failed)
	return out
}

// flatten collects tool calls in result insertion order and sorts them by
// their effective order. Ties keep collection order.
func flatten(results *models.TaskResults) []pendingCall {
	var calls []pendingCall
	for _, id := range results.IDs() {
		res, _ := results.Get(id)
		if res == nil {
			continue
		}
		for _, c := range res.ToolCalls {
			calls = append(calls, pendingCall{taskID: id, call: c})
		}
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].call.SortKey() < calls[j].call.SortKey()
	})
	return calls
}

func (a *ActionExecutor) execute(ctx context.Context, pc pendingCall, kind models.AgentKind) (res models.ExecutionResult) {
	ctx, span := startSpan(ctx, "action.call",
		attribute.String("task.id", pc.taskID),
		attribute.String("action.id", pc.call.ID),
		attribute.String("action.function", pc.call.FunctionName),
	)

	res = models.ExecutionResult{
		ID:           pc.call.ID,
		TaskID:       pc.taskID,
		Agent:        kind,
		FunctionName: pc.call.FunctionName,
	}

	var lastErr error
	defer func() {
		span.SetAttributes(attribute.Int("action.attempts", res.Attempts))
		if res.Success {
			endSpan(span, nil)
			a.events.Emit(Event{Type: EventActionSucceeded, TaskID: pc.taskID, Agent: kind, ToolCallID: pc.call.ID, FunctionName: pc.call.FunctionName, Attempts: res.Attempts})
			return
		}
		endSpan(span, lastErr)
		a.events.Emit(Event{Type: EventActionFailed, TaskID: pc.taskID, Agent: kind, ToolCallID: pc.call.ID, FunctionName: pc.call.FunctionName, Attempts: res.Attempts, Error: lastErr})
	}()

	for attempt := 1; attempt <= a.attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, a.delay); err != nil {
				debugLog("[actions] call %s: retry aborted: %v", pc.call.ID, err)
				break
			}
		} else if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		res.Attempts = attempt
		resp, err := a.call(ctx, pc.call)
		if err == nil {
			res.Response = resp
			res.Success = true
			return res
		}
		lastErr = err
		debugLog("[actions] call %s (%s) attempt %d/%d failed: %v", pc.call.ID, pc.call.FunctionName, attempt, a.attempts, err)
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

// call executes one attempt, converting a panicking client into an error.
func (a *ActionExecutor) call(ctx context.Context, c models.ToolCall) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("platform call %s panicked: %v", c.FunctionName, r)
		}
	}()
	return a.client.Execute(ctx, c.FunctionName, c.Arguments)
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
