package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/pkg/models"
)

// ResumeRequest carries a user's reply to a paused task together with the
// state of the run it paused.
type ResumeRequest struct {
	SessionID string
	// TaskID is the paused task the reply answers.
	TaskID string
	// Reply is the user's clarification.
	Reply string
	// Remaining are the tasks not yet completed, the paused one included.
	Remaining []*models.Task
	// Satisfied holds ids completed before the pause.
	Satisfied []string
	// Results holds results gathered before the pause. It is not modified.
	Results *models.TaskResults
}

// Resumer continues paused runs.
type Resumer struct {
	exec *GraphExecutor
}

// NewResumer creates a resumer that runs continuations on exec.
func NewResumer(exec *GraphExecutor) *Resumer {
	return &Resumer{exec: exec}
}

// Resume re-runs the paused task with the reply merged into its data under
// the "clarification" key, then executes the rest of the remaining tasks.
//
// The returned outcome's Results include req.Results, the resumed task's
// result and the continuation's results. If the task asks for clarification
// again, the outcome is paused on it with Remaining unchanged. An unknown
// task id returns ErrTaskNotFound and changes nothing.
func (r *Resumer) Resume(ctx context.Context, req ResumeRequest) (outcome *GraphOutcome, err error) {
	ctx, span := startSpan(ctx, "hitl.resume",
		attribute.String("session.id", req.SessionID),
		attribute.String("task.id", req.TaskID),
	)
	defer func() { endSpan(span, err) }()

	idx := -1
	for i, t := range req.Remaining {
		if t.ID == req.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, req.TaskID)
	}

	results := models.NewTaskResults()
	results.Merge(req.Results)

	sc, err := r.exec.startContext(ctx, GraphRun{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	original := req.Remaining[idx]
	rest := make([]*models.Task, 0, len(req.Remaining)-1)
	rest = append(rest, req.Remaining[:idx]...)
	rest = append(rest, req.Remaining[idx+1:]...)

	completed := []string{original.ID}
	var skipped []string

	if r.exec.registry.IsDisabled(original.Kind) {
		debugLog("[resume] task %s skipped: agent %s disabled", original.ID, original.Kind)
		skipped = append(skipped, original.ID)
		r.exec.events.Emit(Event{Type: EventTaskSkipped, SessionID: req.SessionID, TaskID: original.ID, Agent: original.Kind})
	} else {
		task := original.WithData(map[string]any{agent.ClarificationKey: req.Reply})
		res := r.exec.runTask(ctx, task, sc.Clone())

		switch res.Kind() {
		case models.ResultClarification:
			debugLog("[resume] task %s asked for clarification again", original.ID)
			r.exec.events.Emit(Event{Type: EventTaskPaused, SessionID: req.SessionID, TaskID: original.ID, Agent: original.Kind, Message: res.Clarification.Prompt})
			return &GraphOutcome{
				Results:   results,
				Pending:   res.Clarification,
				Remaining: req.Remaining,
				Context:   sc,
			}, nil
		case models.ResultError:
			r.exec.events.Emit(Event{Type: EventTaskFailed, SessionID: req.SessionID, TaskID: original.ID, Agent: original.Kind, Message: res.Error})
		default:
			if !res.ContextPatch.Empty() {
				sc = r.exec.persistPatch(ctx, req.SessionID, sc, res.ContextPatch)
			}
			r.exec.events.Emit(Event{Type: EventTaskCompleted, SessionID: req.SessionID, TaskID: original.ID, Agent: original.Kind, Message: fmt.Sprintf("%d tool call(s)", len(res.ToolCalls))})
		}
		results.Set(original.ID, res)
	}

	if len(rest) == 0 {
		debugLog("[resume] task %s resolved, nothing remaining", original.ID)
		return &GraphOutcome{Results: results, Completed: completed, Skipped: skipped, Context: sc}, nil
	}

	satisfied := append(append([]string(nil), req.Satisfied...), original.ID)
	debugLog("[resume] task %s resolved, continuing with %d task(s)", original.ID, len(rest))

	cont, err := r.exec.Execute(ctx, GraphRun{
		SessionID: req.SessionID,
		Tasks:     rest,
		Satisfied: satisfied,
		Context:   sc,
	})
	if err != nil {
		return nil, err
	}

	results.Merge(cont.Results)
	return &GraphOutcome{
		Results:   results,
		Pending:   cont.Pending,
		Held:      cont.Held,
		Remaining: cont.Remaining,
		Completed: append(completed, cont.Completed...),
		Skipped:   append(skipped, cont.Skipped...),
		Context:   cont.Context,
	}, nil
}
