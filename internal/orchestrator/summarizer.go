package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Summarizer turns a finished run into the assistant's reply.
type Summarizer interface {
	Summarize(ctx context.Context, plan *models.Plan, results *models.TaskResults, executions []models.ExecutionResult) (string, error)
}

// TextSummarizer writes a plain-text report of a run.
type TextSummarizer struct{}

// Summarize implements Summarizer.
func (TextSummarizer) Summarize(ctx context.Context, plan *models.Plan, results *models.TaskResults, executions []models.ExecutionResult) (string, error) {
	var b strings.Builder

	if plan != nil && plan.Summary != "" {
		b.WriteString(plan.Summary)
		b.WriteString("\n\n")
	}

	succeeded := 0
	for _, ex := range executions {
		if ex.Success {
			succeeded++
		}
	}
	fmt.Fprintf(&b, "Executed %d of %d action(s).", succeeded, len(executions))

	for _, ex := range executions {
		if !ex.Success {
			fmt.Fprintf(&b, "\n  failed: %s (task %s, %d attempt(s)): %s", ex.FunctionName, ex.TaskID, ex.Attempts, ex.Error)
		}
	}

	for _, id := range results.IDs() {
		res, _ := results.Get(id)
		if res != nil && res.Kind() == models.ResultError {
			fmt.Fprintf(&b, "\n  task %s failed: %s", id, res.Error)
		}
	}

	return b.String(), nil
}
