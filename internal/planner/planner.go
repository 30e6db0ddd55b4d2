// Package planner turns a user message into a task graph.
package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrInvalidPlan indicates a plan whose task graph is malformed.
var ErrInvalidPlan = errors.New("invalid plan")

// Planner produces the task graph for one message.
type Planner interface {
	Plan(ctx context.Context, message, sessionID string) (*models.Plan, error)
}

// Validate checks that every task has a unique, non-empty id and that every
// dependency names a task in the plan or an id in satisfied. Cycles are left
// to the executor, which owns the single-task exception.
func Validate(plan *models.Plan, satisfied ...string) error {
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}

	ids := make(map[string]bool, len(plan.Tasks)+len(satisfied))
	for _, id := range satisfied {
		ids[id] = true
	}

	var problems []string
	seen := make(map[string]bool, len(plan.Tasks))
	for i, t := range plan.Tasks {
		if t == nil {
			problems = append(problems, fmt.Sprintf("task %d is empty", i))
			continue
		}
		if strings.TrimSpace(t.ID) == "" {
			problems = append(problems, fmt.Sprintf("task %d has no id", i))
			continue
		}
		if seen[t.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id %q", t.ID))
		}
		seen[t.ID] = true
		ids[t.ID] = true
	}

	for _, t := range plan.Tasks {
		if t == nil {
			continue
		}
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				problems = append(problems, fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(problems, "; "))
	}
	return nil
}

// ParsePlan decodes a YAML (or JSON) task graph document.
func ParsePlan(data []byte) (*models.Plan, error) {
	var plan models.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	for _, t := range plan.Tasks {
		if t != nil && t.Data != nil {
			t.Data = normalizeYAML(t.Data).(map[string]any)
		}
	}
	return &plan, nil
}

// normalizeYAML converts any map[any]any left by the decoder into map[string]any.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeYAML(inner)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprint(k)] = normalizeYAML(inner)
		}
		return out
	case []any:
		for i, inner := range val {
			val[i] = normalizeYAML(inner)
		}
		return val
	default:
		return v
	}
}

// FilePlanner serves a fixed task graph read from a YAML file.
// The message becomes the summary when the file has none.
type FilePlanner struct {
	path string
}

var _ Planner = (*FilePlanner)(nil)

// NewFilePlanner creates a planner for the graph file at path.
func NewFilePlanner(path string) *FilePlanner {
	return &FilePlanner{path: path}
}

// Plan implements Planner. The file is re-read on every call.
func (p *FilePlanner) Plan(ctx context.Context, message, sessionID string) (*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	if plan.Summary == "" {
		plan.Summary = message
	}
	return plan, nil
}
