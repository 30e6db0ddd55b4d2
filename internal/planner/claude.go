package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/pkg/models"
)

const plannerSystemPrompt = `You plan work for a no-code application builder.
Break the user's request into tasks, one per generated artifact group.
Each task has a unique short id, an agent kind, a one-line description,
a data object with everything the agent needs, and depends_on listing the
ids of tasks that must finish first (fields depend on their object, layouts
and reports on the fields they show).
Agent kinds: %s.
Submit the plan with the submit_plan tool.`

var submitPlanTool = api.ToolSpec{
	Name:        "submit_plan",
	Description: "Submit the task graph for the request.",
	Properties: map[string]any{
		"summary": api.StringProp("One-sentence summary of the plan"),
		"tasks": api.ArrayProp("Tasks of the graph", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":          api.StringProp("Unique task id"),
				"agent":       api.StringProp("Agent kind"),
				"description": api.StringProp("What the task produces"),
				"data":        api.ObjectProp("Agent payload"),
				"depends_on":  api.ArrayProp("Ids of prerequisite tasks", api.StringProp("task id")),
			},
			"required": []string{"id", "agent"},
		}),
	},
	Required: []string{"summary", "tasks"},
}

// ClaudePlanner plans through Anthropic tool use.
type ClaudePlanner struct {
	completer api.Completer
}

var _ Planner = (*ClaudePlanner)(nil)

// NewClaudePlanner creates a Claude-backed planner.
func NewClaudePlanner(completer api.Completer) *ClaudePlanner {
	return &ClaudePlanner{completer: completer}
}

// Plan implements Planner.
func (p *ClaudePlanner) Plan(ctx context.Context, message, sessionID string) (*models.Plan, error) {
	kinds := make([]string, 0, len(models.AllKinds()))
	for _, k := range models.AllKinds() {
		kinds = append(kinds, string(k))
	}

	resp, err := p.completer.Complete(ctx, api.Request{
		System:    fmt.Sprintf(plannerSystemPrompt, strings.Join(kinds, ", ")),
		Prompt:    message,
		Tools:     []api.ToolSpec{submitPlanTool},
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, fmt.Errorf("plan request: %w", err)
	}

	for _, use := range resp.ToolUses {
		if use.Name == submitPlanTool.Name {
			return decodePlan(use.Input)
		}
	}
	return ParseResponse(resp.Text)
}

// decodePlan converts a submit_plan tool input into a plan.
func decodePlan(input map[string]any) (*models.Plan, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

// ParseResponse extracts a JSON plan object from free text.
func ParseResponse(response string) (*models.Plan, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON plan found in response (got %d chars): %q", len(response), preview)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(response[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}
	return &plan, nil
}
