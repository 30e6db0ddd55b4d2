package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/pkg/models"
)

const claudeSystemPrompt = `You are the %s generator for a no-code application platform.
Turn the task into platform function calls using the provided tools.
Call each function once per entity to create. Use names of entities already
created in this session when referring to them.
If information that is required cannot be inferred from the task or the
session, call request_clarification instead of guessing.`

// ClaudeAgent generates tool calls for one kind through Anthropic tool use.
type ClaudeAgent struct {
	kind      models.AgentKind
	completer api.Completer
	tools     []api.ToolSpec
}

var _ Agent = (*ClaudeAgent)(nil)

// NewClaudeAgent creates a Claude-backed agent for a kind.
func NewClaudeAgent(kind models.AgentKind, completer api.Completer) *ClaudeAgent {
	tools := append(Functions(kind), clarificationTool)
	return &ClaudeAgent{kind: kind, completer: completer, tools: tools}
}

// Run implements Agent.
func (a *ClaudeAgent) Run(ctx context.Context, in Input) (*models.AgentOutput, error) {
	prompt, err := a.buildPrompt(in)
	if err != nil {
		return nil, err
	}

	resp, err := a.completer.Complete(ctx, api.Request{
		System: fmt.Sprintf(claudeSystemPrompt, a.kind),
		Prompt: prompt,
		Tools:  a.tools,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s agent: %w", a.kind, err)
	}

	return a.parse(in, resp), nil
}

func (a *ClaudeAgent) buildPrompt(in Input) (string, error) {
	var sb strings.Builder

	if in.Task != nil {
		sb.WriteString(fmt.Sprintf("## Task %s\n%s\n\n", in.Task.ID, in.Task.Description))
	}

	data, err := json.MarshalIndent(in.Data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode task data: %w", err)
	}
	sb.WriteString("## Task data\n")
	sb.Write(data)
	sb.WriteString("\n\n")

	if reply, ok := in.Clarification(); ok {
		sb.WriteString("## User clarification\n")
		sb.WriteString(reply)
		sb.WriteString("\n\n")
	}

	if in.Context != nil && len(in.Context.CreatedEntities) > 0 {
		sb.WriteString("## Entities created in this session\n")
		for _, kind := range sortedKeys(in.Context.CreatedEntities) {
			for _, e := range in.Context.CreatedEntities[kind] {
				sb.WriteString(fmt.Sprintf("- %s %s (id %s)\n", kind, e.Name, e.ID))
			}
		}
	}
	return sb.String(), nil
}

// parse maps tool_use blocks to tool calls. A clarification request wins over
// any function calls in the same turn.
func (a *ClaudeAgent) parse(in Input, resp *api.Response) *models.AgentOutput {
	out := &models.AgentOutput{ToolCalls: []models.ToolCall{}}
	base := DefaultOrder(a.kind)

	for _, use := range resp.ToolUses {
		if use.Name == clarificationTool.Name {
			req := &models.ClarificationRequest{Prompt: stringField(use.Input, "prompt")}
			if in.Task != nil {
				req.TaskID = in.Task.ID
			}
			if missing, err := stringList(use.Input["missing"]); err == nil {
				req.Missing = missing
			}
			out.Clarification = req
			continue
		}

		id := use.ID
		if id == "" {
			id = uuid.NewString()
		}
		order := base
		if explicit, ok := toInt(use.Input["order"]); ok {
			order = explicit
			delete(use.Input, "order")
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:           id,
			FunctionName: use.Name,
			Arguments:    use.Input,
			Order:        &order,
		})
	}

	if out.Clarification != nil {
		out.ToolCalls = []models.ToolCall{}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func sortedKeys(m map[string][]models.Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
