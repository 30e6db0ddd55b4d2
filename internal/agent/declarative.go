package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Data keys understood by DeclarativeAgent.
const (
	// KeyToolCalls lists the tool calls to emit.
	KeyToolCalls = "tool_calls"
	// KeyRequires lists data keys that must be present before tool calls
	// are emitted. Missing keys produce a clarification request.
	KeyRequires = "requires"
	// KeyPrompt overrides the clarification prompt.
	KeyPrompt = "prompt"
	// KeyContextPatch is decoded into a models.ContextPatch.
	KeyContextPatch = "context_patch"
	// KeyFail makes the agent fail with the given message.
	KeyFail = "fail"
)

// DeclarativeAgent emits the tool calls spelled out in the task data.
//
// String argument values of the form "$key" are replaced with data[key],
// so values supplied through clarification flow into arguments. When keys
// named in "requires" are missing, the agent asks for the first one; a
// clarification reply fills the first missing key.
type DeclarativeAgent struct {
	Kind models.AgentKind
}

var _ Agent = (*DeclarativeAgent)(nil)

// NewDeclarativeAgent creates a declarative agent for a kind.
func NewDeclarativeAgent(kind models.AgentKind) *DeclarativeAgent {
	return &DeclarativeAgent{Kind: kind}
}

// Run implements Agent.
func (a *DeclarativeAgent) Run(ctx context.Context, in Input) (*models.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg, ok := in.Data[KeyFail].(string); ok && msg != "" {
		return nil, errors.New(msg)
	}

	data := make(map[string]any, len(in.Data))
	for k, v := range in.Data {
		data[k] = v
	}

	required, err := stringList(data[KeyRequires])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", KeyRequires, err)
	}
	missing := missingKeys(data, required)
	if reply, ok := in.Clarification(); ok && len(missing) > 0 {
		data[missing[0]] = reply
		missing = missing[1:]
	}
	if len(missing) > 0 {
		return &models.AgentOutput{Clarification: a.clarify(in.Task, data, missing)}, nil
	}

	calls, err := a.toolCalls(data)
	if err != nil {
		return nil, err
	}

	out := &models.AgentOutput{ToolCalls: calls}
	if raw, ok := data[KeyContextPatch]; ok && raw != nil {
		patch, err := decodePatch(raw)
		if err != nil {
			return nil, err
		}
		out.ContextPatch = patch
	}
	return out, nil
}

func (a *DeclarativeAgent) clarify(task *models.Task, data map[string]any, missing []string) *models.ClarificationRequest {
	taskID := ""
	if task != nil {
		taskID = task.ID
	}
	prompt, _ := data[KeyPrompt].(string)
	if prompt == "" {
		prompt = fmt.Sprintf("The %s task %q needs a value for %s.", a.Kind, taskID, strings.Join(missing, ", "))
	}
	return &models.ClarificationRequest{
		Prompt:  prompt,
		TaskID:  taskID,
		Missing: missing,
	}
}

func (a *DeclarativeAgent) toolCalls(data map[string]any) ([]models.ToolCall, error) {
	raw, ok := data[KeyToolCalls]
	if !ok || raw == nil {
		return []models.ToolCall{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %T", KeyToolCalls, raw)
	}

	calls := make([]models.ToolCall, 0, len(items))
	for i, item := range items {
		spec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a map, got %T", KeyToolCalls, i, item)
		}

		name, _ := spec["function"].(string)
		if name == "" {
			name, _ = spec["function_name"].(string)
		}
		if name == "" {
			return nil, fmt.Errorf("%s[%d] has no function", KeyToolCalls, i)
		}

		call := models.ToolCall{FunctionName: name}
		if id, ok := spec["id"].(string); ok && id != "" {
			call.ID = id
		} else {
			call.ID = uuid.NewString()
		}
		if order, ok := toInt(spec["order"]); ok {
			call.Order = &order
		}
		if args, ok := spec["arguments"].(map[string]any); ok {
			call.Arguments = substitute(args, data).(map[string]any)
		} else {
			call.Arguments = map[string]any{}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// substitute replaces "$key" strings with data[key], recursing into maps and lists.
func substitute(v any, data map[string]any) any {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "$") {
			if repl, ok := data[val[1:]]; ok {
				return repl
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = substitute(inner, data)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = substitute(inner, data)
		}
		return out
	default:
		return v
	}
}

func missingKeys(data map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		v, ok := data[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func stringList(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func decodePatch(raw any) (*models.ContextPatch, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode context patch: %w", err)
	}
	var patch models.ContextPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("decode context patch: %w", err)
	}
	if patch.Empty() {
		return nil, nil
	}
	return &patch, nil
}
