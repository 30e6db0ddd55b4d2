package models

// AgentKind identifies which generator agent handles a task.
type AgentKind string

const (
	// KindObject generates custom object definitions.
	KindObject AgentKind = "object"
	// KindField generates fields on existing or newly created objects.
	KindField AgentKind = "field"
	// KindRecord generates data records.
	KindRecord AgentKind = "record"
	// KindLayout generates page layouts.
	KindLayout AgentKind = "layout"
	// KindWorkflow generates automation workflows.
	KindWorkflow AgentKind = "workflow"
	// KindReport generates reports and dashboards.
	KindReport AgentKind = "report"
)

// Valid returns true if the kind is one of the built-in kinds.
func (k AgentKind) Valid() bool {
	switch k {
	case KindObject, KindField, KindRecord, KindLayout, KindWorkflow, KindReport:
		return true
	default:
		return false
	}
}

// AllKinds returns the built-in agent kinds in a stable order.
func AllKinds() []AgentKind {
	return []AgentKind{KindObject, KindField, KindRecord, KindLayout, KindWorkflow, KindReport}
}

// Task is one node of a task graph produced by the planner.
type Task struct {
	// ID is unique within a graph.
	ID string `json:"id" yaml:"id"`
	// Kind selects the generator agent.
	Kind AgentKind `json:"agent" yaml:"agent"`
	// Description is the planner's summary of the work.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Data is the opaque per-kind payload handed to the agent.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// WithData returns a shallow copy of the task whose data is the original
// data plus extra. The receiver is not modified.
func (t *Task) WithData(extra map[string]any) *Task {
	cp := *t
	cp.Data = make(map[string]any, len(t.Data)+len(extra))
	for k, v := range t.Data {
		cp.Data[k] = v
	}
	for k, v := range extra {
		cp.Data[k] = v
	}
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	return &cp
}

// Plan is the planner's output for one message.
type Plan struct {
	// Summary is a short natural-language description of the plan.
	Summary string `json:"summary" yaml:"summary"`
	// Tasks is the task graph.
	Tasks []*Task `json:"tasks" yaml:"tasks"`
}

// TaskByID returns the task with the given ID, or nil.
func (p *Plan) TaskByID(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ToolCall is a named platform function invocation produced by an agent.
type ToolCall struct {
	ID           string         `json:"id"`
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	// Order controls execution order across all tasks. Nil sorts as 0.
	Order *int `json:"order,omitempty"`
}

// SortKey returns the effective execution order.
func (c ToolCall) SortKey() int {
	if c.Order == nil {
		return 0
	}
	return *c.Order
}

// ClarificationRequest identifies what a task needs from the user to proceed.
type ClarificationRequest struct {
	Prompt  string   `json:"prompt"`
	TaskID  string   `json:"task_id"`
	Missing []string `json:"missing,omitempty"`
}

// AgentOutput is what a generator agent returns for one invocation.
// A non-nil Clarification takes precedence over tool calls.
type AgentOutput struct {
	ToolCalls     []ToolCall            `json:"tool_calls,omitempty"`
	ContextPatch  *ContextPatch         `json:"context_patch,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
}

// ExecutionResult records the outcome of one tool call against the platform.
type ExecutionResult struct {
	// ID is the tool call ID.
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Agent        AgentKind `json:"agent"`
	FunctionName string    `json:"function_name"`
	Response     any       `json:"response"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`
}
