package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultKind tags which variant a TaskResult holds.
type ResultKind string

const (
	// ResultSuccess holds tool calls and an optional context patch.
	ResultSuccess ResultKind = "success"
	// ResultClarification holds a clarification request.
	ResultClarification ResultKind = "clarification"
	// ResultError holds the error of a failed agent invocation.
	ResultError ResultKind = "error"
)

// TaskResult is the outcome of running one task's agent.
// Exactly one of the three variants is populated.
type TaskResult struct {
	ToolCalls     []ToolCall            `json:"tool_calls"`
	ContextPatch  *ContextPatch         `json:"context_patch,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// SuccessResult builds the success variant.
func SuccessResult(calls []ToolCall, patch *ContextPatch) *TaskResult {
	if calls == nil {
		calls = []ToolCall{}
	}
	return &TaskResult{ToolCalls: calls, ContextPatch: patch}
}

// ClarificationResult builds the clarification variant.
func ClarificationResult(req *ClarificationRequest) *TaskResult {
	return &TaskResult{ToolCalls: []ToolCall{}, Clarification: req}
}

// ErrorResult builds the error variant with empty tool calls.
func ErrorResult(err error) *TaskResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &TaskResult{ToolCalls: []ToolCall{}, Error: msg}
}

// ResultFromOutput converts an agent output into the matching variant.
func ResultFromOutput(out *AgentOutput) *TaskResult {
	if out == nil {
		return SuccessResult(nil, nil)
	}
	if out.Clarification != nil {
		return ClarificationResult(out.Clarification)
	}
	return SuccessResult(out.ToolCalls, out.ContextPatch)
}

// Kind reports which variant the result holds.
func (r *TaskResult) Kind() ResultKind {
	switch {
	case r.Clarification != nil:
		return ResultClarification
	case r.Error != "":
		return ResultError
	default:
		return ResultSuccess
	}
}

// TaskResults is an insertion-ordered map of task ID to result.
// The zero value is ready to use. It is not safe for concurrent use.
type TaskResults struct {
	order []string
	byID  map[string]*TaskResult
}

// NewTaskResults creates an empty result set.
func NewTaskResults() *TaskResults {
	return &TaskResults{byID: make(map[string]*TaskResult)}
}

// Set stores a result. Replacing an existing ID keeps its original position.
func (r *TaskResults) Set(taskID string, res *TaskResult) {
	if r.byID == nil {
		r.byID = make(map[string]*TaskResult)
	}
	if _, ok := r.byID[taskID]; !ok {
		r.order = append(r.order, taskID)
	}
	r.byID[taskID] = res
}

// Get returns the result for a task ID.
func (r *TaskResults) Get(taskID string) (*TaskResult, bool) {
	if r == nil || r.byID == nil {
		return nil, false
	}
	res, ok := r.byID[taskID]
	return res, ok
}

// Has reports whether a result exists for the task ID.
func (r *TaskResults) Has(taskID string) bool {
	_, ok := r.Get(taskID)
	return ok
}

// IDs returns task IDs in insertion order.
func (r *TaskResults) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of results.
func (r *TaskResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Merge appends every result of other, in its order.
func (r *TaskResults) Merge(other *TaskResults) {
	if other == nil {
		return
	}
	for _, id := range other.order {
		r.Set(id, other.byID[id])
	}
}

// Map returns a copy of the results as a plain map.
func (r *TaskResults) Map() map[string]*TaskResult {
	out := make(map[string]*TaskResult, r.Len())
	if r == nil {
		return out
	}
	for id, res := range r.byID {
		out[id] = res
	}
	return out
}

type orderedEntry struct {
	TaskID string      `json:"task_id"`
	Result *TaskResult `json:"result"`
}

// MarshalJSON encodes the results as an ordered list of entries.
func (r *TaskResults) MarshalJSON() ([]byte, error) {
	entries := make([]orderedEntry, 0, r.Len())
	if r != nil {
		for _, id := range r.order {
			entries = append(entries, orderedEntry{TaskID: id, Result: r.byID[id]})
		}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the ordered list written by MarshalJSON.
func (r *TaskResults) UnmarshalJSON(data []byte) error {
	r.order = nil
	r.byID = make(map[string]*TaskResult)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var entries []orderedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode task results: %w", err)
	}
	for _, e := range entries {
		r.Set(e.TaskID, e.Result)
	}
	return nil
}
