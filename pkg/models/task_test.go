package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAgentKind_Valid(t *testing.T) {
	tests := []struct {
		name string
		kind AgentKind
		want bool
	}{
		{"object is valid", KindObject, true},
		{"field is valid", KindField, true},
		{"record is valid", KindRecord, true},
		{"layout is valid", KindLayout, true},
		{"workflow is valid", KindWorkflow, true},
		{"report is valid", KindReport, true},
		{"empty string is invalid", AgentKind(""), false},
		{"unknown kind is invalid", AgentKind("email"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("AgentKind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestTask_WithData(t *testing.T) {
	task := &Task{
		ID:        "t1",
		Kind:      KindField,
		Data:      map[string]any{"name": "Email"},
		DependsOn: []string{"t0"},
	}

	cp := task.WithData(map[string]any{"clarification": "text"})

	if cp.Data["clarification"] != "text" {
		t.Errorf("expected clarification in copy, got %v", cp.Data)
	}
	if cp.Data["name"] != "Email" {
		t.Errorf("expected original data in copy, got %v", cp.Data)
	}
	if _, ok := task.Data["clarification"]; ok {
		t.Error("original task data should not be modified")
	}
	cp.DependsOn[0] = "changed"
	if task.DependsOn[0] != "t0" {
		t.Error("original dependencies should not be shared with the copy")
	}
}

func TestToolCall_SortKey(t *testing.T) {
	two := 2
	if got := (ToolCall{}).SortKey(); got != 0 {
		t.Errorf("nil order should sort as 0, got %d", got)
	}
	if got := (ToolCall{Order: &two}).SortKey(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestTaskResult_Kind(t *testing.T) {
	tests := []struct {
		name   string
		result *TaskResult
		want   ResultKind
	}{
		{"success", SuccessResult([]ToolCall{{ID: "c1"}}, nil), ResultSuccess},
		{"empty success", SuccessResult(nil, nil), ResultSuccess},
		{"clarification", ClarificationResult(&ClarificationRequest{TaskID: "t1"}), ResultClarification},
		{"error", ErrorResult(errors.New("boom")), ResultError},
		{"nil error still errors", ErrorResult(nil), ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
			if tt.result.ToolCalls == nil {
				t.Error("ToolCalls should never be nil")
			}
		})
	}
}

func TestResultFromOutput(t *testing.T) {
	out := &AgentOutput{
		ToolCalls:     []ToolCall{{ID: "c1"}},
		Clarification: &ClarificationRequest{TaskID: "t1", Prompt: "which object?"},
	}
	if got := ResultFromOutput(out).Kind(); got != ResultClarification {
		t.Errorf("clarification should win over tool calls, got %q", got)
	}

	if got := ResultFromOutput(nil).Kind(); got != ResultSuccess {
		t.Errorf("nil output should be an empty success, got %q", got)
	}
}

func TestTaskResults_PreservesInsertionOrder(t *testing.T) {
	r := NewTaskResults()
	r.Set("c", SuccessResult(nil, nil))
	r.Set("a", SuccessResult(nil, nil))
	r.Set("b", SuccessResult(nil, nil))
	r.Set("c", ErrorResult(errors.New("replaced")))

	ids := r.IDs()
	want := []string{"c", "a", "b"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %v", len(want), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	res, ok := r.Get("c")
	if !ok || res.Kind() != ResultError {
		t.Errorf("expected replaced result for c, got %+v", res)
	}
}

func TestTaskResults_Merge(t *testing.T) {
	a := NewTaskResults()
	a.Set("t1", SuccessResult(nil, nil))

	b := NewTaskResults()
	b.Set("t2", SuccessResult(nil, nil))
	b.Set("t3", SuccessResult(nil, nil))

	a.Merge(b)
	a.Merge(nil)

	if a.Len() != 3 {
		t.Fatalf("expected 3 results, got %d", a.Len())
	}
	if ids := a.IDs(); ids[2] != "t3" {
		t.Errorf("expected t3 last, got %v", ids)
	}
}

func TestTaskResults_JSONKeepsOrder(t *testing.T) {
	r := NewTaskResults()
	r.Set("z", SuccessResult([]ToolCall{{ID: "c1", FunctionName: "create_object"}}, nil))
	r.Set("a", ClarificationResult(&ClarificationRequest{TaskID: "a", Prompt: "?"}))

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded TaskResults
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ids := decoded.IDs()
	if len(ids) != 2 || ids[0] != "z" || ids[1] != "a" {
		t.Errorf("expected order [z a], got %v", ids)
	}
	res, _ := decoded.Get("a")
	if res.Kind() != ResultClarification {
		t.Errorf("expected clarification for a, got %q", res.Kind())
	}
}

func TestTaskResults_ZeroValueUsable(t *testing.T) {
	var r TaskResults
	r.Set("t1", SuccessResult(nil, nil))
	if !r.Has("t1") {
		t.Error("zero value should accept Set")
	}

	var nilResults *TaskResults
	if nilResults.Len() != 0 || nilResults.IDs() != nil {
		t.Error("nil results should behave as empty")
	}
}

func TestPlan_TaskByID(t *testing.T) {
	p := &Plan{Tasks: []*Task{{ID: "a"}, {ID: "b"}}}
	if got := p.TaskByID("b"); got == nil || got.ID != "b" {
		t.Errorf("expected task b, got %v", got)
	}
	if got := p.TaskByID("missing"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSessionContext_ApplyIsShallow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := NewSessionContext("s1", start)
	ctx.CreatedEntities["object"] = []Entity{{ID: "o1", Kind: "object"}}
	ctx.ChatHistory = []Message{{Role: "user", Content: "hi"}}

	replacement := map[string][]Entity{"field": {{ID: "f1", Kind: "field"}}}
	later := start.Add(time.Minute)
	ctx.Apply(&ContextPatch{CreatedEntities: &replacement}, later)

	if _, ok := ctx.CreatedEntities["object"]; ok {
		t.Error("patch should replace the whole field, not deep-merge it")
	}
	if len(ctx.CreatedEntities["field"]) != 1 {
		t.Errorf("expected field entity, got %v", ctx.CreatedEntities)
	}
	if len(ctx.ChatHistory) != 1 {
		t.Error("untouched fields should be preserved")
	}
	if !ctx.Timestamp.Equal(later) {
		t.Errorf("timestamp should be refreshed, got %v", ctx.Timestamp)
	}
}

func TestSessionContext_PendingHITLSetAndClear(t *testing.T) {
	now := time.Now()
	ctx := NewSessionContext("s1", now)

	req := &ClarificationRequest{TaskID: "t1", Prompt: "which?"}
	ctx.Apply(SetPendingHITL(req), now)
	if ctx.PendingHITL == nil || ctx.PendingHITL.TaskID != "t1" {
		t.Fatalf("expected pending clarification, got %v", ctx.PendingHITL)
	}

	ctx.Apply(&ContextPatch{}, now)
	if ctx.PendingHITL == nil {
		t.Error("an empty patch should leave PendingHITL alone")
	}

	ctx.Apply(SetPendingHITL(nil), now)
	if ctx.PendingHITL != nil {
		t.Error("expected pending clarification to be cleared")
	}
}

func TestContextPatch_Empty(t *testing.T) {
	var nilPatch *ContextPatch
	if !nilPatch.Empty() {
		t.Error("nil patch should be empty")
	}
	if !(&ContextPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	if SetPendingHITL(nil).Empty() {
		t.Error("clearing patch should not be empty")
	}
}

func TestSessionContext_CloneIsIndependent(t *testing.T) {
	ctx := NewSessionContext("s1", time.Now())
	ctx.ChatHistory = append(ctx.ChatHistory, Message{Role: "user", Content: "a"})
	ctx.CreatedEntities["object"] = []Entity{{ID: "o1"}}

	cp := ctx.Clone()
	cp.ChatHistory = append(cp.ChatHistory, Message{Role: "assistant"})
	cp.CreatedEntities["object"] = append(cp.CreatedEntities["object"], Entity{ID: "o2"})

	if len(ctx.ChatHistory) != 1 {
		t.Errorf("original chat history changed: %v", ctx.ChatHistory)
	}
	if len(ctx.EntitiesOfKind("object")) != 1 {
		t.Errorf("original entities changed: %v", ctx.CreatedEntities)
	}
}

func TestSessionContext_CloneKeepsEmptyCollections(t *testing.T) {
	ctx := NewSessionContext("s1", time.Now())
	ctx.CreatedEntities["object"] = []Entity{}

	cp := ctx.Clone()
	if cp.ChatHistory == nil || cp.ToolCallLog == nil || cp.TaskResults == nil {
		t.Fatalf("empty collections became nil: %+v", cp)
	}
	if cp.CreatedEntities["object"] == nil {
		t.Error("empty entity list became nil")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"chat_history":[]`, `"tool_call_log":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("json missing %s: %s", want, data)
		}
	}
}
