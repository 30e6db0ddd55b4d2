package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/internal/planner"
	"github.com/ShayCichocki/loom/internal/platform"
	"github.com/ShayCichocki/loom/pkg/models"
)

// staticPlanner returns the same plan for every message.
type staticPlanner struct {
	plan *models.Plan
	err  error
}

func (p staticPlanner) Plan(ctx context.Context, message, sessionID string) (*models.Plan, error) {
	return p.plan, p.err
}

type harness struct {
	orch     *Orchestrator
	store    *memory.InMemoryStore
	platform *platform.DryRunClient
	log      *callLog
}

func newHarness(t *testing.T, plan *models.Plan, opts ...Option) *harness {
	t.Helper()
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{
		models.KindObject: agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
			log.add(in.Task.ID)
			return &models.AgentOutput{
				ToolCalls: []models.ToolCall{{ID: "call-" + in.Task.ID, FunctionName: "create_object", Arguments: map[string]any{"name": in.Task.ID}}},
			}, nil
		}),
		models.KindField: askAgent(log),
	})
	h := &harness{
		store:    memory.NewInMemoryStore(),
		platform: platform.NewDryRunClient(),
		log:      log,
	}
	opts = append([]Option{WithRetry(1, time.Millisecond)}, opts...)
	h.orch = New(RequiredConfig{
		Planner:  staticPlanner{plan: plan},
		Registry: reg,
		Store:    h.store,
		Platform: h.platform,
	}, opts...)
	return h
}

func TestHandleCompletesTurn(t *testing.T) {
	h := newHarness(t, &models.Plan{
		Summary: "Create an invoice object.",
		Tasks:   []*models.Task{task("invoice", models.KindObject)},
	})
	ctx := context.Background()

	turn, err := h.orch.Handle(ctx, "s1", "build an invoice tracker")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if turn.Paused {
		t.Fatalf("expected finished turn, got pending %+v", turn.Pending)
	}
	if len(turn.Executions) != 1 || !turn.Executions[0].Success {
		t.Fatalf("executions = %+v, want one success", turn.Executions)
	}
	if !strings.Contains(turn.Summary, "Create an invoice object.") {
		t.Errorf("summary = %q, want plan summary", turn.Summary)
	}

	sc, err := h.store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sc.ChatHistory) != 2 || sc.ChatHistory[0].Role != "user" || sc.ChatHistory[1].Role != "assistant" {
		t.Errorf("chat history = %+v, want user then assistant", sc.ChatHistory)
	}
	if len(sc.ToolCallLog) != 1 || sc.ToolCallLog[0].ToolCallID != "call-invoice" {
		t.Errorf("tool call log = %+v", sc.ToolCallLog)
	}
	objects := sc.EntitiesOfKind("object")
	if len(objects) != 1 || objects[0].Name != "invoice" || objects[0].TaskID != "invoice" {
		t.Errorf("created entities = %+v", objects)
	}
	if _, ok := sc.TaskResults["invoice"]; !ok {
		t.Error("task result not recorded in session")
	}
	if sc.PendingHITL != nil {
		t.Errorf("pending clarification = %+v, want nil", sc.PendingHITL)
	}
}

func TestHandleAssignsSessionID(t *testing.T) {
	h := newHarness(t, &models.Plan{Tasks: []*models.Task{task("a", models.KindObject)}})
	turn, err := h.orch.Handle(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if turn.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestHandlePauseAndResume(t *testing.T) {
	h := newHarness(t, &models.Plan{
		Tasks: []*models.Task{
			task("obj", models.KindObject),
			task("fld", models.KindField, "obj"),
			task("rpt", models.KindObject, "fld"),
		},
	})
	ctx := context.Background()

	turn, err := h.orch.Handle(ctx, "s1", "track invoices")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !turn.Paused || turn.Pending.TaskID != "fld" {
		t.Fatalf("turn = %+v, want paused on fld", turn)
	}
	if len(h.platform.Calls()) != 0 {
		t.Error("no actions should run while paused")
	}

	sc, _ := h.store.Get(ctx, "s1")
	if sc.PendingHITL == nil || sc.PendingHITL.TaskID != "fld" {
		t.Errorf("session pending = %+v, want fld", sc.PendingHITL)
	}
	pending, err := h.orch.Pending(ctx, "s1")
	if err != nil || pending == nil || pending.TaskID != "fld" {
		t.Errorf("Pending() = %+v, %v", pending, err)
	}

	turn, err = h.orch.Resume(ctx, "s1", "amount")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if turn.Paused {
		t.Fatalf("expected finished turn, got pending %+v", turn.Pending)
	}
	if len(turn.Executions) != 3 {
		t.Errorf("executions = %d, want 3", len(turn.Executions))
	}
	if h.log.count("obj") != 1 {
		t.Errorf("completed task re-ran: obj invoked %d times", h.log.count("obj"))
	}

	sc, _ = h.store.Get(ctx, "s1")
	if sc.PendingHITL != nil {
		t.Errorf("pending clarification = %+v, want cleared", sc.PendingHITL)
	}

	_, err = h.orch.Resume(ctx, "s1", "again")
	if !errors.Is(err, ErrNoSuspension) {
		t.Errorf("second Resume() error = %v, want ErrNoSuspension", err)
	}
}

func TestResumeWithoutSuspension(t *testing.T) {
	h := newHarness(t, &models.Plan{})
	_, err := h.orch.Resume(context.Background(), "nobody", "hi")
	if !errors.Is(err, ErrNoSuspension) {
		t.Fatalf("Resume() error = %v, want ErrNoSuspension", err)
	}
}

func TestResumeAgainKeepsHeldClarifications(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register(models.KindField, agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		return &models.AgentOutput{Clarification: &models.ClarificationRequest{Prompt: "which?"}}, nil
	}))
	suspensions := NewMemorySuspensions()
	orch := New(RequiredConfig{
		Planner:  staticPlanner{plan: &models.Plan{Tasks: []*models.Task{task("a", models.KindField), task("b", models.KindField)}}},
		Registry: reg,
		Store:    memory.NewInMemoryStore(),
		Platform: platform.NewDryRunClient(),
	}, WithSuspensions(suspensions))
	ctx := context.Background()

	if _, err := orch.Handle(ctx, "s1", "go"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	turn, err := orch.Resume(ctx, "s1", "not sure")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !turn.Paused || turn.Pending.TaskID != "a" {
		t.Fatalf("turn = %+v, want paused on a again", turn)
	}

	sus, err := suspensions.Load(ctx, "s1")
	if err != nil || sus == nil {
		t.Fatalf("Load() = %+v, %v", sus, err)
	}
	if len(sus.Held) != 1 || sus.Held[0].TaskID != "b" {
		t.Errorf("held = %+v, want b preserved", sus.Held)
	}
	if len(sus.Remaining) != 2 {
		t.Errorf("remaining = %d, want 2", len(sus.Remaining))
	}
}

func TestHandleSupersedesSuspension(t *testing.T) {
	h := newHarness(t, &models.Plan{Tasks: []*models.Task{task("fld", models.KindField)}})
	ctx := context.Background()

	if _, err := h.orch.Handle(ctx, "s1", "first"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	before, _ := h.orch.suspensions.Load(ctx, "s1")

	turn, err := h.orch.Handle(ctx, "s1", "second")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !turn.Paused {
		t.Fatal("expected the new run to pause again")
	}
	after, _ := h.orch.suspensions.Load(ctx, "s1")
	if before == nil || after == nil || before.ID == after.ID {
		t.Errorf("expected a fresh suspension, before=%v after=%v", before, after)
	}
}

func TestHandleStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		plan *models.Plan
		want error
	}{
		{
			name: "cycle",
			plan: &models.Plan{Tasks: []*models.Task{task("a", models.KindObject, "b"), task("b", models.KindObject, "a")}},
			want: ErrCircularDependency,
		},
		{
			name: "unknown dependency",
			plan: &models.Plan{Tasks: []*models.Task{task("a", models.KindObject, "ghost")}},
			want: planner.ErrInvalidPlan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.plan)
			_, err := h.orch.Handle(context.Background(), "s1", "go")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.want)
			}
			if !IsStructural(err) {
				t.Errorf("IsStructural(%v) = false", err)
			}
			if len(h.platform.Calls()) != 0 {
				t.Error("no actions should run after a structural failure")
			}
		})
	}
}

func TestHandlePlannerError(t *testing.T) {
	orch := New(RequiredConfig{
		Planner:  staticPlanner{err: errors.New("model overloaded")},
		Registry: agent.NewRegistry(),
		Store:    memory.NewInMemoryStore(),
		Platform: platform.NewDryRunClient(),
	})
	_, err := orch.Handle(context.Background(), "s1", "go")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("Handle() error = %v, want planner error", err)
	}
}

func TestOrchestratorEvents(t *testing.T) {
	h := newHarness(t, &models.Plan{Tasks: []*models.Task{task("a", models.KindObject)}}, WithEventBuffer(32))

	if _, err := h.orch.Handle(context.Background(), "s1", "go"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	h.orch.Close()

	seen := map[EventType]int{}
	for ev := range h.orch.Events() {
		seen[ev.Type]++
	}
	for _, want := range []EventType{EventWaveStarted, EventTaskCompleted, EventActionSucceeded, EventSessionDone} {
		if seen[want] == 0 {
			t.Errorf("missing %s event, got %v", want, seen)
		}
	}
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(ctx context.Context, plan *models.Plan, results *models.TaskResults, executions []models.ExecutionResult) (string, error) {
	return "", errors.New("no model")
}

func TestSummarizerFailureFallsBack(t *testing.T) {
	h := newHarness(t, &models.Plan{Summary: "Plan.", Tasks: []*models.Task{task("a", models.KindObject)}}, WithSummarizer(failingSummarizer{}))
	turn, err := h.orch.Handle(context.Background(), "s1", "go")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(turn.Summary, "Executed 1 of 1 action(s).") {
		t.Errorf("summary = %q, want text fallback", turn.Summary)
	}
}
