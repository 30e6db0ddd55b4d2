package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/pkg/models"
)

// callLog records the order in which agents were invoked.
type callLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *callLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func (l *callLog) count(id string) int {
	n := 0
	for _, got := range l.list() {
		if got == id {
			n++
		}
	}
	return n
}

// okAgent returns one tool call named after the task and records the call.
func okAgent(log *callLog) agent.Agent {
	return agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		log.add(in.Task.ID)
		return &models.AgentOutput{
			ToolCalls: []models.ToolCall{{ID: "call-" + in.Task.ID, FunctionName: "create_" + in.Task.ID}},
		}, nil
	})
}

// askAgent asks for clarification until the task data carries a reply.
func askAgent(log *callLog) agent.Agent {
	return agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		log.add(in.Task.ID)
		if reply, ok := in.Clarification(); ok {
			return &models.AgentOutput{
				ToolCalls: []models.ToolCall{{ID: "call-" + in.Task.ID, FunctionName: "create_" + in.Task.ID, Arguments: map[string]any{"name": reply}}},
			}, nil
		}
		return &models.AgentOutput{
			Clarification: &models.ClarificationRequest{Prompt: "what name for " + in.Task.ID + "?"},
		}, nil
	})
}

func historyPatch(content string) *models.ContextPatch {
	h := []models.Message{{Role: "assistant", Content: content}}
	return &models.ContextPatch{ChatHistory: &h}
}

func newRegistry(agents map[models.AgentKind]agent.Agent) *agent.Registry {
	r := agent.NewRegistry()
	for kind, a := range agents {
		r.Register(kind, a)
	}
	return r
}

func task(id string, kind models.AgentKind, deps ...string) *models.Task {
	return &models.Task{ID: id, Kind: kind, DependsOn: deps}
}

func TestExecuteAcyclicGraphCompletes(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: okAgent(log)})
	exec := NewGraphExecutor(reg, memory.NewInMemoryStore(), ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		SessionID: "s1",
		Tasks: []*models.Task{
			task("a", models.KindObject),
			task("b", models.KindObject, "a"),
			task("c", models.KindObject, "b"),
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Paused() {
		t.Fatalf("expected run to finish, got pending %+v", out.Pending)
	}
	if got, want := out.Results.IDs(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("result ids = %v, want %v", got, want)
	}
	if got, want := log.list(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("call order = %v, want %v", got, want)
	}
	if len(out.Remaining) != 0 {
		t.Errorf("expected no remaining tasks, got %d", len(out.Remaining))
	}
}

func TestExecuteIndependentTasksRunInOneWave(t *testing.T) {
	var mu sync.Mutex
	started := 0
	all := make(chan struct{})

	barrier := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		mu.Lock()
		started++
		if started == 3 {
			close(all)
		}
		mu.Unlock()

		select {
		case <-all:
			return &models.AgentOutput{}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("siblings did not run concurrently")
		}
	})

	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: barrier})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		Tasks: []*models.Task{
			task("a", models.KindObject),
			task("b", models.KindObject),
			task("c", models.KindObject),
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		res, ok := out.Results.Get(id)
		if !ok {
			t.Fatalf("missing result for %s", id)
		}
		if res.Kind() != models.ResultSuccess {
			t.Errorf("task %s: result kind = %s (%s), want success", id, res.Kind(), res.Error)
		}
	}
}

func TestExecuteResultsFollowReadyOrder(t *testing.T) {
	delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 10 * time.Millisecond, "c": 0}
	slow := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		time.Sleep(delays[in.Task.ID])
		return &models.AgentOutput{}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: slow})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		Tasks: []*models.Task{task("a", models.KindObject), task("b", models.KindObject), task("c", models.KindObject)},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.Results.IDs(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("result ids = %v, want %v", got, want)
	}
}

func TestExecuteCircularDependency(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: okAgent(log)})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	tests := []struct {
		name  string
		tasks []*models.Task
	}{
		{
			name:  "two task cycle",
			tasks: []*models.Task{task("a", models.KindObject, "b"), task("b", models.KindObject, "a")},
		},
		{
			name: "cycle behind a runnable task",
			tasks: []*models.Task{
				task("root", models.KindObject),
				task("x", models.KindObject, "root", "y"),
				task("y", models.KindObject, "x"),
			},
		},
		{
			name:  "unknown dependency with several tasks",
			tasks: []*models.Task{task("a", models.KindObject), task("b", models.KindObject, "missing")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := exec.Execute(context.Background(), GraphRun{Tasks: tt.tasks})
			if !errors.Is(err, ErrCircularDependency) {
				t.Fatalf("Execute() error = %v, want ErrCircularDependency", err)
			}
			if out != nil {
				t.Errorf("expected no outcome on cycle, got %+v", out)
			}
		})
	}
}

func TestExecuteSingleTaskAlwaysReady(t *testing.T) {
	tests := []struct {
		name string
		task *models.Task
	}{
		{name: "self dependency", task: task("a", models.KindObject, "a")},
		{name: "unknown dependency", task: task("a", models.KindObject, "missing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: okAgent(log)})
			exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

			out, err := exec.Execute(context.Background(), GraphRun{Tasks: []*models.Task{tt.task}})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !out.Results.Has("a") {
				t.Error("expected single task to run")
			}
			if log.count("a") != 1 {
				t.Errorf("agent called %d times, want 1", log.count("a"))
			}
		})
	}
}

func TestExecuteDisabledKindCountsAsSatisfied(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{
		models.KindObject: okAgent(log),
		models.KindField:  okAgent(log),
	})
	reg.SetDisabled([]models.AgentKind{models.KindObject})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		Tasks: []*models.Task{task("obj", models.KindObject), task("fld", models.KindField, "obj")},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Results.Has("obj") {
		t.Error("disabled task should have no result")
	}
	if !out.Results.Has("fld") {
		t.Error("dependent of disabled task should run")
	}
	if got, want := out.Skipped, []string{"obj"}; !reflect.DeepEqual(got, want) {
		t.Errorf("skipped = %v, want %v", got, want)
	}
	if got, want := out.Completed, []string{"obj", "fld"}; !reflect.DeepEqual(got, want) {
		t.Errorf("completed = %v, want %v", got, want)
	}
	if log.count("obj") != 0 {
		t.Error("disabled agent should not be invoked")
	}
}

func TestExecuteSatisfiedDependencies(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: okAgent(log)})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		Tasks:     []*models.Task{task("b", models.KindObject, "a"), task("c", models.KindObject, "b")},
		Satisfied: []string{"a"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.Results.IDs(), []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("result ids = %v, want %v", got, want)
	}
}

func TestExecuteClarificationPausesAfterWave(t *testing.T) {
	log := &callLog{}
	patcher := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		log.add(in.Task.ID)
		return &models.AgentOutput{ContextPatch: historyPatch("from " + in.Task.ID)}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{
		models.KindObject: patcher,
		models.KindField:  askAgent(log),
	})
	store := memory.NewInMemoryStore()
	exec := NewGraphExecutor(reg, store, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		SessionID: "s1",
		Tasks: []*models.Task{
			task("a", models.KindObject),
			task("b", models.KindField),
			task("c", models.KindObject, "a"),
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.Paused() {
		t.Fatal("expected run to pause")
	}
	if out.Pending.TaskID != "b" {
		t.Errorf("pending task = %q, want b", out.Pending.TaskID)
	}
	if log.count("c") != 0 {
		t.Error("task in a later wave must not run after a pause")
	}
	if got, want := out.Results.IDs(), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("result ids = %v, want %v", got, want)
	}

	var remaining []string
	for _, r := range out.Remaining {
		remaining = append(remaining, r.ID)
	}
	if want := []string{"b", "c"}; !reflect.DeepEqual(remaining, want) {
		t.Errorf("remaining = %v, want %v", remaining, want)
	}

	sc, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sc.ChatHistory) != 1 || sc.ChatHistory[0].Content != "from a" {
		t.Errorf("expected wave patch to be persisted, got %+v", sc.ChatHistory)
	}
}

func TestExecuteHeldClarifications(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: askAgent(log)})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		Tasks: []*models.Task{task("a", models.KindObject), task("b", models.KindObject), task("c", models.KindObject)},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Pending == nil || out.Pending.TaskID != "a" {
		t.Fatalf("pending = %+v, want task a", out.Pending)
	}
	if len(out.Held) != 2 || out.Held[0].TaskID != "b" || out.Held[1].TaskID != "c" {
		t.Errorf("held = %+v, want b then c", out.Held)
	}
	if len(out.Remaining) != 3 {
		t.Errorf("remaining = %d, want 3", len(out.Remaining))
	}
}

func TestExecuteAgentFailuresDegradeAndContinue(t *testing.T) {
	tests := []struct {
		name    string
		failing agent.Agent
		kind    models.AgentKind
	}{
		{
			name: "agent error",
			failing: agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
				return nil, errors.New("boom")
			}),
			kind: models.KindObject,
		},
		{
			name: "agent panic",
			failing: agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
				panic("kaboom")
			}),
			kind: models.KindObject,
		},
		{
			name: "unregistered kind",
			kind: models.KindReport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			agents := map[models.AgentKind]agent.Agent{models.KindField: okAgent(log)}
			if tt.failing != nil {
				agents[tt.kind] = tt.failing
			}
			exec := NewGraphExecutor(newRegistry(agents), nil, ExecutorConfig{})

			out, err := exec.Execute(context.Background(), GraphRun{
				Tasks: []*models.Task{task("a", tt.kind), task("b", models.KindField, "a")},
			})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			res, ok := out.Results.Get("a")
			if !ok || res.Kind() != models.ResultError {
				t.Fatalf("result for a = %+v, want error result", res)
			}
			if len(res.ToolCalls) != 0 {
				t.Errorf("error result should carry no tool calls, got %d", len(res.ToolCalls))
			}
			if !out.Results.Has("b") {
				t.Error("dependent of failed task should still run")
			}
		})
	}
}

func TestExecutePatchesAppliedInTaskIDOrder(t *testing.T) {
	patcher := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		return &models.AgentOutput{ContextPatch: historyPatch(in.Task.ID)}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: patcher})
	store := memory.NewInMemoryStore()
	exec := NewGraphExecutor(reg, store, ExecutorConfig{})

	for i := 0; i < 5; i++ {
		sessionID := fmt.Sprintf("s%d", i)
		out, err := exec.Execute(context.Background(), GraphRun{
			SessionID: sessionID,
			Tasks:     []*models.Task{task("b", models.KindObject), task("a", models.KindObject)},
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if got := out.Context.ChatHistory[0].Content; got != "b" {
			t.Errorf("working context history = %q, want b (last by task id)", got)
		}
		sc, _ := store.Get(context.Background(), sessionID)
		if got := sc.ChatHistory[0].Content; got != "b" {
			t.Errorf("stored history = %q, want b", got)
		}
	}
}

func TestExecuteLaterWaveSeesPatch(t *testing.T) {
	var seen []models.Entity
	a := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		if in.Task.ID == "a" {
			entities := map[string][]models.Entity{"object": {{ID: "obj-1", Kind: "object", Name: "Invoice"}}}
			return &models.AgentOutput{ContextPatch: &models.ContextPatch{CreatedEntities: &entities}}, nil
		}
		seen = in.Context.EntitiesOfKind("object")
		return &models.AgentOutput{}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: a})
	exec := NewGraphExecutor(reg, memory.NewInMemoryStore(), ExecutorConfig{})

	_, err := exec.Execute(context.Background(), GraphRun{
		SessionID: "s1",
		Tasks:     []*models.Task{task("a", models.KindObject), task("b", models.KindObject, "a")},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(seen) != 1 || seen[0].ID != "obj-1" {
		t.Errorf("later wave saw entities %+v, want obj-1", seen)
	}
}

// failingStore rejects every patch.
type failingStore struct {
	memory.Store
}

func (failingStore) Patch(ctx context.Context, sessionID string, patch *models.ContextPatch) (*models.SessionContext, error) {
	return nil, errors.New("disk full")
}

func TestExecuteStoreFailureAppliesPatchLocally(t *testing.T) {
	var seen int
	a := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		if in.Task.ID == "a" {
			return &models.AgentOutput{ContextPatch: historyPatch("hello")}, nil
		}
		seen = len(in.Context.ChatHistory)
		return &models.AgentOutput{}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: a})
	exec := NewGraphExecutor(reg, failingStore{memory.NewInMemoryStore()}, ExecutorConfig{})

	out, err := exec.Execute(context.Background(), GraphRun{
		SessionID: "s1",
		Tasks:     []*models.Task{task("a", models.KindObject), task("b", models.KindObject, "a")},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen != 1 {
		t.Errorf("later wave saw %d messages, want 1", seen)
	}
	if len(out.Context.ChatHistory) != 1 {
		t.Errorf("outcome context has %d messages, want 1", len(out.Context.ChatHistory))
	}
}

func TestExecuteMaxConcurrency(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0
	a := agent.AgentFunc(func(ctx context.Context, in agent.Input) (*models.AgentOutput, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return &models.AgentOutput{}, nil
	})
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: a})
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{MaxConcurrency: 1})

	var tasks []*models.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%d", i), models.KindObject))
	}
	if _, err := exec.Execute(context.Background(), GraphRun{Tasks: tasks}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
}

func TestExecuteEmitsEvents(t *testing.T) {
	log := &callLog{}
	reg := newRegistry(map[models.AgentKind]agent.Agent{models.KindObject: okAgent(log)})
	events := NewEventEmitter(16)
	exec := NewGraphExecutor(reg, nil, ExecutorConfig{Events: events})

	if _, err := exec.Execute(context.Background(), GraphRun{Tasks: []*models.Task{task("a", models.KindObject)}}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	events.Close()

	var types []EventType
	for ev := range events.Events() {
		types = append(types, ev.Type)
	}
	if want := []EventType{EventWaveStarted, EventTaskCompleted}; !reflect.DeepEqual(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}
