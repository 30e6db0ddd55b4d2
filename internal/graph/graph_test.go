package graph

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/loom/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{ID: id, Kind: models.KindObject, DependsOn: deps}
}

func TestBuild_DuplicateID(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a"), task("a")})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		tasks     []*models.Task
		satisfied []string
		wantErr   error
	}{
		{
			name:  "linear chain",
			tasks: []*models.Task{task("a"), task("b", "a"), task("c", "b")},
		},
		{
			name:    "unknown dependency",
			tasks:   []*models.Task{task("a", "ghost")},
			wantErr: ErrUnknownDependency,
		},
		{
			name:      "externally satisfied dependency",
			tasks:     []*models.Task{task("b", "a")},
			satisfied: []string{"a"},
		},
		{
			name:    "two node cycle",
			tasks:   []*models.Task{task("a", "b"), task("b", "a")},
			wantErr: ErrCycleDetected,
		},
		{
			name:    "self dependency",
			tasks:   []*models.Task{task("a", "a")},
			wantErr: ErrCycleDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			if err := g.Build(tt.tasks); err != nil {
				t.Fatalf("Build: %v", err)
			}
			err := g.Validate(tt.satisfied...)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetReady_InsertionOrder(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("c"), task("a"), task("b", "a")}); err != nil {
		t.Fatal(err)
	}

	ready := g.GetReady()
	if len(ready) != 2 || ready[0] != "c" || ready[1] != "a" {
		t.Fatalf("expected [c a], got %v", ready)
	}

	g.MarkComplete("a")
	ready = g.GetReady()
	if len(ready) != 2 || ready[0] != "c" || ready[1] != "b" {
		t.Fatalf("expected [c b], got %v", ready)
	}
}

func TestGetReady_ExternalDependency(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("b", "a")}); err != nil {
		t.Fatal(err)
	}
	if ready := g.GetReady(); len(ready) != 0 {
		t.Fatalf("b should be blocked on a, got %v", ready)
	}

	g.MarkComplete("a")
	if ready := g.GetReady(); len(ready) != 1 || ready[0] != "b" {
		t.Fatalf("expected [b], got %v", ready)
	}
	if !g.IsComplete("a") {
		t.Error("external id should be recorded as complete")
	}
}

func TestWaves(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("obj"),
		task("field1", "obj"),
		task("field2", "obj"),
		task("layout", "field1", "field2"),
		task("report"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatal(err)
	}

	waves, blocked := g.Waves()
	if len(blocked) != 0 {
		t.Fatalf("expected nothing blocked, got %v", blocked)
	}
	want := [][]string{{"obj", "report"}, {"field1", "field2"}, {"layout"}}
	if len(waves) != len(want) {
		t.Fatalf("expected %d waves, got %v", len(want), waves)
	}
	for i := range want {
		if len(waves[i]) != len(want[i]) {
			t.Fatalf("wave %d: expected %v, got %v", i, want[i], waves[i])
		}
		for j := range want[i] {
			if waves[i][j] != want[i][j] {
				t.Errorf("wave %d: expected %v, got %v", i, want[i], waves[i])
			}
		}
	}

	if g.IsComplete("obj") {
		t.Error("Waves should not mark tasks complete")
	}
}

func TestWaves_Blocked(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "c"), task("c", "b")}); err != nil {
		t.Fatal(err)
	}

	waves, blocked := g.Waves()
	if len(waves) != 1 || waves[0][0] != "a" {
		t.Fatalf("expected single wave [a], got %v", waves)
	}
	if len(blocked) != 2 {
		t.Fatalf("expected b and c blocked, got %v", blocked)
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("c", "b"), task("b", "a"), task("a")}); err != nil {
		t.Fatal(err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("dependencies must come first, got %v", order)
	}

	cyclic := New()
	_ = cyclic.Build([]*models.Task{task("x", "y"), task("y", "x")})
	if _, err := cyclic.TopologicalSort(); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestGetDependents(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a"), task("c", "a"), task("d")}); err != nil {
		t.Fatal(err)
	}

	deps := g.GetDependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("expected [b c], got %v", deps)
	}
	if got := g.GetDependencies("b"); len(got) != 1 || got[0] != "a" {
		t.Errorf("expected [a], got %v", got)
	}
	if g.Size() != 4 {
		t.Errorf("expected size 4, got %d", g.Size())
	}
	if g.GetTask("missing") != nil {
		t.Error("expected nil for unknown task")
	}
}
