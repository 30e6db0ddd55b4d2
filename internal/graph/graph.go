// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task depends on an ID that is neither in
// the graph nor externally satisfied.
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrDuplicateTask indicates two tasks share an ID.
var ErrDuplicateTask = errors.New("duplicate task id")

// DependencyGraph represents the task graph of one run.
// Tasks are nodes, and edges represent "blocked by" relationships.
// Dependencies on IDs outside the graph are kept; they are satisfied only
// once marked complete.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order is node insertion order, used for deterministic iteration.
	order []string
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which IDs have been marked complete, in or out of the graph.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build registers tasks as nodes and their DependsOn fields as edges.
// It does not validate dependencies or cycles; see Validate.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		g.debugLog("[graph.Build] adding task: id=%s agent=%s depends_on=%v", task.ID, task.Kind, task.DependsOn)
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = append([]string(nil), task.DependsOn...)
	}

	return nil
}

// Validate checks that every dependency resolves to a node or a satisfied
// external ID, and that the graph is acyclic.
func (g *DependencyGraph) Validate(satisfied ...string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	external := make(map[string]bool, len(satisfied))
	for _, id := range satisfied {
		external[id] = true
	}

	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if _, exists := g.nodes[depID]; exists || external[depID] || g.completed[depID] {
				continue
			}
			return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, id, depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			if _, inGraph := g.nodes[depID]; !inGraph {
				continue
			}
			switch colors[depID] {
			case 1:
				// Back edge.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			if _, inGraph := g.nodes[depID]; inGraph {
				visit(depID)
			}
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// GetReady returns IDs of tasks that are not complete and whose dependencies
// are all complete, in insertion order. These tasks can run in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.readyLocked(g.completed)
}

func (g *DependencyGraph) readyLocked(completed map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		if completed[id] {
			continue
		}
		blocked := false
		for _, depID := range g.edges[id] {
			if !completed[depID] {
				g.debugLog("[graph.GetReady] task %s: dep %s not satisfied", id, depID)
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

// Waves groups the incomplete tasks into the successive ready sets an
// executor would run if every task completed. Tasks that can never become
// ready (cycles, unknown dependencies) are returned as blocked.
func (g *DependencyGraph) Waves() (waves [][]string, blocked []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	completed := make(map[string]bool, len(g.completed))
	for id, done := range g.completed {
		completed[id] = done
	}

	for {
		ready := g.readyLocked(completed)
		if len(ready) == 0 {
			break
		}
		waves = append(waves, ready)
		for _, id := range ready {
			completed[id] = true
		}
	}

	for _, id := range g.order {
		if !completed[id] {
			blocked = append(blocked, id)
		}
	}
	return waves, blocked
}

// MarkComplete marks an ID as completed. The ID need not be a node, which
// lets externally satisfied dependencies be recorded.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.MarkComplete] marking task %s as complete", taskID)
	g.completed[taskID] = true
}

// IsComplete reports whether an ID has been marked complete.
func (g *DependencyGraph) IsComplete(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[taskID]
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// GetCompletedIDs returns every ID marked as completed.
func (g *DependencyGraph) GetCompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, done := range g.completed {
		if done {
			ids = append(ids, id)
		}
	}
	return ids
}
