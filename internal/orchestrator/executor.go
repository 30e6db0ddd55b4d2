package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/graph"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/pkg/models"
)

// GraphRun is the input to one graph execution call.
type GraphRun struct {
	// SessionID selects the session context patches are persisted to.
	SessionID string
	// Tasks are the tasks to run.
	Tasks []*models.Task
	// Satisfied holds ids completed before this call. Dependencies on them
	// are treated as met.
	Satisfied []string
	// Context is the session context to start from. When nil, it is read
	// from the store.
	Context *models.SessionContext
}

// GraphOutcome is the result of one graph execution call.
type GraphOutcome struct {
	// Results maps task id to result. Waves are recorded in sequence and
	// tasks within a wave in ready-set order.
	Results *models.TaskResults
	// Pending is the clarification surfaced to the user, if the run paused.
	Pending *models.ClarificationRequest
	// Held are the other clarifications raised in the pausing wave.
	Held []*models.ClarificationRequest
	// Remaining are the tasks not completed, in input order. Paused tasks
	// are included.
	Remaining []*models.Task
	// Completed lists ids completed during this call, disabled ones included.
	Completed []string
	// Skipped lists ids whose kind was disabled.
	Skipped []string
	// Context is the session context after all patches of this call.
	Context *models.SessionContext
}

// Paused reports whether the run stopped for clarification.
func (o *GraphOutcome) Paused() bool {
	return o != nil && o.Pending != nil
}

// ExecutorConfig holds optional settings for a GraphExecutor.
type ExecutorConfig struct {
	// MaxConcurrency bounds the tasks run at once within a wave. 0 means unbounded.
	MaxConcurrency int
	// Events receives progress events. May be nil.
	Events *EventEmitter
	// Now is the clock used for locally applied patches. Defaults to time.Now.
	Now func() time.Time
}

// GraphExecutor runs task graphs in dependency waves.
type GraphExecutor struct {
	registry       *agent.Registry
	store          memory.Store
	maxConcurrency int
	events         *EventEmitter
	now            func() time.Time
}

// NewGraphExecutor creates an executor dispatching tasks through registry.
// store may be nil, in which case patches are applied to the working
// context only.
func NewGraphExecutor(registry *agent.Registry, store memory.Store, cfg ExecutorConfig) *GraphExecutor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &GraphExecutor{
		registry:       registry,
		store:          store,
		maxConcurrency: cfg.MaxConcurrency,
		events:         cfg.Events,
		now:            now,
	}
}

// Execute runs the tasks wave by wave until all complete, a wave produces a
// clarification request, or no task can become ready.
//
// Agent failures never abort the run: they are recorded as error results
// and the task counts as completed. A dependency cycle returns
// ErrCircularDependency and no outcome.
func (e *GraphExecutor) Execute(ctx context.Context, run GraphRun) (outcome *GraphOutcome, err error) {
	ctx, span := startSpan(ctx, "graph.execute",
		attribute.String("session.id", run.SessionID),
		attribute.Int("graph.tasks", len(run.Tasks)),
	)
	defer func() { endSpan(span, err) }()

	sc, err := e.startContext(ctx, run)
	if err != nil {
		return nil, err
	}

	outcome = &GraphOutcome{Results: models.NewTaskResults(), Context: sc}

	var active []*models.Task
	for _, t := range run.Tasks {
		if e.registry.IsDisabled(t.Kind) {
			debugLog("[executor] task %s skipped: agent %s disabled", t.ID, t.Kind)
			outcome.Completed = append(outcome.Completed, t.ID)
			outcome.Skipped = append(outcome.Skipped, t.ID)
			e.events.Emit(Event{Type: EventTaskSkipped, SessionID: run.SessionID, TaskID: t.ID, Agent: t.Kind})
			continue
		}
		active = append(active, t)
	}

	g := graph.New()
	g.SetDebugLog(debugLog)
	if err := g.Build(active); err != nil {
		return nil, fmt.Errorf("build task graph: %w", err)
	}
	for _, id := range run.Satisfied {
		g.MarkComplete(id)
	}
	for _, id := range outcome.Skipped {
		g.MarkComplete(id)
	}

	single := len(run.Tasks) == 1
	remaining := len(active)

	for wave := 1; remaining > 0; wave++ {
		ready := g.GetReady()
		if single && len(ready) == 0 {
			ready = []string{active[0].ID}
		}
		if len(ready) == 0 {
			blocked := incompleteIDs(g, active)
			debugLog("[executor] no ready tasks, blocked: %v", blocked)
			return nil, fmt.Errorf("%w: blocked tasks %v", ErrCircularDependency, blocked)
		}

		tasks := make([]*models.Task, len(ready))
		for i, id := range ready {
			tasks[i] = g.GetTask(id)
		}

		debugLog("[executor] session %s wave %d: running %v", run.SessionID, wave, ready)
		e.events.Emit(Event{Type: EventWaveStarted, SessionID: run.SessionID, Wave: wave, Message: fmt.Sprintf("%d task(s)", len(ready))})

		results := e.runWave(ctx, wave, tasks, sc)

		type queued struct {
			taskID string
			patch  *models.ContextPatch
		}
		var patches []queued
		var pending []*models.ClarificationRequest

		for i, t := range tasks {
			res := results[i]
			switch res.Kind() {
			case models.ResultClarification:
				pending = append(pending, res.Clarification)
				e.events.Emit(Event{Type: EventTaskPaused, SessionID: run.SessionID, TaskID: t.ID, Agent: t.Kind, Wave: wave, Message: res.Clarification.Prompt})
				continue
			case models.ResultError:
				e.events.Emit(Event{Type: EventTaskFailed, SessionID: run.SessionID, TaskID: t.ID, Agent: t.Kind, Wave: wave, Message: res.Error})
			default:
				if !res.ContextPatch.Empty() {
					patches = append(patches, queued{taskID: t.ID, patch: res.ContextPatch})
				}
				e.events.Emit(Event{Type: EventTaskCompleted, SessionID: run.SessionID, TaskID: t.ID, Agent: t.Kind, Wave: wave, Message: fmt.Sprintf("%d tool call(s)", len(res.ToolCalls))})
			}
			outcome.Results.Set(t.ID, res)
			outcome.Completed = append(outcome.Completed, t.ID)
			g.MarkComplete(t.ID)
			remaining--
		}

		sort.SliceStable(patches, func(i, j int) bool { return patches[i].taskID < patches[j].taskID })
		for _, q := range patches {
			sc = e.persistPatch(ctx, run.SessionID, sc, q.patch)
		}
		outcome.Context = sc

		if len(pending) > 0 {
			outcome.Pending = pending[0]
			outcome.Held = pending[1:]
			if len(outcome.Held) == 0 {
				outcome.Held = nil
			}
			outcome.Remaining = remainingTasks(g, active)
			debugLog("[executor] session %s paused on task %s (%d held)", run.SessionID, outcome.Pending.TaskID, len(outcome.Held))
			return outcome, nil
		}
	}

	debugLog("[executor] session %s: graph complete, %d result(s)", run.SessionID, outcome.Results.Len())
	return outcome, nil
}

// startContext returns a private working copy of the session context.
func (e *GraphExecutor) startContext(ctx context.Context, run GraphRun) (*models.SessionContext, error) {
	if run.Context != nil {
		return run.Context.Clone(), nil
	}
	if e.store != nil && run.SessionID != "" {
		sc, err := e.store.Get(ctx, run.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session context: %w", err)
		}
		return sc, nil
	}
	return models.NewSessionContext(run.SessionID, e.now()), nil
}

// runWave runs every task of one wave concurrently and returns their
// results in task order. It returns only after all tasks finish.
func (e *GraphExecutor) runWave(ctx context.Context, wave int, tasks []*models.Task, sc *models.SessionContext) []*models.TaskResult {
	ctx, span := startSpan(ctx, "graph.wave",
		attribute.Int("wave", wave),
		attribute.Int("wave.size", len(tasks)),
	)
	defer span.End()

	results := make([]*models.TaskResult, len(tasks))

	// Tasks report failures as results, never as group errors, so a failing
	// task cannot cancel its siblings.
	var group errgroup.Group
	if e.maxConcurrency > 0 {
		group.SetLimit(e.maxConcurrency)
	}
	for i, t := range tasks {
		snapshot := sc.Clone()
		group.Go(func() error {
			results[i] = e.runTask(ctx, t, snapshot)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// runTask invokes the agent for one task. Errors, panics and unknown kinds
// are converted into error results.
func (e *GraphExecutor) runTask(ctx context.Context, task *models.Task, sc *models.SessionContext) (res *models.TaskResult) {
	ctx, span := startSpan(ctx, "task.run",
		attribute.String("task.id", task.ID),
		attribute.String("task.agent", string(task.Kind)),
	)
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("agent %s panicked: %v", task.Kind, r)
			res = models.ErrorResult(runErr)
		}
		if runErr != nil {
			debugLog("[executor] task %s failed: %v", task.ID, runErr)
		}
		span.SetAttributes(attribute.String("task.result", string(res.Kind())))
		endSpan(span, runErr)
	}()

	a, err := e.registry.Lookup(task.Kind)
	if err != nil {
		runErr = err
		return models.ErrorResult(err)
	}

	out, err := a.Run(ctx, agent.NewInput(task, sc))
	if err != nil {
		runErr = fmt.Errorf("run %s agent: %w", task.Kind, err)
		return models.ErrorResult(runErr)
	}

	res = models.ResultFromOutput(out)
	if res.Clarification != nil {
		req := *res.Clarification
		req.TaskID = task.ID
		res.Clarification = &req
	}
	return res
}

// persistPatch applies a patch through the store. If the store fails, the
// patch is applied to the working context so later waves still see it.
func (e *GraphExecutor) persistPatch(ctx context.Context, sessionID string, sc *models.SessionContext, patch *models.ContextPatch) *models.SessionContext {
	if e.store != nil && sessionID != "" {
		updated, err := e.store.Patch(ctx, sessionID, patch)
		if err == nil {
			return updated
		}
		log.Printf("[executor] WARNING: persist context patch for session %s: %v", sessionID, err)
	}
	return sc.Apply(patch, e.now())
}

func remainingTasks(g *graph.DependencyGraph, tasks []*models.Task) []*models.Task {
	var out []*models.Task
	for _, t := range tasks {
		if !g.IsComplete(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

func incompleteIDs(g *graph.DependencyGraph, tasks []*models.Task) []string {
	var out []string
	for _, t := range tasks {
		if !g.IsComplete(t.ID) {
			out = append(out, t.ID)
		}
	}
	return out
}
