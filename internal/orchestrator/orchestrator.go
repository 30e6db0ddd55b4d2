package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/internal/agent"
	"github.com/ShayCichocki/loom/internal/memory"
	"github.com/ShayCichocki/loom/internal/planner"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Turn is the result of handling one user message or clarification reply.
type Turn struct {
	SessionID string
	Plan      *models.Plan
	// Results holds every task result of the run so far.
	Results *models.TaskResults
	// Pending is the clarification the user must answer, when Paused.
	Pending *models.ClarificationRequest
	// Executions are the platform calls made. Empty when Paused.
	Executions []models.ExecutionResult
	// Summary is the assistant reply. Empty when Paused.
	Summary string
	Paused  bool
}

// Orchestrator runs the plan, execute, suspend and act cycle for sessions.
type Orchestrator struct {
	planner     planner.Planner
	registry    *agent.Registry
	store       memory.Store
	suspensions SuspensionStore
	summarizer  Summarizer
	exec        *GraphExecutor
	resumer     *Resumer
	actions     *ActionExecutor
	events      *EventEmitter
	now         func() time.Time
}

// New creates an Orchestrator with required config and optional settings.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.suspensions == nil {
		o.suspensions = NewMemorySuspensions()
	}
	if o.summarizer == nil {
		o.summarizer = TextSummarizer{}
	}
	if o.now == nil {
		o.now = time.Now
	}

	var events *EventEmitter
	if o.eventBuffer > 0 {
		events = NewEventEmitter(o.eventBuffer)
	}

	if o.logger != nil {
		setPackageLogger(o.logger)
	}

	exec := NewGraphExecutor(req.Registry, req.Store, ExecutorConfig{
		MaxConcurrency: o.maxConcurrency,
		Events:         events,
		Now:            o.now,
	})

	return &Orchestrator{
		planner:     req.Planner,
		registry:    req.Registry,
		store:       req.Store,
		suspensions: o.suspensions,
		summarizer:  o.summarizer,
		exec:        exec,
		resumer:     NewResumer(exec),
		actions: NewActionExecutor(req.Platform, ActionConfig{
			RetryAttempts: o.retryAttempts,
			RetryDelay:    o.retryDelay,
			Events:        events,
		}),
		events: events,
		now:    o.now,
	}
}

// Events returns progress events, or nil when events are disabled.
func (o *Orchestrator) Events() <-chan Event {
	if o.events == nil {
		return nil
	}
	return o.events.Events()
}

// Registry returns the agent registry, so callers can toggle disabled kinds.
func (o *Orchestrator) Registry() *agent.Registry {
	return o.registry
}

// Close stops event delivery.
func (o *Orchestrator) Close() error {
	o.events.Close()
	return nil
}

// Handle plans and runs a new message for a session. An empty sessionID
// starts a new session. A message sent while a run is paused supersedes
// that run.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, message string) (*Turn, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	prev, err := o.suspensions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load suspension: %w", err)
	}
	if prev != nil {
		debugLog("[orchestrator] session %s: new message supersedes paused run %s", sessionID, prev.ID)
		if err := o.suspensions.Delete(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("delete suspension: %w", err)
		}
	}

	if err := o.appendMessage(ctx, sessionID, "user", message, prev != nil); err != nil {
		return nil, err
	}

	plan, err := o.planner.Plan(ctx, message, sessionID)
	if err != nil {
		return nil, fmt.Errorf("plan message: %w", err)
	}
	if err := planner.Validate(plan); err != nil {
		return nil, err
	}
	debugLog("[orchestrator] session %s: planned %d task(s)", sessionID, len(plan.Tasks))

	outcome, err := o.exec.Execute(ctx, GraphRun{SessionID: sessionID, Tasks: plan.Tasks})
	if err != nil {
		return nil, err
	}

	return o.finish(ctx, sessionID, plan, outcome, nil)
}

// Resume answers the session's pending clarification and continues the
// paused run. It returns ErrNoSuspension if the session is not paused.
func (o *Orchestrator) Resume(ctx context.Context, sessionID, reply string) (*Turn, error) {
	sus, err := o.suspensions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load suspension: %w", err)
	}
	if sus == nil || sus.Pending == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuspension, sessionID)
	}

	outcome, err := o.resumer.Resume(ctx, ResumeRequest{
		SessionID: sessionID,
		TaskID:    sus.Pending.TaskID,
		Reply:     reply,
		Remaining: sus.Remaining,
		Satisfied: sus.Satisfied,
		Results:   sus.Results,
	})
	if err != nil {
		return nil, err
	}

	if err := o.appendMessage(ctx, sessionID, "user", reply, false); err != nil {
		return nil, err
	}

	if outcome.Paused() && len(outcome.Completed) == 0 {
		// Same task asked again; clarifications held from its wave still wait.
		outcome.Held = sus.Held
	}

	return o.finish(ctx, sessionID, sus.Plan, outcome, sus)
}

// Pending returns the session's surfaced clarification, or nil.
func (o *Orchestrator) Pending(ctx context.Context, sessionID string) (*models.ClarificationRequest, error) {
	sus, err := o.suspensions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load suspension: %w", err)
	}
	if sus == nil {
		return nil, nil
	}
	return sus.Pending, nil
}

// finish either suspends a paused run or executes and records a finished
// one. prev is the suspension being resumed, if any.
func (o *Orchestrator) finish(ctx context.Context, sessionID string, plan *models.Plan, outcome *GraphOutcome, prev *models.Suspension) (*Turn, error) {
	turn := &Turn{
		SessionID: sessionID,
		Plan:      plan,
		Results:   outcome.Results,
		Pending:   outcome.Pending,
		Paused:    outcome.Paused(),
	}

	if turn.Paused {
		sus := &models.Suspension{
			SessionID: sessionID,
			Plan:      plan,
			Remaining: outcome.Remaining,
			Satisfied: outcome.Completed,
			Results:   outcome.Results,
			Pending:   outcome.Pending,
			Held:      outcome.Held,
			CreatedAt: o.now(),
			UpdatedAt: o.now(),
		}
		if prev != nil {
			sus.ID = prev.ID
			sus.CreatedAt = prev.CreatedAt
			sus.Satisfied = append(append([]string(nil), prev.Satisfied...), outcome.Completed...)
		}
		if err := o.suspensions.Save(ctx, sus); err != nil {
			return nil, fmt.Errorf("save suspension: %w", err)
		}
		if _, err := o.store.Patch(ctx, sessionID, models.SetPendingHITL(outcome.Pending)); err != nil {
			return nil, fmt.Errorf("record pending clarification: %w", err)
		}
		debugLog("[orchestrator] session %s paused on task %s", sessionID, outcome.Pending.TaskID)
		o.events.Emit(Event{Type: EventSessionDone, SessionID: sessionID, TaskID: outcome.Pending.TaskID, Message: "paused"})
		return turn, nil
	}

	kinds := kindsOf(plan)
	turn.Executions = o.actions.Run(ctx, outcome.Results, kinds)

	summary, err := o.summarizer.Summarize(ctx, plan, outcome.Results, turn.Executions)
	if err != nil {
		log.Printf("[orchestrator] WARNING: summarize session %s: %v", sessionID, err)
		summary, _ = TextSummarizer{}.Summarize(ctx, plan, outcome.Results, turn.Executions)
	}
	turn.Summary = summary

	if err := o.record(ctx, sessionID, turn); err != nil {
		log.Printf("[orchestrator] WARNING: record session %s: %v", sessionID, err)
	}
	if err := o.suspensions.Delete(ctx, sessionID); err != nil {
		log.Printf("[orchestrator] WARNING: delete suspension for session %s: %v", sessionID, err)
	}

	debugLog("[orchestrator] session %s done: %d execution(s)", sessionID, len(turn.Executions))
	o.events.Emit(Event{Type: EventSessionDone, SessionID: sessionID, Message: "complete"})
	return turn, nil
}

// record writes a finished turn into the session context: task results,
// the tool call log, created entities and the assistant reply. It clears
// the pending clarification.
func (o *Orchestrator) record(ctx context.Context, sessionID string, turn *Turn) error {
	sc, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session context: %w", err)
	}
	now := o.now()

	taskResults := make(map[string]*models.TaskResult, len(sc.TaskResults)+turn.Results.Len())
	for id, res := range sc.TaskResults {
		taskResults[id] = res
	}
	for id, res := range turn.Results.Map() {
		taskResults[id] = res
	}

	toolLog := append([]models.ToolCallLogEntry(nil), sc.ToolCallLog...)
	entities := make(map[string][]models.Entity, len(sc.CreatedEntities))
	for kind, list := range sc.CreatedEntities {
		entities[kind] = append([]models.Entity(nil), list...)
	}

	for _, ex := range turn.Executions {
		toolLog = append(toolLog, models.ToolCallLogEntry{
			ToolCallID:   ex.ID,
			TaskID:       ex.TaskID,
			FunctionName: ex.FunctionName,
			Success:      ex.Success,
			Error:        ex.Error,
			At:           now,
		})
		if e, ok := entityFrom(ex); ok {
			entities[e.Kind] = append(entities[e.Kind], e)
		}
	}

	history := append([]models.Message(nil), sc.ChatHistory...)
	history = append(history, models.Message{Role: "assistant", Content: turn.Summary, At: now})

	var cleared *models.ClarificationRequest
	_, err = o.store.Patch(ctx, sessionID, &models.ContextPatch{
		ChatHistory:     &history,
		CreatedEntities: &entities,
		ToolCallLog:     &toolLog,
		TaskResults:     &taskResults,
		PendingHITL:     &cleared,
	})
	if err != nil {
		return fmt.Errorf("patch session context: %w", err)
	}
	return nil
}

// appendMessage adds a chat message to the session history, optionally
// clearing the pending clarification.
func (o *Orchestrator) appendMessage(ctx context.Context, sessionID, role, content string, clearPending bool) error {
	sc, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session context: %w", err)
	}
	history := append([]models.Message(nil), sc.ChatHistory...)
	history = append(history, models.Message{Role: role, Content: content, At: o.now()})

	patch := &models.ContextPatch{ChatHistory: &history}
	if clearPending {
		var cleared *models.ClarificationRequest
		patch.PendingHITL = &cleared
	}
	if _, err := o.store.Patch(ctx, sessionID, patch); err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}

// entityFrom extracts the platform object created by a successful call.
// Responses carrying a string "id" are recorded under the task's kind.
func entityFrom(ex models.ExecutionResult) (models.Entity, bool) {
	if !ex.Success {
		return models.Entity{}, false
	}
	resp, ok := ex.Response.(map[string]any)
	if !ok {
		return models.Entity{}, false
	}
	id, _ := resp["id"].(string)
	if id == "" {
		return models.Entity{}, false
	}
	name, _ := resp["name"].(string)
	kind := string(ex.Agent)
	if kind == "" {
		kind = "unknown"
	}
	return models.Entity{ID: id, Kind: kind, Name: name, TaskID: ex.TaskID, ToolCallID: ex.ID}, true
}

func kindsOf(plan *models.Plan) map[string]models.AgentKind {
	return (&models.Suspension{Plan: plan}).Kinds()
}

// IsStructural reports whether err is a failure that aborts a turn rather
// than one recorded in results.
func IsStructural(err error) bool {
	return errors.Is(err, ErrCircularDependency) || errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrNoSuspension) || errors.Is(err, planner.ErrInvalidPlan)
}
