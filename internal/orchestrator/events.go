package orchestrator

import (
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventWaveStarted indicates a wave of ready tasks is starting.
	EventWaveStarted EventType = "wave_started"
	// EventTaskCompleted indicates a task produced tool calls.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task's agent failed; the task still counts as completed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskPaused indicates a task asked for clarification.
	EventTaskPaused EventType = "task_paused"
	// EventTaskSkipped indicates a task's kind is disabled.
	EventTaskSkipped EventType = "task_skipped"
	// EventActionSucceeded indicates a tool call succeeded against the platform.
	EventActionSucceeded EventType = "action_succeeded"
	// EventActionFailed indicates a tool call failed after all attempts.
	EventActionFailed EventType = "action_failed"
	// EventSessionDone indicates a turn finished (paused or complete).
	EventSessionDone EventType = "session_done"
)

// Event is emitted by executors as a run progresses.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SessionID is the session the run belongs to.
	SessionID string
	// TaskID is the related task, if any.
	TaskID string
	// Agent is the related task's kind, if any.
	Agent models.AgentKind
	// Wave is the 1-based wave number within one graph call.
	Wave int
	// ToolCallID and FunctionName identify the related tool call, if any.
	ToolCallID   string
	FunctionName string
	// Attempts is the number of attempts made for action events.
	Attempts int
	// Message provides additional context.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
