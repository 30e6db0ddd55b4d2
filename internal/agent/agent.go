// Package agent provides the generator agents that turn one task into tool
// calls, a context patch, or a clarification request.
package agent

import (
	"context"
	"errors"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrUnknownKind indicates no agent is registered for a task's kind.
var ErrUnknownKind = errors.New("unknown agent kind")

// ClarificationKey is the data key under which a user's clarification reply
// is handed back to the agent on resume.
const ClarificationKey = "clarification"

// Input is everything an agent sees for one invocation.
type Input struct {
	// Task is the task being run. Its Data may already include a
	// clarification reply.
	Task *models.Task
	// Data is the task payload. It equals Task.Data.
	Data map[string]any
	// Context is a read-only snapshot of the session context.
	Context *models.SessionContext
}

// Agent generates output for tasks of one kind.
type Agent interface {
	Run(ctx context.Context, in Input) (*models.AgentOutput, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, in Input) (*models.AgentOutput, error)

// Run calls f.
func (f AgentFunc) Run(ctx context.Context, in Input) (*models.AgentOutput, error) {
	return f(ctx, in)
}

// NewInput builds the input for a task against a context snapshot.
func NewInput(task *models.Task, sc *models.SessionContext) Input {
	return Input{Task: task, Data: task.Data, Context: sc}
}

// Clarification returns the clarification reply carried in the data, if any.
func (in Input) Clarification() (string, bool) {
	reply, ok := in.Data[ClarificationKey].(string)
	return reply, ok && reply != ""
}
