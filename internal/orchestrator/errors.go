package orchestrator

import "errors"

var (
	// ErrCircularDependency indicates no task is ready while tasks remain.
	ErrCircularDependency = errors.New("circular dependency")
	// ErrTaskNotFound indicates a resume target is not among the remaining tasks.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoSuspension indicates a resume for a session with no paused run.
	ErrNoSuspension = errors.New("no suspended run for session")
)
