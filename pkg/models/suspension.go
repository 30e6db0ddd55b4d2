package models

import "time"

// Suspension is the resumable state of a graph run that paused for
// clarification. It lives between user turns, one per session.
type Suspension struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	// Plan is the full plan being executed.
	Plan *Plan `json:"plan"`
	// Remaining holds tasks not yet completed, including the paused ones.
	Remaining []*Task `json:"remaining"`
	// Satisfied holds ids completed in earlier segments, including
	// disabled-skipped ones.
	Satisfied []string `json:"satisfied"`
	// Results holds the results gathered so far.
	Results *TaskResults `json:"results"`
	// Pending is the clarification surfaced to the user.
	Pending *ClarificationRequest `json:"pending"`
	// Held are clarifications raised in the same wave but not surfaced.
	Held      []*ClarificationRequest `json:"held,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Kinds maps every planned task id to its agent kind.
func (s *Suspension) Kinds() map[string]AgentKind {
	kinds := make(map[string]AgentKind)
	if s.Plan != nil {
		for _, t := range s.Plan.Tasks {
			kinds[t.ID] = t.Kind
		}
	}
	for _, t := range s.Remaining {
		kinds[t.ID] = t.Kind
	}
	return kinds
}
