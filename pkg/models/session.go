package models

import "time"

// Message is one chat history entry.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Entity is a platform object created by an executed tool call.
type Entity struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCallLogEntry records one executed tool call in the session.
type ToolCallLogEntry struct {
	ToolCallID   string    `json:"tool_call_id"`
	TaskID       string    `json:"task_id"`
	FunctionName string    `json:"function_name"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// SessionContext is the session-scoped mutable context shared by all tasks
// of a session. It is owned by the memory store and only changed via Apply.
type SessionContext struct {
	SessionID       string                 `json:"session_id"`
	ChatHistory     []Message              `json:"chat_history"`
	CreatedEntities map[string][]Entity    `json:"created_entities"`
	ToolCallLog     []ToolCallLogEntry     `json:"tool_call_log"`
	TaskResults     map[string]*TaskResult `json:"task_results"`
	PendingHITL     *ClarificationRequest  `json:"pending_hitl,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// NewSessionContext returns an empty context with initialized collections.
func NewSessionContext(sessionID string, now time.Time) *SessionContext {
	return &SessionContext{
		SessionID:       sessionID,
		ChatHistory:     []Message{},
		CreatedEntities: map[string][]Entity{},
		ToolCallLog:     []ToolCallLogEntry{},
		TaskResults:     map[string]*TaskResult{},
		Timestamp:       now,
	}
}

// ContextPatch is a partial SessionContext. Every non-nil field replaces the
// corresponding context field as a whole; nothing is deep-merged.
type ContextPatch struct {
	ChatHistory     *[]Message              `json:"chat_history,omitempty"`
	CreatedEntities *map[string][]Entity    `json:"created_entities,omitempty"`
	ToolCallLog     *[]ToolCallLogEntry     `json:"tool_call_log,omitempty"`
	TaskResults     *map[string]*TaskResult `json:"task_results,omitempty"`
	// PendingHITL uses a double pointer so a patch can clear it:
	// nil leaves it alone, a pointer to nil clears it.
	PendingHITL **ClarificationRequest `json:"pending_hitl,omitempty"`
}

// Empty reports whether the patch touches no field.
func (p *ContextPatch) Empty() bool {
	return p == nil || (p.ChatHistory == nil && p.CreatedEntities == nil &&
		p.ToolCallLog == nil && p.TaskResults == nil && p.PendingHITL == nil)
}

// SetPendingHITL returns a patch that sets (or clears, when req is nil)
// the pending clarification.
func SetPendingHITL(req *ClarificationRequest) *ContextPatch {
	return &ContextPatch{PendingHITL: &req}
}

// Apply merges patch into the context at top-level field granularity and
// refreshes the timestamp. It returns the receiver for chaining.
func (c *SessionContext) Apply(patch *ContextPatch, now time.Time) *SessionContext {
	if patch != nil {
		if patch.ChatHistory != nil {
			c.ChatHistory = *patch.ChatHistory
		}
		if patch.CreatedEntities != nil {
			c.CreatedEntities = *patch.CreatedEntities
		}
		if patch.ToolCallLog != nil {
			c.ToolCallLog = *patch.ToolCallLog
		}
		if patch.TaskResults != nil {
			c.TaskResults = *patch.TaskResults
		}
		if patch.PendingHITL != nil {
			c.PendingHITL = *patch.PendingHITL
		}
	}
	c.Timestamp = now
	return c
}

// Clone copies the context and its top-level collections. Elements are
// shared, matching the shallow merge semantics of Apply. Collections of the
// copy are never nil, even when empty.
func (c *SessionContext) Clone() *SessionContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ChatHistory = make([]Message, len(c.ChatHistory))
	copy(cp.ChatHistory, c.ChatHistory)
	cp.ToolCallLog = make([]ToolCallLogEntry, len(c.ToolCallLog))
	copy(cp.ToolCallLog, c.ToolCallLog)
	cp.CreatedEntities = make(map[string][]Entity, len(c.CreatedEntities))
	for k, v := range c.CreatedEntities {
		entities := make([]Entity, len(v))
		copy(entities, v)
		cp.CreatedEntities[k] = entities
	}
	cp.TaskResults = make(map[string]*TaskResult, len(c.TaskResults))
	for k, v := range c.TaskResults {
		cp.TaskResults[k] = v
	}
	return &cp
}

// EntitiesOfKind returns the created entities recorded for a kind.
func (c *SessionContext) EntitiesOfKind(kind string) []Entity {
	if c == nil {
		return nil
	}
	return c.CreatedEntities[kind]
}
