package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/pkg/models"
)

// SuspensionStore persists paused runs between user turns, one per session.
// state.SuspensionStore implements it on SQLite.
type SuspensionStore interface {
	// Save stores the suspension, replacing any previous one for the session.
	Save(ctx context.Context, sus *models.Suspension) error
	// Load returns the session's suspension, or nil, nil if there is none.
	Load(ctx context.Context, sessionID string) (*models.Suspension, error)
	// Delete removes the session's suspension. Deleting a missing one is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// MemorySuspensions is an in-process SuspensionStore. Stored values are
// copied, so callers cannot alter them after Save or Load.
type MemorySuspensions struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemorySuspensions creates an empty store.
func NewMemorySuspensions() *MemorySuspensions {
	return &MemorySuspensions{items: make(map[string][]byte)}
}

// Save implements SuspensionStore.
// An empty ID is assigned a new UUID.
func (m *MemorySuspensions) Save(ctx context.Context, sus *models.Suspension) error {
	if sus.SessionID == "" {
		return fmt.Errorf("save suspension: empty session id")
	}
	if sus.ID == "" {
		sus.ID = uuid.NewString()
	}
	data, err := json.Marshal(sus)
	if err != nil {
		return fmt.Errorf("encode suspension: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sus.SessionID] = data
	return nil
}

// Load implements SuspensionStore.
func (m *MemorySuspensions) Load(ctx context.Context, sessionID string) (*models.Suspension, error) {
	m.mu.RLock()
	data, ok := m.items[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var sus models.Suspension
	if err := json.Unmarshal(data, &sus); err != nil {
		return nil, fmt.Errorf("decode suspension: %w", err)
	}
	return &sus, nil
}

// Delete implements SuspensionStore.
func (m *MemorySuspensions) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sessionID)
	return nil
}
