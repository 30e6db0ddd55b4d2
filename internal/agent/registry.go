package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Registry is the capability table mapping an agent kind to its agent.
// It also tracks kinds that are administratively disabled. It is safe for
// concurrent use; the disabled set may change while graphs are running.
type Registry struct {
	// agents maps kinds to agents.
	agents map[models.AgentKind]Agent
	// disabled marks kinds whose tasks are skipped.
	disabled map[models.AgentKind]bool
	// mu protects all fields.
	mu sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:   make(map[models.AgentKind]Agent),
		disabled: make(map[models.AgentKind]bool),
	}
}

// Register binds an agent to a kind, replacing any previous binding.
func (r *Registry) Register(kind models.AgentKind, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[kind] = a
}

// Lookup returns the agent for a kind, or ErrUnknownKind.
func (r *Registry) Lookup(kind models.AgentKind) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return a, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []models.AgentKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.AgentKind, 0, len(r.agents))
	for k := range r.agents {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsDisabled reports whether tasks of this kind should be skipped.
func (r *Registry) IsDisabled(kind models.AgentKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[kind]
}

// SetDisabled replaces the disabled set.
func (r *Registry) SetDisabled(kinds []models.AgentKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disabled = make(map[models.AgentKind]bool, len(kinds))
	for _, k := range kinds {
		r.disabled[k] = true
	}
}

// Disabled returns the disabled kinds, sorted.
func (r *Registry) Disabled() []models.AgentKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.AgentKind, 0, len(r.disabled))
	for k, off := range r.disabled {
		if off {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
