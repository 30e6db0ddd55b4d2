package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

type entry struct {
	sc        *models.SessionContext
	expiresAt time.Time
}

// InMemoryStore is a process-local Store. All data is lost when the process exits.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	opts     options
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryStore{
		sessions: make(map[string]*entry),
		opts:     o,
	}
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.opts.now()

	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	if ok && now.Before(e.expiresAt) {
		sc := e.sc.Clone()
		s.mu.RUnlock()
		return sc, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(sessionID, now).sc.Clone(), nil
}

// Patch implements Store.
func (s *InMemoryStore) Patch(ctx context.Context, sessionID string, patch *models.ContextPatch) (*models.SessionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveLocked(sessionID, now)
	e.sc.Apply(patch, now)
	e.expiresAt = now.Add(s.opts.ttl)
	return e.sc.Clone(), nil
}

// liveLocked returns the unexpired entry for a session, creating a fresh one if needed.
func (s *InMemoryStore) liveLocked(sessionID string, now time.Time) *entry {
	e, ok := s.sessions[sessionID]
	if ok && now.Before(e.expiresAt) {
		return e
	}
	e = &entry{
		sc:        models.NewSessionContext(sessionID, now),
		expiresAt: now.Add(s.opts.ttl),
	}
	s.sessions[sessionID] = e
	return e
}

// Reset implements Store.
func (s *InMemoryStore) Reset(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes expired sessions and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*entry)
	return nil
}

// StartJanitor sweeps expired sessions every interval until ctx is done.
// The returned channel is closed when the janitor exits.
func StartJanitor(ctx context.Context, interval time.Duration, sweep func() int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
	return done
}
