// Package memory provides session-scoped context storage with expiry.
//
// A session's context is created lazily on first read, mutated only
// through patches (top-level field replacement, timestamp refresh), kept
// for a TTL after its last write, and can be reset explicitly.
package memory

import (
	"context"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

// DefaultTTL is how long a session context is kept after its last write.
const DefaultTTL = 24 * time.Hour

// Store holds session contexts keyed by session id.
//
// Concurrent patches to the same session are serialized; when two patches
// set the same field, the later one wins.
type Store interface {
	// Get returns the session context, creating an empty one on first access
	// or after expiry. The returned value is a copy.
	Get(ctx context.Context, sessionID string) (*models.SessionContext, error)
	// Patch merges the patch into the stored context and returns the result.
	Patch(ctx context.Context, sessionID string, patch *models.ContextPatch) (*models.SessionContext, error)
	// Reset discards the session context.
	Reset(ctx context.Context, sessionID string) error
	// Close releases resources held by the store.
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

func defaultOptions() options {
	return options{ttl: DefaultTTL, now: time.Now}
}

// WithTTL sets the expiry applied after each write. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
