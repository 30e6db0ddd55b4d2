package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

// SQLStore is a Store persisted in the session_contexts table of a state.DB.
// The database is owned by the caller; Close does not close it.
type SQLStore struct {
	db   *state.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store on a migrated database.
func NewSQLStore(db *state.DB, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, opts: o}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sc *models.SessionContext
	err := s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		var err error
		sc, err = s.loadOrCreate(ctx, tx, sessionID, s.opts.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}
	return sc, nil
}

// Patch implements Store. The read-modify-write runs in one transaction.
func (s *SQLStore) Patch(ctx context.Context, sessionID string, patch *models.ContextPatch) (*models.SessionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sc *models.SessionContext
	err := s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		now := s.opts.now()
		current, err := s.loadOrCreate(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		current.Apply(patch, now)
		if err := s.write(ctx, tx, current, now); err != nil {
			return err
		}
		sc = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("patch session context: %w", err)
	}
	return sc, nil
}

// Reset implements Store.
func (s *SQLStore) Reset(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_contexts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("reset session context: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired session contexts and returns how many were removed.
func (s *SQLStore) PurgeExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM session_contexts WHERE expires_at <= ?`, state.FormatTime(s.opts.now()))
	if err != nil {
		return 0, fmt.Errorf("purge expired contexts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// Sweep is PurgeExpired shaped for StartJanitor.
func (s *SQLStore) Sweep() int {
	n, err := s.PurgeExpired()
	if err != nil {
		log.Printf("[memory] sweep failed: %v", err)
		return 0
	}
	return int(n)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return nil
}

// loadOrCreate reads an unexpired context, or writes and returns a fresh one.
func (s *SQLStore) loadOrCreate(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) (*models.SessionContext, error) {
	var payload, expiresAt string
	err := tx.QueryRowContext(ctx, `SELECT payload, expires_at FROM session_contexts WHERE session_id = ?`, sessionID).
		Scan(&payload, &expiresAt)

	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("read session context: %w", err)
	default:
		exp, err := state.ParseTime(expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parse expiry: %w", err)
		}
		if now.Before(exp) {
			var sc models.SessionContext
			if err := json.Unmarshal([]byte(payload), &sc); err != nil {
				return nil, fmt.Errorf("decode session context: %w", err)
			}
			normalize(&sc)
			return &sc, nil
		}
	}

	sc := models.NewSessionContext(sessionID, now)
	if err := s.write(ctx, tx, sc, now); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *SQLStore) write(ctx context.Context, tx *sql.Tx, sc *models.SessionContext, now time.Time) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode session context: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_contexts (session_id, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, sc.SessionID, string(payload), state.FormatTime(now.Add(s.opts.ttl)), state.FormatTime(now))
	if err != nil {
		return fmt.Errorf("write session context: %w", err)
	}
	return nil
}

// normalize restores empty collections that decode as nil.
func normalize(sc *models.SessionContext) {
	if sc.ChatHistory == nil {
		sc.ChatHistory = []models.Message{}
	}
	if sc.CreatedEntities == nil {
		sc.CreatedEntities = map[string][]models.Entity{}
	}
	if sc.ToolCallLog == nil {
		sc.ToolCallLog = []models.ToolCallLogEntry{}
	}
	if sc.TaskResults == nil {
		sc.TaskResults = map[string]*models.TaskResult{}
	}
}
