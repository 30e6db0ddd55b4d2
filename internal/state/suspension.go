package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/pkg/models"
)

// SuspensionStore persists suspended graph runs, one per session.
type SuspensionStore struct {
	db  *DB
	now func() time.Time
}

// NewSuspensionStore creates a SuspensionStore on a migrated database.
func NewSuspensionStore(db *DB) *SuspensionStore {
	return &SuspensionStore{db: db, now: time.Now}
}

// Save inserts or replaces the suspension for its session.
// An empty ID is assigned a new UUID.
func (s *SuspensionStore) Save(ctx context.Context, sus *models.Suspension) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sus.SessionID == "" {
		return fmt.Errorf("save suspension: empty session id")
	}

	now := s.now()
	if sus.ID == "" {
		sus.ID = uuid.NewString()
	}
	if sus.CreatedAt.IsZero() {
		sus.CreatedAt = now
	}
	sus.UpdatedAt = now

	payload, err := json.Marshal(sus)
	if err != nil {
		return fmt.Errorf("encode suspension: %w", err)
	}

	taskID := ""
	if sus.Pending != nil {
		taskID = sus.Pending.TaskID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suspended_runs (session_id, id, task_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			id = excluded.id,
			task_id = excluded.task_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, sus.SessionID, sus.ID, taskID, string(payload), FormatTime(sus.CreatedAt), FormatTime(sus.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save suspension: %w", err)
	}
	return nil
}

// Load returns the suspension for a session, or nil if there is none.
func (s *SuspensionStore) Load(ctx context.Context, sessionID string) (*models.Suspension, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM suspended_runs WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load suspension: %w", err)
	}

	var sus models.Suspension
	if err := json.Unmarshal([]byte(payload), &sus); err != nil {
		return nil, fmt.Errorf("decode suspension: %w", err)
	}
	return &sus, nil
}

// Delete removes the suspension for a session. Deleting a missing one is not an error.
func (s *SuspensionStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM suspended_runs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete suspension: %w", err)
	}
	return nil
}

// List returns the session ids with a suspended run, oldest first.
func (s *SuspensionStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM suspended_runs ORDER BY created_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list suspensions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan suspension: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
