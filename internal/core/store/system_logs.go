package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SystemLog is one persisted audit record.
type SystemLog struct {
	Level     string
	Category  string
	Message   string
	UserID    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// InsertSystemLog persists an audit record.
func (s *Store) InsertSystemLog(ctx context.Context, entry SystemLog) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var metadata any
	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode log metadata: %w", err)
		}
		metadata = string(payload)
	}
	var userID any
	if entry.UserID != "" {
		userID = entry.UserID
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO system_logs (level, category, message, user_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), entry.Level, entry.Category, entry.Message, userID, metadata, createdAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

// CountSystemLogs returns the number of persisted records in a category,
// or all records when category is empty.
func (s *Store) CountSystemLogs(ctx context.Context, category string) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT COUNT(*) FROM system_logs`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, s.q(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count system logs: %w", err)
	}
	return count, nil
}
