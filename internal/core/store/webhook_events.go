package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pricewise/pricewise/internal/core"
)

// WebhookSeen reports whether a webhook id was already recorded.
func (s *Store) WebhookSeen(ctx context.Context, webhookID string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var found int
	err := s.DB.QueryRowContext(ctx, s.q(`SELECT 1 FROM webhook_events WHERE webhook_id = ?`), webhookID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup webhook event: %w", err)
	}
	return true, nil
}

// RecordWebhook inserts the event unless its id exists. It reports false
// when another delivery recorded the id first.
func (s *Store) RecordWebhook(ctx context.Context, event core.WebhookEvent) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id := strings.TrimSpace(event.WebhookID)
	if id == "" {
		return false, errors.New("webhook id is required")
	}
	processedAt := event.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}

	res, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO webhook_events (webhook_id, event_type, payload, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(webhook_id) DO NOTHING
	`), id, event.EventType, payload, processedAt.UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return affected == 1, nil
}

// ListWebhookEvents returns the most recent events, newest first.
func (s *Store) ListWebhookEvents(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT webhook_id, event_type, payload, processed_at
		FROM webhook_events
		ORDER BY processed_at DESC, webhook_id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var events []core.WebhookEvent
	for rows.Next() {
		var (
			event       core.WebhookEvent
			payload     string
			processedAt int64
		)
		if err := rows.Scan(&event.WebhookID, &event.EventType, &payload, &processedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		event.Payload = []byte(payload)
		event.ProcessedAt = time.Unix(processedAt, 0).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	return events, nil
}
