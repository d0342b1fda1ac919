// Copyright 2025 James Ross
package eventsdb

import (
	"context"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/google/uuid"
)

// OutboxRow is one pending or published analytics_outbox entry.
type OutboxRow struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Published   bool
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// PendingOutboxEvents returns events still unpublished, oldest first, so a
// sweep processes in submission order.
func (s *Store) PendingOutboxEvents(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, published, created_at, published_at
		FROM analytics_outbox
		WHERE published = false
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "pending_outbox", classify(err))
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.EventID, &r.Published, &r.CreatedAt, &r.PublishedAt); err != nil {
			return nil, apperr.NewBackendError("postgres", "pending_outbox_scan", classify(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkOutboxPublished records that eventID's outbox row has been delivered.
func (s *Store) MarkOutboxPublished(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analytics_outbox SET published = true, published_at = $2 WHERE event_id = $1
	`, eventID, time.Now().UTC())
	if err != nil {
		return apperr.NewBackendError("postgres", "mark_outbox_published", classify(err))
	}
	return nil
}
