// Copyright 2025 James Ross
package eventsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is the relational DAO for users, event_types and events. It wraps
// a *sql.DB rather than a transaction so callers control their own
// transaction boundaries; EnsureSchema is deliberately absent here because
// schema ownership belongs to the migrations/ SQL files consumed by the
// (out of scope) migrator CLI, not to this package.
type Store struct {
	db    *sql.DB
	types *TypeDict
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, types: NewTypeDict(db)}
}

// CreateUser inserts a new user row. A duplicate ID is reported as
// ErrConflict, not as a bare driver error.
func (s *Store) CreateUser(ctx context.Context, id uuid.UUID) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, created_at) VALUES ($1, $2)`, id, now)
	if isUniqueViolation(err) {
		return nil, apperr.NewConflictError("user", id.String(), err)
	}
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "create_user", classify(err))
	}
	return &User{ID: id, CreatedAt: now}, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.CreatedAt); err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	} else if err != nil {
		return nil, apperr.NewBackendError("postgres", "get_user", classify(err))
	}
	return &u, nil
}

// CreateEventType registers a new dictionary entry. Name collisions return
// ErrConflict so callers (the seeder's prelude, an admin tool) can treat
// "already exists" as a non-fatal outcome.
func (s *Store) CreateEventType(ctx context.Context, name string) (*EventType, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO event_types (name, created_at) VALUES ($1, $2) RETURNING id, created_at`,
		name, time.Now().UTC())
	var et EventType
	et.Name = name
	if err := row.Scan(&et.ID, &et.CreatedAt); isUniqueViolation(err) {
		return nil, apperr.NewConflictError("event_type", name, err)
	} else if err != nil {
		return nil, apperr.NewBackendError("postgres", "create_event_type", classify(err))
	}
	return &et, nil
}

// EventTypeByName resolves a name to its surrogate id through the
// read-mostly in-process dictionary cache, falling back to the database and
// populating the cache on miss.
func (s *Store) EventTypeByName(ctx context.Context, name string) (*EventType, error) {
	return s.types.Resolve(ctx, name)
}

// InsertEvent persists one event. The insert is a single round trip: rather
// than looking up the user/event-type first and then inserting, it relies
// on the foreign keys to reject bad references, turning two round trips
// into one at the cost of a slightly less specific error on violation.
func (s *Store) InsertEvent(ctx context.Context, e Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return apperr.NewValidationError("metadata", e.Metadata, "not JSON-serializable")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, user_id, event_type_id, timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.EventTypeID, e.Timestamp, metadata, time.Now().UTC())
	if isUniqueViolation(err) {
		return apperr.NewConflictError("event", e.ID.String(), err)
	}
	if err != nil {
		return apperr.NewBackendError("postgres", "insert_event", classify(err))
	}
	return nil
}

// InsertEventWithOutbox persists the event and an analytics_outbox row in a
// single transaction, so a crash between commit and the in-memory channel
// drain cannot silently lose the analytics fan-out: the Background
// Scheduler's outbox sweep replays anything the channel path never
// processed.
func (s *Store) InsertEventWithOutbox(ctx context.Context, e Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return apperr.NewValidationError("metadata", e.Metadata, "not JSON-serializable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.NewBackendError("postgres", "begin_tx", classify(err))
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, user_id, event_type_id, timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.EventTypeID, e.Timestamp, metadata, now)
	if isUniqueViolation(err) {
		return apperr.NewConflictError("event", e.ID.String(), err)
	}
	if err != nil {
		return apperr.NewBackendError("postgres", "insert_event", classify(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analytics_outbox (id, event_id, published, created_at)
		VALUES ($1, $2, false, $3)
	`, uuid.New(), e.ID, now)
	if err != nil {
		return apperr.NewBackendError("postgres", "insert_outbox", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return apperr.NewBackendError("postgres", "commit", classify(err))
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_type_id, timestamp, metadata, created_at
		FROM events WHERE id = $1
	`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "get_event", classify(err))
	}
	return e, nil
}

// EventFilter narrows ListEvents; every field is optional, nil/zero means
// "no constraint on this dimension".
type EventFilter struct {
	UserID      *uuid.UUID
	EventTypeID *int32
	From        *time.Time
	To          *time.Time
	Limit       int
}

// ListEvents builds the query with a single tracked placeholder counter, so
// the number of placeholders in the SQL text and the length of the args
// slice can never drift apart regardless of which filters are set — the
// limit/filter building bug the original implementation had (a LIMIT
// placeholder whose index depended on an untracked count of which earlier
// filters happened to be present) cannot recur here because there is
// exactly one source of truth for "the next placeholder number".
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, event_type_id, timestamp, metadata, created_at FROM events WHERE 1=1`)
	var args []interface{}
	argN := 1

	next := func(v interface{}) string {
		args = append(args, v)
		ph := fmt.Sprintf("$%d", argN)
		argN++
		return ph
	}

	if f.UserID != nil {
		sb.WriteString(" AND user_id = " + next(*f.UserID))
	}
	if f.EventTypeID != nil {
		sb.WriteString(" AND event_type_id = " + next(*f.EventTypeID))
	}
	if f.From != nil {
		sb.WriteString(" AND timestamp >= " + next(*f.From))
	}
	if f.To != nil {
		sb.WriteString(" AND timestamp < " + next(*f.To))
	}
	sb.WriteString(" ORDER BY timestamp DESC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT " + next(f.Limit))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "list_events", classify(err))
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEventRows(rows)
		if err != nil {
			return nil, apperr.NewBackendError("postgres", "list_events_scan", classify(err))
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	return scanEventRows(row)
}

func scanEventRows(row rowScanner) (*Event, error) {
	var e Event
	var raw []byte
	if err := row.Scan(&e.ID, &e.UserID, &e.EventTypeID, &e.Timestamp, &raw, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// classify maps a driver error onto the TransientBackend/PermanentBackend
// taxonomy. lib/pq does not expose a rich typed hierarchy for connection
// failures the way some drivers do, so this still leans on error-string
// classification for the connection-class cases (the same compromise the
// seeder's retry classifier makes, see internal/seeder/classify.go) — fixed
// SQLSTATE codes are used wherever pq actually provides them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return apperr.ErrTransientBackend
		case "53": // insufficient resources
			return apperr.ErrTransientBackend
		case "40": // transaction rollback (serialization failure, deadlock)
			return apperr.ErrTransientBackend
		default:
			return apperr.ErrPermanentBackend
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "pool timed out") || strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return apperr.ErrTransientBackend
	}
	return apperr.ErrPermanentBackend
}
