// Copyright 2025 James Ross
package eventsdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
)

// TypeDict is a read-mostly in-process cache over the small, slowly
// changing event_types dictionary. It is populated lazily on miss rather
// than eagerly at construction, so a Store is usable before the database
// is reachable; Seed can be called once at startup to warm it.
type TypeDict struct {
	db *sql.DB
	mu sync.RWMutex
	byName map[string]EventType
	byID   map[int32]EventType
}

func NewTypeDict(db *sql.DB) *TypeDict {
	return &TypeDict{
		db:     db,
		byName: make(map[string]EventType),
		byID:   make(map[int32]EventType),
	}
}

// Seed loads every row from event_types into the cache up front.
func (d *TypeDict) Seed(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, created_at FROM event_types`)
	if err != nil {
		return apperr.NewBackendError("postgres", "seed_event_types", err)
	}
	defer rows.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	for rows.Next() {
		var et EventType
		if err := rows.Scan(&et.ID, &et.Name, &et.CreatedAt); err != nil {
			return err
		}
		d.byName[et.Name] = et
		d.byID[et.ID] = et
	}
	return rows.Err()
}

// Resolve returns the EventType for name, consulting the cache first and
// falling back to a direct query on miss.
func (d *TypeDict) Resolve(ctx context.Context, name string) (*EventType, error) {
	d.mu.RLock()
	et, ok := d.byName[name]
	d.mu.RUnlock()
	if ok {
		return &et, nil
	}

	row := d.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM event_types WHERE name = $1`, name)
	var fresh EventType
	if err := row.Scan(&fresh.ID, &fresh.Name, &fresh.CreatedAt); err == sql.ErrNoRows {
		return nil, apperr.NewValidationError("event_type", name, "unknown event type")
	} else if err != nil {
		return nil, apperr.NewBackendError("postgres", "resolve_event_type", err)
	}

	d.mu.Lock()
	d.byName[fresh.Name] = fresh
	d.byID[fresh.ID] = fresh
	d.mu.Unlock()
	return &fresh, nil
}

// ResolveID is the inverse lookup, used when rendering a human-readable
// event type name for a bucket metric computed from a raw EventTypeID.
func (d *TypeDict) ResolveID(ctx context.Context, id int32) (*EventType, error) {
	d.mu.RLock()
	et, ok := d.byID[id]
	d.mu.RUnlock()
	if ok {
		return &et, nil
	}

	row := d.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM event_types WHERE id = $1`, id)
	var fresh EventType
	if err := row.Scan(&fresh.ID, &fresh.Name, &fresh.CreatedAt); err == sql.ErrNoRows {
		return nil, apperr.NewValidationError("event_type_id", id, "unknown event type")
	} else if err != nil {
		return nil, apperr.NewBackendError("postgres", "resolve_event_type_id", err)
	}

	d.mu.Lock()
	d.byName[fresh.Name] = fresh
	d.byID[fresh.ID] = fresh
	d.mu.Unlock()
	return &fresh, nil
}
