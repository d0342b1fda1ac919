// Copyright 2025 James Ross
package eventsdb

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal identity row events are attributed to; the seeder and
// the event processor are the only writers.
type User struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType is a small read-mostly dictionary row. EventTypeID stays an
// int32 surrogate key rather than a UUID: it is a closed, pre-seeded
// vocabulary (page_view, click, purchase, ...), not an externally created
// entity, so the extra UUID indirection buys nothing.
type EventType struct {
	ID        int32     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a single ingested occurrence. Metadata is an open JSON object;
// its shape varies by EventTypeID (a "page_view" carries a "page" key, a
// "click" carries a "button_id" key, a "purchase" carries a "product_id"
// key) and is never validated against a fixed schema.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	UserID      uuid.UUID              `json:"user_id"`
	EventTypeID int32                  `json:"event_type_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
}
