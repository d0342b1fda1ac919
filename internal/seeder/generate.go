// Copyright 2025 James Ross
package seeder

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// EventTypeNames is the fixed catalog the original seeder inserts before
// generating events; order determines the event_type_id each name receives.
var EventTypeNames = []string{
	"page_view", "button_click", "form_submit", "login", "logout",
	"purchase", "search", "download", "upload", "share",
	"like", "comment", "follow", "message", "notification",
	"error", "signup", "profile_update", "settings_change", "session_start",
}

// sequentialUUIDs derives n UUIDv7s from a single time-ordered base by
// overwriting the low 8 bytes with a big-endian counter, the same trick the
// original binary uses to avoid n separate clock reads while keeping every
// id distinct and roughly time-sortable.
func sequentialUUIDs(n int) ([]uuid.UUID, error) {
	base, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate base uuid: %w", err)
	}
	baseBytes := base

	out := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		b := baseBytes
		binary.BigEndian.PutUint64(b[8:16], uint64(i))
		out[i] = b
	}
	return out, nil
}

// EventRow is one row of the events table as the bulk insert will write it.
type EventRow struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	EventTypeID int32
	Timestamp   time.Time
	Metadata    []byte // raw JSON
}

// GenerateEventRows builds count rows spread uniformly over the last 30
// days, cycling user and event-type assignment the same way the original
// generate_events does (i % len(users), i % len(event_type_ids)).
func GenerateEventRows(eventUUIDs, userUUIDs []uuid.UUID, eventTypeIDs []int32, start, end int) []EventRow {
	now := time.Now()
	startTS := now.Add(-30 * 24 * time.Hour).Unix()
	endTS := now.Unix()
	timeRange := endTS - startTS
	if timeRange <= 0 {
		timeRange = 1
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(start)))
	rows := make([]EventRow, 0, end-start)
	for i := start; i < end; i++ {
		userID := userUUIDs[i%len(userUUIDs)]
		eventTypeID := eventTypeIDs[i%len(eventTypeIDs)]
		ts := time.Unix(startTS+rng.Int63n(timeRange), 0)

		var metadata []byte
		switch i % 3 {
		case 0:
			metadata = []byte(fmt.Sprintf(`{"page":%d}`, i+1))
		case 1:
			metadata = []byte(fmt.Sprintf(`{"btn":%d}`, (i+1)%100))
		default:
			metadata = []byte(fmt.Sprintf(`{"id":%d}`, i+1))
		}

		rows = append(rows, EventRow{
			ID:          eventUUIDs[i],
			UserID:      userID,
			EventTypeID: eventTypeID,
			Timestamp:   ts,
			Metadata:    metadata,
		})
	}
	return rows
}
