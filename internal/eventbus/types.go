// Copyright 2025 James Ross
package eventbus

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DomainEvent wraps a typed payload with the routing and tracing metadata
// every bus topic carries, mirroring the original event-bus library's
// envelope: id/event_type/aggregate_id/timestamp(microseconds)/payload/
// correlation_id/causation_id.
type DomainEvent[E any] struct {
	ID            uuid.UUID
	EventType     string
	AggregateID   string
	TimestampUnix int64 // microseconds since epoch
	Payload       E
	CorrelationID *uuid.UUID
	CausationID   *uuid.UUID
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}

var (
	ErrChannelFull   = errors.New("eventbus: channel full")
	ErrChannelClosed = errors.New("eventbus: channel closed")
)

// CacheEvent carries tiered-cache invalidation payloads (the Background
// Scheduler wires a dedicated Tiered Cache subscriber to the "cache"
// topic for these).
type CacheEvent struct {
	Kind     CacheEventKind
	Pattern  string
	Patterns []string
	Key      string
	Data     []byte
}

type CacheEventKind int

const (
	CacheInvalidate CacheEventKind = iota
	CacheInvalidatePattern
	CacheBulkInvalidate
	CacheWarm
)

// SystemEvent is the cross-domain notification payload published on the
// "system" topic: user lifecycle, event ingestion, and analytics-completion
// notifications.
type SystemEvent struct {
	Kind SystemEventKind

	UserID    uuid.UUID
	Fields    []string
	EventID   uuid.UUID
	EventType string
	Count     int
	UserIDs   []uuid.UUID
	Metrics   []string
	Timestamp int64

	Cache *CacheEvent
}

type SystemEventKind int

const (
	UserCreated SystemEventKind = iota
	UserUpdated
	UserDeleted
	EventCreated
	EventsIngested
	MetricsComputed
	DashboardUpdated
	Cache
)
