// Copyright 2025 James Ross
package eventproc

import (
	"context"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// batchChunkSize is the unit CreateEventsBatch processes requests in. Each
// request is still inserted on its own, and the first failure stops the
// whole request set.
const batchChunkSize = 100

// Aggregator is the subset of aggregation.Engine the processor depends on,
// kept as an interface so tests can substitute a recording fake instead of
// standing up Redis.
type Aggregator interface {
	AggregateEvent(ctx context.Context, e eventsdb.Event) error
}

// CreateEventRequest is the caller-facing shape create_event accepts:
// EventType is resolved to its surrogate id through the type dictionary
// before insertion, and IdempotencyKey is optional.
type CreateEventRequest struct {
	UserID         uuid.UUID
	EventType      string
	Timestamp      time.Time
	Metadata       map[string]interface{}
	IdempotencyKey string
}

// Processor is the ingestion entry point (C4): it persists the event to the
// relational store first, acknowledges the caller, then hands the event to
// a background worker for analytics fan-out. The worker never blocks the
// caller, and a full or closed queue is logged, never surfaced as an error.
type Processor struct {
	store      *eventsdb.Store
	agg        Aggregator
	idempotent *IdempotencyGuard
	outbox     bool
	queue      eventQueue
	log        *zap.Logger
	done       chan struct{}
}

// Option configures optional Processor behavior.
type Option func(*Processor)

// WithIdempotency enables idempotency-key deduplication on CreateEvent.
func WithIdempotency(g *IdempotencyGuard) Option {
	return func(p *Processor) { p.idempotent = g }
}

// WithOutbox enables the transactional outbox write alongside the in-memory
// queue send, so a crash between commit and drain does not silently lose
// the analytics side effect forever.
func WithOutbox() Option {
	return func(p *Processor) { p.outbox = true }
}

// WithQueueCapacity makes the internal analytics queue bounded instead of
// the default unbounded queue. A bounded queue trades ingest latency
// headroom for a hard cap on how much analytics work can be backlogged;
// when full, the ingest path logs a warning and continues rather than
// blocking the caller.
func WithQueueCapacity(n int) Option {
	return func(p *Processor) { p.queue = newBoundedQueue(n) }
}

func NewProcessor(store *eventsdb.Store, agg Aggregator, log *zap.Logger, opts ...Option) *Processor {
	p := &Processor{
		store: store,
		agg:   agg,
		log:   log,
		queue: newUnboundedQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains the analytics queue until it is closed, invoking the
// aggregator for each event. It exits only when the queue's sender side is
// fully dropped (Close called), matching the original worker contract.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.done)
	for {
		e, ok := p.queue.pop()
		if !ok {
			return
		}
		if err := p.agg.AggregateEvent(ctx, e); err != nil {
			p.log.Warn("analytics aggregation failed", zap.String("event_id", e.ID.String()), zap.Error(err))
			continue
		}
		if p.outbox {
			if err := p.store.MarkOutboxPublished(ctx, e.ID); err != nil {
				p.log.Warn("failed to mark outbox published", zap.String("event_id", e.ID.String()), zap.Error(err))
			}
		}
	}
}

// Close signals the worker to exit once the queue drains, and waits for it.
func (p *Processor) Close() {
	p.queue.close()
	<-p.done
}

// CreateEvent validates and persists one event, then performs a
// non-blocking send to the analytics worker. A send failure (queue full or
// already closed) is logged and swallowed: the canonical event is never at
// risk, only its immediate analytics visibility.
func (p *Processor) CreateEvent(ctx context.Context, req CreateEventRequest) (*eventsdb.Event, error) {
	if p.idempotent != nil && req.IdempotencyKey != "" {
		if cached, ok, err := p.idempotent.Check(ctx, req.IdempotencyKey); err != nil {
			return nil, err
		} else if ok {
			return cached, nil
		}
	}

	et, err := p.store.EventTypeByName(ctx, req.EventType)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.NewBackendError("eventproc", "create_event", err)
	}

	e := eventsdb.Event{
		ID:          id,
		UserID:      req.UserID,
		EventTypeID: et.ID,
		Timestamp:   req.Timestamp.UTC(),
		Metadata:    req.Metadata,
	}

	if p.outbox {
		err = p.store.InsertEventWithOutbox(ctx, e)
	} else {
		err = p.store.InsertEvent(ctx, e)
	}
	if err != nil {
		return nil, err
	}
	obs.EventsIngested.Inc()

	if p.idempotent != nil && req.IdempotencyKey != "" {
		if setErr := p.idempotent.Set(ctx, req.IdempotencyKey, &e); setErr != nil {
			p.log.Warn("failed to record idempotency key", zap.String("key", req.IdempotencyKey), zap.Error(setErr))
		}
	}

	p.enqueue(e)
	return &e, nil
}

func (p *Processor) enqueue(e eventsdb.Event) {
	if !p.queue.push(e) {
		p.log.Warn("analytics queue full or unavailable, dropping event from real-time fan-out",
			zap.String("event_id", e.ID.String()))
	}
}

// CreateEventsBatch processes requests in chunks of batchChunkSize, creating
// each event with CreateEvent and stopping at the first error. Nothing is
// rolled back: every event created before the failing request, in earlier
// chunks or earlier in the same chunk, stays persisted and is returned
// alongside the error.
func (p *Processor) CreateEventsBatch(ctx context.Context, reqs []CreateEventRequest) ([]eventsdb.Event, error) {
	events := make([]eventsdb.Event, 0, len(reqs))
	for start := 0; start < len(reqs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(reqs) {
			end = len(reqs)
		}
		for _, req := range reqs[start:end] {
			e, err := p.CreateEvent(ctx, req)
			if err != nil {
				return events, apperr.NewBackendError("eventproc", "create_events_batch", err)
			}
			events = append(events, *e)
		}
	}
	return events, nil
}
