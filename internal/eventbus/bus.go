// Copyright 2025 James Ross
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/obs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mainQueue is the minimal interface Bus needs from either queue variant,
// letting Bounded/New choose the implementation without the rest of the
// type knowing which one it got.
type mainQueue[E any] interface {
	push(DomainEvent[E]) bool
	tryPop() (DomainEvent[E], bool)
}

// Bus is an in-process topic pub/sub for cross-domain notifications and
// cache-invalidation signals (C7), generalized from the teacher's
// event-hooks worker-pool shape: a main channel plus one unbounded
// per-topic subscriber channel per registration, each drained by its own
// goroutine.
type Bus[E any] struct {
	main mainQueue[E]

	mu          sync.RWMutex
	subscribers map[string][]*unboundedQueue[DomainEvent[E]]

	log *zap.Logger

	eventsPublished  atomic.Uint64
	eventsProcessed  atomic.Uint64
	subscribersCount atomic.Uint64
	processingErrors atomic.Uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds an unbounded-main-channel bus (maximum throughput, unbounded
// memory under sustained overload — the same trade-off the original
// library's EventBus::unbounded documents).
func New[E any](log *zap.Logger) *Bus[E] {
	return newBus[E](newUnboundedQueue[DomainEvent[E]](), log)
}

// NewBounded builds a bus whose main channel has a fixed capacity; Publish
// returns ErrChannelFull instead of growing without bound.
func NewBounded[E any](capacity int, log *zap.Logger) *Bus[E] {
	return newBus[E](newBoundedQueue[DomainEvent[E]](capacity), log)
}

func newBus[E any](q mainQueue[E], log *zap.Logger) *Bus[E] {
	return &Bus[E]{
		main:        q,
		subscribers: make(map[string][]*unboundedQueue[DomainEvent[E]]),
		log:         log,
		stopCh:      make(chan struct{}),
	}
}

// Publish wraps payload in a DomainEvent with a fresh id and microsecond
// timestamp, attempts a non-blocking send on the main channel, then fans it
// out to every per-topic subscriber channel registered for eventType. A
// full/closed main channel is reported to the caller; a full subscriber
// channel is logged and counted, never surfaced to the publisher.
func (b *Bus[E]) Publish(eventType, aggregateID string, payload E, correlationID, causationID *uuid.UUID) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("eventbus: generate event id: %w", err)
	}

	e := DomainEvent[E]{
		ID:            id,
		EventType:     eventType,
		AggregateID:   aggregateID,
		TimestampUnix: nowMicros(),
		Payload:       payload,
		CorrelationID: correlationID,
		CausationID:   causationID,
	}

	if !b.main.push(e) {
		return ErrChannelFull
	}
	b.eventsPublished.Add(1)
	obs.BusEventsPublished.Inc()

	b.routeToSubscribers(e)
	return nil
}

func (b *Bus[E]) routeToSubscribers(e DomainEvent[E]) {
	b.mu.RLock()
	subs := b.subscribers[e.EventType]
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.push(e) {
			b.log.Warn("subscriber channel full", zap.String("event_type", e.EventType))
			b.processingErrors.Add(1)
			obs.BusProcessingErrors.Inc()
		}
	}
}

// Subscribe registers handler for eventType; a dedicated unbounded channel
// and goroutine are created per subscription, matching the original
// library's one-task-per-subscriber model.
func (b *Bus[E]) Subscribe(eventType string, handler func(DomainEvent[E])) {
	q := newUnboundedQueue[DomainEvent[E]]()

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], q)
	b.mu.Unlock()
	b.subscribersCount.Add(1)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			e, ok := q.pop()
			if !ok {
				return
			}
			handler(e)
		}
	}()
}

// StartProcessing drains the main channel in a background goroutine,
// batching up to batchSize events or flushing every flushInterval,
// whichever comes first, updating the processed-count metric per flush.
func (b *Bus[E]) StartProcessing(batchSize int, flushInterval time.Duration) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		batch := make([]DomainEvent[E], 0, batchSize)
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			n := len(batch)
			batch = batch[:0]
			b.eventsProcessed.Add(uint64(n))
			obs.BusEventsProcessed.Add(float64(n))
		}

		for {
			select {
			case <-b.stopCh:
				flush()
				return
			case <-ticker.C:
				flush()
			default:
				e, ok := b.main.tryPop()
				if !ok {
					time.Sleep(100 * time.Microsecond)
					continue
				}
				batch = append(batch, e)
				if len(batch) >= batchSize {
					flush()
				}
			}
		}
	}()
}

// Stop signals every background goroutine (the processing loop and every
// subscriber drain loop) to exit and waits for them.
func (b *Bus[E]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.mu.RLock()
	for _, subs := range b.subscribers {
		for _, s := range subs {
			s.close()
		}
	}
	b.mu.RUnlock()
	b.wg.Wait()
}

// Snapshot is the metrics accessor (EventBusSnapshot in the original).
type Snapshot struct {
	EventsPublished  uint64
	EventsProcessed  uint64
	SubscribersCount uint64
	ProcessingErrors uint64
}

func (b *Bus[E]) Metrics() Snapshot {
	return Snapshot{
		EventsPublished:  b.eventsPublished.Load(),
		EventsProcessed:  b.eventsProcessed.Load(),
		SubscribersCount: b.subscribersCount.Load(),
		ProcessingErrors: b.processingErrors.Load(),
	}
}
