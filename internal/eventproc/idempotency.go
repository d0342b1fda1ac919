// Copyright 2025 James Ross
package eventproc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "eventproc:idempotency:"

// IdempotencyGuard prevents duplicate inserts when a caller retries a
// create_event request with the same caller-supplied key, adapted from the
// teacher's Redis-backed idempotency storage: Check looks the key up before
// the insert, and Set stores the committed Event under it afterwards, so a
// retry within the TTL window gets back the original result instead of a
// second insert. Nothing reserves the key between Check and Set.
type IdempotencyGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyGuard(rdb *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{rdb: rdb, ttl: ttl}
}

func (g *IdempotencyGuard) key(k string) string { return idempotencyKeyPrefix + k }

// Check returns (event, true, nil) if key was already recorded, (nil, false,
// nil) if it was not seen before, and a non-nil error only on a genuine
// backend failure.
func (g *IdempotencyGuard) Check(ctx context.Context, key string) (*eventsdb.Event, bool, error) {
	raw, err := g.rdb.Get(ctx, g.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewBackendError("redis", "idempotency_check", apperr.ErrTransientBackend)
	}
	var e eventsdb.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, apperr.NewBackendError("redis", "idempotency_decode", err)
	}
	return &e, true, nil
}

// Set records key -> event for the guard's TTL. Overwriting an existing key
// is intentionally allowed: the caller only reaches Set after Check already
// reported a miss, so a race between two concurrent retries can still
// result in the second writer's event winning, which is an accepted
// imprecision of an optional convenience feature, not a correctness
// guarantee of the canonical event store.
func (g *IdempotencyGuard) Set(ctx context.Context, key string, e *eventsdb.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return apperr.NewValidationError("event", e, "not JSON-serializable")
	}
	if err := g.rdb.Set(ctx, g.key(key), data, g.ttl).Err(); err != nil {
		return apperr.NewBackendError("redis", "idempotency_set", apperr.ErrTransientBackend)
	}
	return nil
}
