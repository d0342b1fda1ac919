// Copyright 2025 James Ross
package cache

import (
	"context"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/breaker"
	"github.com/redis/go-redis/v9"
)

// RedisBackend is the tiered cache's remote layer, protected by a circuit
// breaker so a flaky Redis degrades reads to the next (slower) layer
// instead of blocking every caller on a dial timeout.
type RedisBackend struct {
	rdb *redis.Client
	cb  *breaker.CircuitBreaker
}

func NewRedisBackend(rdb *redis.Client, cb *breaker.CircuitBreaker) *RedisBackend {
	return &RedisBackend{rdb: rdb, cb: cb}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	if !r.cb.Allow() {
		return Entry{}, false, apperr.ErrCircuitBreakerOpen
	}
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		r.cb.Record(true)
		return Entry{}, false, nil
	}
	if err != nil {
		r.cb.Record(false)
		return Entry{}, false, apperr.NewBackendError("redis", "get", apperr.ErrTransientBackend)
	}
	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		r.cb.Record(false)
		return Entry{}, false, apperr.NewBackendError("redis", "ttl", apperr.ErrTransientBackend)
	}
	r.cb.Record(true)
	e := Entry{Value: val}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	return e, true, nil
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	if !r.cb.Allow() {
		return false, apperr.ErrCircuitBreakerOpen
	}
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		r.cb.Record(false)
		return false, apperr.NewBackendError("redis", "exists", apperr.ErrTransientBackend)
	}
	r.cb.Record(true)
	return n > 0, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, e Entry) error {
	if !r.cb.Allow() {
		return apperr.ErrCircuitBreakerOpen
	}
	ttl := ttlFromEntry(e)
	if err := r.rdb.Set(ctx, key, e.Value, ttl).Err(); err != nil {
		r.cb.Record(false)
		return apperr.NewBackendError("redis", "set", apperr.ErrTransientBackend)
	}
	r.cb.Record(true)
	return nil
}

func (r *RedisBackend) SetIfNotExist(ctx context.Context, key string, e Entry) (bool, error) {
	if !r.cb.Allow() {
		return false, apperr.ErrCircuitBreakerOpen
	}
	ttl := ttlFromEntry(e)
	ok, err := r.rdb.SetNX(ctx, key, e.Value, ttl).Result()
	if err != nil {
		r.cb.Record(false)
		return false, apperr.NewBackendError("redis", "setnx", apperr.ErrTransientBackend)
	}
	r.cb.Record(true)
	return ok, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if !r.cb.Allow() {
		return apperr.ErrCircuitBreakerOpen
	}
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.cb.Record(false)
		return apperr.NewBackendError("redis", "del", apperr.ErrTransientBackend)
	}
	r.cb.Record(true)
	return nil
}

func (r *RedisBackend) Close() error { return r.rdb.Close() }

func ttlFromEntry(e Entry) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	d := time.Until(e.ExpiresAt)
	if d < 0 {
		return time.Millisecond
	}
	return d
}
