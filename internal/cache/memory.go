// Copyright 2025 James Ross
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryBackend is the fastest, smallest tiered-cache layer: an in-process
// LRU with a fixed item capacity. golang-lru has no native TTL, so expiry
// is tracked in the stored Entry and checked on read; an expired entry is
// evicted from the LRU on the read that discovers it rather than by a
// background sweep (unlike FileBackend, whose sweep cost is worth paying
// since disk reads are comparatively expensive).
type MemoryBackend struct {
	lru *lru.Cache[string, Entry]
}

func NewMemoryBackend(capacity int) (*MemoryBackend, error) {
	c, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{lru: c}, nil
}

// evicted is the record sent to the overflow drain goroutine when the
// OverflowStrategy is MoveToSlowerLayer: a plain LRU capacity eviction
// (not an explicit Delete, not a TTL expiry noticed on read) is the only
// case that needs to fall through to the next layer instead of vanishing.
type evicted struct {
	key   string
	entry Entry
}

// NewMemoryBackendWithOverflow builds a capacity-bounded LRU whose evictions
// are published on evictCh, mirroring the eviction-listener-plus-background-
// drain shape used to move entries into the slower layer on overflow.
func NewMemoryBackendWithOverflow(capacity int, evictCh chan<- evicted) (*MemoryBackend, error) {
	c, err := lru.NewWithEvict[string, Entry](capacity, func(key string, e Entry) {
		select {
		case evictCh <- evicted{key: key, entry: e}:
		default:
			// Overflow channel is full; the entry is dropped rather than
			// blocking the evicting goroutine, same rule as a full bus
			// subscriber channel.
		}
	})
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{lru: c}, nil
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if e.Expired(time.Now()) {
		m.lru.Remove(key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Exists reports whether key is present and unexpired without touching its
// LRU recency (unlike Get, which counts as a use).
func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	e, ok := m.lru.Peek(key)
	if !ok {
		return false, nil
	}
	if e.Expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, e Entry) error {
	m.lru.Add(key, e)
	return nil
}

func (m *MemoryBackend) SetIfNotExist(ctx context.Context, key string, e Entry) (bool, error) {
	if existing, ok := m.lru.Get(key); ok && !existing.Expired(time.Now()) {
		return false, nil
	}
	m.lru.Add(key, e)
	return true, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
