// Copyright 2025 James Ross
package cache

import (
	"context"
	"fmt"

	"github.com/flyingrobots/event-analytics-engine/internal/breaker"
	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/redis/go-redis/v9"
)

// overflowDrainBufferSize bounds the channel the memory layer's eviction
// callback publishes to; a slow or unreachable slower layer sheds load
// rather than applying backpressure to whatever goroutine triggered the
// LRU eviction (see memory.go's NewMemoryBackendWithOverflow).
const overflowDrainBufferSize = 1024

// TieredCacheBuilder assembles a TieredCache from fastest to slowest layer,
// enforcing config.Cache.MinLayers/MaxLayers and wiring the
// MoveToSlowerLayer overflow path when configured.
type TieredCacheBuilder struct {
	cfg config.Cache
	rdb *redis.Client
	cb  *breaker.CircuitBreaker
}

func NewTieredCacheBuilder(cfg config.Cache, rdb *redis.Client, cb *breaker.CircuitBreaker) *TieredCacheBuilder {
	return &TieredCacheBuilder{cfg: cfg, rdb: rdb, cb: cb}
}

// Build constructs the memory, redis, and file layers in that fast-to-slow
// order. Only the layers config actually asks for are included: rdb == nil
// skips the Redis layer, an empty FilePath skips the file layer. At least
// MinLayers and at most MaxLayers must result, or Build returns an error.
func (b *TieredCacheBuilder) Build() (*TieredCache, error) {
	var overflowCh chan evicted
	moveOnOverflow := b.cfg.OverflowStrategy == "move_to_slower_layer"
	if moveOnOverflow {
		overflowCh = make(chan evicted, overflowDrainBufferSize)
	}

	var memory *MemoryBackend
	var err error
	if moveOnOverflow {
		memory, err = NewMemoryBackendWithOverflow(b.cfg.MemoryCapacity, overflowCh)
	} else {
		memory, err = NewMemoryBackend(b.cfg.MemoryCapacity)
	}
	if err != nil {
		return nil, fmt.Errorf("build memory layer: %w", err)
	}
	layers := []Backend{memory}

	if b.rdb != nil {
		layers = append(layers, NewRedisBackend(b.rdb, b.cb))
	}

	var file *FileBackend
	if b.cfg.FilePath != "" {
		file, err = NewFileBackend(b.cfg.FilePath, b.cb)
		if err != nil {
			return nil, fmt.Errorf("build file layer: %w", err)
		}
		layers = append(layers, file)
	}

	if len(layers) < b.cfg.MinLayers {
		return nil, fmt.Errorf("cache: %d layers configured, below min_layers %d", len(layers), b.cfg.MinLayers)
	}
	if len(layers) > b.cfg.MaxLayers {
		return nil, fmt.Errorf("cache: %d layers configured, above max_layers %d", len(layers), b.cfg.MaxLayers)
	}

	tc := NewTieredCache(layers)

	if moveOnOverflow && len(layers) > 1 {
		go drainOverflow(overflowCh, layers[1:])
	}

	return tc, nil
}

// drainOverflow writes entries evicted from the memory layer for capacity
// reasons into the next slower layer, mirroring the moka eviction-listener
// pattern the tiered cache this package replaces used for the same purpose.
// A write failure is dropped: the entry is already gone from the fast layer,
// and retrying indefinitely would just build an unbounded queue behind a
// degraded slower layer.
func drainOverflow(ch <-chan evicted, nextLayers []Backend) {
	ctx := context.Background()
	for ev := range ch {
		_ = nextLayers[0].Set(ctx, ev.key, ev.entry)
	}
}
