// Copyright 2025 James Ross
package cache

import (
	"context"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
)

// TieredCache chains Backends fastest-to-slowest. Reads fall through the
// chain and promote a hit back into every faster layer it missed; writes go
// to every layer, with the slowest layer treated as authoritative for the
// stored TTL (it is the layer the Background Scheduler sweeps, so it is the
// one whose notion of "expired" must survive a process restart).
type TieredCache struct {
	layers []Backend
}

func NewTieredCache(layers []Backend) *TieredCache {
	return &TieredCache{layers: layers}
}

// FileLayer returns the slowest layer if it is a *FileBackend, so the
// Background Scheduler can drive its periodic sweep without the tiered
// cache exposing its whole layer slice. Returns nil if no file layer was
// configured.
func (t *TieredCache) FileLayer() *FileBackend {
	for _, l := range t.layers {
		if f, ok := l.(*FileBackend); ok {
			return f
		}
	}
	return nil
}

// Get reads from the fastest layer outward, promoting the found entry into
// every layer that missed it. A miss on every layer is reported via
// apperr.ErrCacheMiss rather than a bare (false, nil), so callers can
// errors.Is-check it the same way they would any other backend error.
func (t *TieredCache) Get(ctx context.Context, key string) (Entry, error) {
	for i, layer := range t.layers {
		e, ok, err := layer.Get(ctx, key)
		if err != nil {
			// A degraded layer (circuit open, disk error) is skipped, not
			// fatal — the next slower layer may still have the value.
			obs.CacheMisses.Inc()
			continue
		}
		if !ok {
			continue
		}
		obs.CacheHits.WithLabelValues(layer.Name()).Inc()
		for j := 0; j < i; j++ {
			if perr := t.layers[j].Set(ctx, key, e); perr == nil {
				obs.CachePromotions.Inc()
			}
		}
		return e, nil
	}
	obs.CacheMisses.Inc()
	return Entry{}, apperr.ErrCacheMiss
}

// Exists reports whether any layer holds key, skipping degraded layers the
// same way Get does rather than failing the whole check on one bad layer.
// Unlike Get, a hit here never promotes the key into faster layers: the
// caller hasn't asked for the value, so there is nothing to promote.
func (t *TieredCache) Exists(ctx context.Context, key string) (bool, error) {
	for _, layer := range t.layers {
		ok, err := layer.Exists(ctx, key)
		if err != nil {
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Set writes through every layer. A failure in a non-authoritative (faster)
// layer is tolerated — the value is still durable in the slowest layer — but
// a failure in the slowest layer is returned, since that is the layer the
// Get path and the sweep both treat as ground truth.
func (t *TieredCache) Set(ctx context.Context, key string, e Entry) error {
	for i, layer := range t.layers {
		if err := layer.Set(ctx, key, e); err != nil && i == len(t.layers)-1 {
			return err
		}
	}
	return nil
}

// SetIfNotExist is authoritative on the slowest layer: if that layer already
// holds the key, the write is rejected even if a faster layer had expired or
// evicted its own copy.
func (t *TieredCache) SetIfNotExist(ctx context.Context, key string, e Entry) (bool, error) {
	if len(t.layers) == 0 {
		return false, apperr.ErrCacheMiss
	}
	last := t.layers[len(t.layers)-1]
	ok, err := last.SetIfNotExist(ctx, key, e)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for i := 0; i < len(t.layers)-1; i++ {
		_ = t.layers[i].Set(ctx, key, e)
	}
	return true, nil
}

func (t *TieredCache) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, layer := range t.layers {
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (t *TieredCache) Close() error {
	var lastErr error
	for _, layer := range t.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
