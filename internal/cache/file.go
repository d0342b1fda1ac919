// Copyright 2025 James Ross
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/breaker"
	bolt "go.etcd.io/bbolt"
)

var cacheBucket = []byte("cache")

// FileBackend is the tiered cache's slowest, most durable layer: a local
// bbolt database. It is the natural destination for entries evicted from
// the faster layers under the MoveToSlowerLayer overflow strategy, and the
// natural target for the Background Scheduler's periodic expired-entry
// sweep (C9) since disk entries, unlike the in-process LRU, are not
// self-evicting on capacity pressure.
type FileBackend struct {
	db *bolt.DB
	cb *breaker.CircuitBreaker
}

func NewFileBackend(path string, cb *breaker.CircuitBreaker) (*FileBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, apperr.NewBackendError("bbolt", "open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, apperr.NewBackendError("bbolt", "create_bucket", err)
	}
	return &FileBackend{db: db, cb: cb}, nil
}

func (f *FileBackend) Name() string { return "file" }

type fileRecord struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (f *FileBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	if !f.cb.Allow() {
		return Entry{}, false, apperr.ErrCircuitBreakerOpen
	}
	var rec fileRecord
	var found bool
	err := f.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		f.cb.Record(false)
		return Entry{}, false, apperr.NewBackendError("bbolt", "get", err)
	}
	f.cb.Record(true)
	if !found {
		return Entry{}, false, nil
	}
	e := Entry{Value: rec.Value, ExpiresAt: rec.ExpiresAt}
	if e.Expired(time.Now()) {
		_ = f.Delete(ctx, key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Exists is a thin wrapper over Get: bbolt has no cheaper existence check
// than reading the record, since the expiry check requires decoding it.
func (f *FileBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

func (f *FileBackend) Set(ctx context.Context, key string, e Entry) error {
	if !f.cb.Allow() {
		return apperr.ErrCircuitBreakerOpen
	}
	data, err := json.Marshal(fileRecord{Value: e.Value, ExpiresAt: e.ExpiresAt})
	if err != nil {
		return apperr.NewValidationError("value", nil, "not JSON-serializable")
	}
	err = f.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(key), data)
	})
	if err != nil {
		f.cb.Record(false)
		return apperr.NewBackendError("bbolt", "set", err)
	}
	f.cb.Record(true)
	return nil
}

func (f *FileBackend) SetIfNotExist(ctx context.Context, key string, e Entry) (bool, error) {
	existing, ok, err := f.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && !existing.Expired(time.Now()) {
		return false, nil
	}
	return true, f.Set(ctx, key, e)
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	err := f.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Delete([]byte(key))
	})
	if err != nil {
		return apperr.NewBackendError("bbolt", "delete", err)
	}
	return nil
}

func (f *FileBackend) Close() error { return f.db.Close() }

// Sweep removes every expired entry; the Background Scheduler calls this on
// config.Cache.FileSweepInterval.
func (f *FileBackend) Sweep(ctx context.Context) (removed int, err error) {
	now := time.Now()
	var staleKeys [][]byte
	err = f.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		return b.ForEach(func(k, v []byte) error {
			var rec fileRecord
			if jsonErr := json.Unmarshal(v, &rec); jsonErr != nil {
				return nil
			}
			if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
				staleKeys = append(staleKeys, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return 0, apperr.NewBackendError("bbolt", "sweep_scan", err)
	}
	if len(staleKeys) == 0 {
		return 0, nil
	}
	err = f.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		for _, k := range staleKeys {
			if delErr := b.Delete(k); delErr != nil {
				return delErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.NewBackendError("bbolt", "sweep_delete", err)
	}
	return len(staleKeys), nil
}
