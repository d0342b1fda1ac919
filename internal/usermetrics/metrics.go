// Copyright 2025 James Ross

// Package usermetrics maintains the per-user rolling analytics snapshot
// (analytics:user_metrics:<uuid>) the aggregation engine's bucket counters
// never compute on their own: running average session duration and
// MostActiveDay, which holds the weekday of the most recent recorded event
// (no per-weekday counts are kept), kept in an in-process cache and flushed
// to Redis on a schedule.
package usermetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "analytics:user_metrics:"
	keyTTL    = 7 * 24 * time.Hour
	numShards = 32
)

// UserMetrics mirrors the original redis_metrics_updater's UserMetrics
// shape: a small rolling snapshot, not a full event history.
type UserMetrics struct {
	UserID             uuid.UUID `json:"user_id"`
	TotalEvents        int64     `json:"total_events"`
	TotalSessions      int64     `json:"total_sessions"`
	TotalTimeSpentSecs int64     `json:"total_time_spent"`
	AvgSessionDuration float64   `json:"avg_session_duration"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	MostActiveDay      string    `json:"most_active_day"`
}

type shard struct {
	mu    sync.Mutex
	cache map[uuid.UUID]*UserMetrics
}

// Updater holds the sharded in-memory cache plus the Redis client it
// periodically flushes to. The shard count bounds lock contention: a
// single global mutex would serialize every concurrent session-end across
// the whole event stream, which is exactly the race spec.md flags as an
// open question for this running average.
type Updater struct {
	rdb    *redis.Client
	shards [numShards]*shard
}

func New(rdb *redis.Client) *Updater {
	u := &Updater{rdb: rdb}
	for i := range u.shards {
		u.shards[i] = &shard{cache: make(map[uuid.UUID]*UserMetrics)}
	}
	return u
}

func (u *Updater) shardFor(id uuid.UUID) *shard {
	var sum byte
	for _, b := range id {
		sum += b
	}
	return u.shards[int(sum)%numShards]
}

// RecordEvent bumps TotalEvents/LastSeen/MostActiveDay for a generic
// domain event (user created/updated/deleted, any ingested event).
func (u *Updater) RecordEvent(ctx context.Context, userID uuid.UUID, at time.Time) error {
	s := u.shardFor(userID)
	s.mu.Lock()
	m := u.getOrInitLocked(s, userID, at)
	m.TotalEvents++
	m.LastSeen = at
	m.MostActiveDay = at.Weekday().String()
	snapshot := *m
	s.mu.Unlock()
	return u.store(ctx, &snapshot)
}

// RecordSessionStart increments TotalSessions for userID.
func (u *Updater) RecordSessionStart(ctx context.Context, userID uuid.UUID, at time.Time) error {
	s := u.shardFor(userID)
	s.mu.Lock()
	m := u.getOrInitLocked(s, userID, at)
	m.TotalSessions++
	m.LastSeen = at
	m.MostActiveDay = at.Weekday().String()
	snapshot := *m
	s.mu.Unlock()
	return u.store(ctx, &snapshot)
}

// RecordSessionEnd folds durationSecs into the per-user running average
// session duration. The running average update (old_avg * (n-1) + x) / n
// is only correct when serialized per user, which the shard lock (and
// RecordSessionStart always preceding it for the same session) guarantees;
// Redis-side INCRBYFLOAT alone cannot express this formula atomically.
func (u *Updater) RecordSessionEnd(ctx context.Context, userID uuid.UUID, at time.Time, durationSecs int64) error {
	s := u.shardFor(userID)
	s.mu.Lock()
	m := u.getOrInitLocked(s, userID, at)
	if m.TotalSessions <= 0 {
		m.TotalSessions = 1
	}
	totalDuration := m.AvgSessionDuration * float64(m.TotalSessions-1)
	m.AvgSessionDuration = (totalDuration + float64(durationSecs)) / float64(m.TotalSessions)
	m.TotalTimeSpentSecs += durationSecs
	m.LastSeen = at
	snapshot := *m
	s.mu.Unlock()
	return u.store(ctx, &snapshot)
}

func (u *Updater) getOrInitLocked(s *shard, userID uuid.UUID, at time.Time) *UserMetrics {
	m, ok := s.cache[userID]
	if !ok {
		m = &UserMetrics{UserID: userID, FirstSeen: at, LastSeen: at, MostActiveDay: at.Weekday().String()}
		s.cache[userID] = m
	}
	return m
}

func (u *Updater) store(ctx context.Context, m *UserMetrics) error {
	if u.rdb == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal user metrics: %w", err)
	}
	return u.rdb.Set(ctx, keyPrefix+m.UserID.String(), b, keyTTL).Err()
}

// Get returns the cached snapshot if present, else loads and caches it
// from Redis, else reports ok=false.
func (u *Updater) Get(ctx context.Context, userID uuid.UUID) (*UserMetrics, bool, error) {
	s := u.shardFor(userID)
	s.mu.Lock()
	if m, ok := s.cache[userID]; ok {
		cp := *m
		s.mu.Unlock()
		return &cp, true, nil
	}
	s.mu.Unlock()

	if u.rdb == nil {
		return nil, false, nil
	}
	raw, err := u.rdb.Get(ctx, keyPrefix+userID.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m UserMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	s.cache[userID] = &m
	s.mu.Unlock()
	return &m, true, nil
}

// Flush persists every cached entry to Redis, used by the Background
// Scheduler's UserMetricsFlushInterval ticker.
func (u *Updater) Flush(ctx context.Context) (int, error) {
	if u.rdb == nil {
		return 0, nil
	}
	flushed := 0
	for _, s := range u.shards {
		s.mu.Lock()
		snapshots := make([]UserMetrics, 0, len(s.cache))
		for _, m := range s.cache {
			snapshots = append(snapshots, *m)
		}
		s.mu.Unlock()

		for i := range snapshots {
			if err := u.store(ctx, &snapshots[i]); err != nil {
				return flushed, err
			}
			flushed++
		}
	}
	return flushed, nil
}
