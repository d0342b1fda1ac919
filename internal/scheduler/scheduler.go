// Copyright 2025 James Ross

// Package scheduler owns every background housekeeping loop that is not
// driven directly by an inbound request (C9): materialized-view refresh on
// cron expressions, and ticker-driven user-metrics flush / file-cache sweep
// / outbox relay, plus wiring the Tiered Cache's invalidation subscriber
// onto the Event Bus at startup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/aggregation"
	"github.com/flyingrobots/event-analytics-engine/internal/cache"
	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/flyingrobots/event-analytics-engine/internal/eventbus"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/flyingrobots/event-analytics-engine/internal/usermetrics"
	"github.com/flyingrobots/event-analytics-engine/internal/views"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweepable is the subset of cache.FileBackend the scheduler needs; kept
// as an interface so tests can substitute a fake without standing up a
// real bbolt file.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler wires together every periodic job the service runs outside the
// request path.
type Scheduler struct {
	cfg     config.Config
	cron    *cron.Cron
	views   *views.Manager
	store   *eventsdb.Store
	agg     *aggregation.Engine
	file    Sweepable
	metrics *usermetrics.Updater
	log     *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg config.Config, viewsManager *views.Manager, store *eventsdb.Store, agg *aggregation.Engine, file Sweepable, metrics *usermetrics.Updater, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
		views:   viewsManager,
		store:   store,
		agg:     agg,
		file:    file,
		metrics: metrics,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start registers every cron entry and ticker loop and begins running them.
// Registration errors (a malformed cron expression) are returned rather
// than panicking so callers can fail startup cleanly.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.MaterializedViews.FullRefreshCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.MaterializedViews.FullRefreshCron, func() {
			s.refreshAllViews(ctx)
		}); err != nil {
			return err
		}
	}
	if s.cfg.MaterializedViews.PopularOnlyCron != "" && len(s.cfg.MaterializedViews.PopularViews) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.MaterializedViews.PopularOnlyCron, func() {
			s.refreshPopularViews(ctx)
		}); err != nil {
			return err
		}
	}
	s.cron.Start()

	s.startTicker(ctx, s.cfg.Scheduler.UserMetricsFlushInterval, s.flushUserMetrics)
	s.startTicker(ctx, s.cfg.Cache.FileSweepInterval, s.sweepFileCache)
	s.startTicker(ctx, s.cfg.Scheduler.OutboxSweepInterval, s.sweepOutbox)

	return nil
}

// Stop halts the cron scheduler and every ticker loop, waiting for in-flight
// jobs to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
}

func (s *Scheduler) startTicker(ctx context.Context, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				job(ctx)
			}
		}
	}()
}

func (s *Scheduler) refreshAllViews(ctx context.Context) {
	if s.views == nil {
		return
	}
	if _, err := s.views.RefreshViews(ctx, nil, s.cfg.MaterializedViews.RefreshConcurrently); err != nil {
		s.log.Error("full materialized view refresh failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshPopularViews(ctx context.Context) {
	if s.views == nil {
		return
	}
	for _, name := range s.cfg.MaterializedViews.PopularViews {
		name := name
		if _, err := s.views.RefreshViews(ctx, &name, s.cfg.MaterializedViews.RefreshConcurrently); err != nil {
			s.log.Error("popular view refresh failed", zap.String("view", name), zap.Error(err))
		}
	}
}

func (s *Scheduler) flushUserMetrics(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.metrics.Flush(ctx)
	if err != nil {
		s.log.Error("user metrics flush failed", zap.Error(err))
		return
	}
	s.log.Debug("user metrics flushed", zap.Int("count", n))
}

func (s *Scheduler) sweepFileCache(ctx context.Context) {
	if s.file == nil {
		return
	}
	removed, err := s.file.Sweep(ctx)
	if err != nil {
		s.log.Error("file cache sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Debug("file cache sweep removed expired entries", zap.Int("removed", removed))
	}
}

// sweepOutbox relays any analytics_outbox rows a crashed or restarted
// process left unpublished: persisted-but-never-fanned-out events between
// the eventproc commit and its in-memory enqueue.
func (s *Scheduler) sweepOutbox(ctx context.Context) {
	if s.store == nil || s.agg == nil {
		return
	}
	const batchLimit = 500
	rows, err := s.store.PendingOutboxEvents(ctx, batchLimit)
	if err != nil {
		s.log.Error("pending outbox fetch failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		ev, err := s.store.GetEvent(ctx, row.EventID)
		if err != nil {
			s.log.Error("outbox event lookup failed", zap.Error(err), zap.String("event_id", row.EventID.String()))
			continue
		}
		if err := s.agg.AggregateEvent(ctx, *ev); err != nil {
			s.log.Error("outbox aggregation failed", zap.Error(err), zap.String("event_id", row.EventID.String()))
			continue
		}
		if err := s.store.MarkOutboxPublished(ctx, row.EventID); err != nil {
			s.log.Error("outbox mark-published failed", zap.Error(err), zap.String("event_id", row.EventID.String()))
		}
	}
}

// WireCacheInvalidation subscribes the Tiered Cache to the bus's "cache"
// topic, the only place a CacheEvent payload gets consumed. Invalidate
// deletes Key, BulkInvalidate deletes each entry of Patterns as a literal
// key, and Warm stores Data under Key with no expiry. InvalidatePattern is
// logged and ignored: the Tiered Cache has no pattern delete.
func WireCacheInvalidation(bus *eventbus.Bus[eventbus.SystemEvent], tc *cache.TieredCache, log *zap.Logger) {
	bus.Subscribe("cache", func(e eventbus.DomainEvent[eventbus.SystemEvent]) {
		payload := e.Payload.Cache
		if payload == nil {
			return
		}
		ctx := context.Background()
		switch payload.Kind {
		case eventbus.CacheInvalidate:
			if err := tc.Delete(ctx, payload.Key); err != nil {
				log.Warn("cache invalidate failed", zap.String("key", payload.Key), zap.Error(err))
			}
		case eventbus.CacheBulkInvalidate:
			for _, k := range payload.Patterns {
				if err := tc.Delete(ctx, k); err != nil {
					log.Warn("cache bulk invalidate failed", zap.String("key", k), zap.Error(err))
				}
			}
		case eventbus.CacheWarm:
			if err := tc.Set(ctx, payload.Key, cache.Entry{Value: payload.Data}); err != nil {
				log.Warn("cache warm failed", zap.String("key", payload.Key), zap.Error(err))
			}
		default:
			log.Debug("cache event kind not handled by tiered cache subscriber", zap.Int("kind", int(payload.Kind)))
		}
	})
}
