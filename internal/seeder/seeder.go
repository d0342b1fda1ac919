// Copyright 2025 James Ross

// Package seeder implements the bulk ingestion / load-testing data
// generator (C8): truncate-and-reseed the events schema with a configurable
// number of synthetic users, a fixed event-type catalog, and a large batch
// of randomly distributed events, inserted through a bounded pipeline of
// parallel unnest-array batch inserts.
package seeder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result summarizes one seeding run.
type Result struct {
	EventsInserted int
	Elapsed        time.Duration
}

// Seed truncates users/event_types/events, repopulates the first two, then
// generates and bulk-inserts cfg.TargetEventCount events through
// cfg.InsertWorkers parallel inserters fed by cfg.GenerateWorkers producers,
// with the prelude/restore session tweaks bracketing the whole run so the
// restore always runs even if generation or insertion fails.
func Seed(ctx context.Context, db *sql.DB, cfg config.Seeder, log *zap.Logger) (Result, error) {
	start := time.Now()

	if err := runPrelude(ctx, db); err != nil {
		return Result{}, fmt.Errorf("seed prelude: %w", err)
	}
	defer func() {
		if err := runRestore(ctx, db); err != nil {
			log.Warn("seed restore failed", zap.Error(err))
		}
	}()

	userIDs, err := sequentialUUIDs(cfg.UserCount)
	if err != nil {
		return Result{}, fmt.Errorf("generate user uuids: %w", err)
	}
	if err := insertUsers(ctx, db, userIDs); err != nil {
		return Result{}, fmt.Errorf("insert users: %w", err)
	}

	if err := insertEventTypes(ctx, db, EventTypeNames); err != nil {
		return Result{}, fmt.Errorf("insert event types: %w", err)
	}
	eventTypeIDs, err := fetchEventTypeIDs(ctx, db)
	if err != nil {
		return Result{}, fmt.Errorf("fetch event type ids: %w", err)
	}

	eventUUIDs, err := sequentialUUIDs(cfg.TargetEventCount)
	if err != nil {
		return Result{}, fmt.Errorf("generate event uuids: %w", err)
	}

	batches := make(chan []EventRow, cfg.ChannelDepth)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(batches)
		return produceBatches(gctx, cfg, eventUUIDs, userIDs, eventTypeIDs, batches)
	})

	workers := cfg.InsertWorkers
	if workers <= 0 {
		workers = 1
	}
	totals := make([]int, workers)
	limiter := newRowRateLimiter(cfg)

	// A single shared channel with multiple consumers fans the insert work
	// out across InsertWorkers without any producer-side partitioning. The
	// rate limiter, when configured, is shared across every worker so
	// RateLimitPerSec bounds aggregate throughput, not per-worker throughput.
	for w := 0; w < workers; w++ {
		w := w
		group.Go(func() error {
			ins := &inserter{db: db, cfg: cfg, log: log, limiter: limiter}
			n, err := ins.run(gctx, batches)
			totals[w] = n
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return Result{}, fmt.Errorf("seed run: %w", err)
	}

	total := 0
	for _, n := range totals {
		total += n
	}

	return Result{EventsInserted: total, Elapsed: time.Since(start)}, nil
}

// produceBatches partitions [0,len(eventUUIDs)) into cfg.GenerateWorkers
// roughly-equal chunks, generates rows for each chunk in parallel, and
// feeds cfg.BatchSize-sized slices onto out — mirroring the original
// binary's rayon chunk-parallel generator feeding a single bounded channel.
func produceBatches(ctx context.Context, cfg config.Seeder, eventUUIDs, userIDs []uuid.UUID, eventTypeIDs []int32, out chan<- []EventRow) error {
	total := len(eventUUIDs)
	workers := cfg.GenerateWorkers
	if workers <= 0 {
		workers = 1
	}
	chunkSize := (total + workers - 1) / workers
	if chunkSize <= 0 {
		chunkSize = total
	}

	type chunk struct{ start, end int }
	var chunks []chunk
	for s := 0; s < total; s += chunkSize {
		e := s + chunkSize
		if e > total {
			e = total
		}
		chunks = append(chunks, chunk{s, e})
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		c := c
		group.Go(func() error {
			rows := GenerateEventRows(eventUUIDs, userIDs, eventTypeIDs, c.start, c.end)
			batchSize := cfg.BatchSize
			if batchSize <= 0 {
				batchSize = len(rows)
			}
			for i := 0; i < len(rows); i += batchSize {
				j := i + batchSize
				if j > len(rows) {
					j = len(rows)
				}
				select {
				case out <- rows[i:j]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	return group.Wait()
}

func insertUsers(ctx context.Context, db *sql.DB, userIDs []uuid.UUID) error {
	ids := make([]string, len(userIDs))
	names := make([]string, len(userIDs))
	now := time.Now()
	createdAt := make([]time.Time, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
		names[i] = fmt.Sprintf("User%d", i+1)
		createdAt[i] = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at)
		SELECT * FROM unnest($1::uuid[], $2::text[], $3::timestamptz[])
	`, pq.Array(ids), pq.Array(names), pq.Array(createdAt))
	return err
}

func insertEventTypes(ctx context.Context, db *sql.DB, names []string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO event_types (name) SELECT * FROM unnest($1::text[])
	`, pq.Array(names))
	return err
}

func fetchEventTypeIDs(ctx context.Context, db *sql.DB) ([]int32, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM event_types ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
