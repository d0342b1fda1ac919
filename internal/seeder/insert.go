// Copyright 2025 James Ross
package seeder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const insertEventsUnnestSQL = `
INSERT INTO events (id, user_id, event_type_id, timestamp, metadata)
SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::int[], $4::timestamptz[], $5::jsonb[])
`

// inserter drains batches off a channel and bulk-inserts each with
// unnest-array parameters, retrying transient failures with the
// connection-class-aware backoff the original binary uses and running a
// health check every HealthCheckEvery batches.
type inserter struct {
	db      *sql.DB
	cfg     config.Seeder
	log     *zap.Logger
	limiter *rate.Limiter
}

// newRowRateLimiter builds the shared row-rate limiter every insert worker
// waits on before applying a batch, bounding aggregate ingest throughput to
// config.Seeder.RateLimitPerSec rows/sec across all workers combined. A
// non-positive RateLimitPerSec means unlimited, matching the zero-value
// config default.
func newRowRateLimiter(cfg config.Seeder) *rate.Limiter {
	if cfg.RateLimitPerSec <= 0 {
		return nil
	}
	burst := cfg.RateLimitPerSec
	if cfg.BatchSize > burst {
		burst = cfg.BatchSize
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
}

func (ins *inserter) run(ctx context.Context, batches <-chan []EventRow) (int, error) {
	total := 0
	batchCount := 0

	for batch := range batches {
		batchCount++

		if ins.cfg.HealthCheckEvery > 0 && batchCount%ins.cfg.HealthCheckEvery == 0 {
			if _, err := ins.db.ExecContext(ctx, "SELECT 1"); err != nil {
				return total, fmt.Errorf("connection health check failed at batch %d: %w", batchCount, err)
			}
		}

		if ins.limiter != nil {
			if err := ins.limiter.WaitN(ctx, len(batch)); err != nil {
				return total, fmt.Errorf("rate limiter wait failed at batch %d: %w", batchCount, err)
			}
		}

		n, err := ins.insertBatchWithRetry(ctx, batch, batchCount)
		if err != nil {
			return total, fmt.Errorf("insert failed at batch %d: %w", batchCount, err)
		}
		total += n
	}
	return total, nil
}

func (ins *inserter) insertBatchWithRetry(ctx context.Context, batch []EventRow, batchCount int) (int, error) {
	maxRetries := ins.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		err := ins.execBatch(ctx, batch)
		if err == nil {
			if retry > 0 {
				ins.log.Info("batch insert succeeded after retries",
					zap.Int("retries", retry), zap.Int("batch", batchCount))
			}
			obs.SeederRowsInserted.Add(float64(len(batch)))
			return len(batch), nil
		}
		lastErr = err
		if Classify(err) == Permanent {
			break
		}
		obs.SeederBatchRetries.Inc()

		if retry == maxRetries-1 {
			break
		}

		connClass := IsConnectionClass(err)
		backoff := ins.cfg.Backoff
		if connClass {
			backoff = ins.cfg.ConnectionBackoff
		}
		delay := backoff.Base << uint(retry)
		if backoff.Max > 0 && delay > backoff.Max {
			delay = backoff.Max
		}
		ins.log.Warn("batch insert retry",
			zap.Int("retry", retry+1), zap.Int("max_retries", maxRetries),
			zap.Int("batch", batchCount), zap.Error(err))

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}

		if connClass {
			if _, healthErr := ins.db.ExecContext(ctx, "SELECT 1"); healthErr != nil {
				ins.log.Warn("connection still unhealthy after backoff", zap.Error(healthErr))
			} else {
				ins.log.Info("connection recovered for retry")
			}
		}
	}
	return 0, lastErr
}

func (ins *inserter) execBatch(ctx context.Context, batch []EventRow) error {
	ids := make([]uuid.UUID, len(batch))
	userIDs := make([]uuid.UUID, len(batch))
	typeIDs := make([]int32, len(batch))
	timestamps := make([]time.Time, len(batch))
	metadata := make([]string, len(batch))

	for i, row := range batch {
		ids[i] = row.ID
		userIDs[i] = row.UserID
		typeIDs[i] = row.EventTypeID
		timestamps[i] = row.Timestamp
		metadata[i] = string(row.Metadata)
	}

	_, err := ins.db.ExecContext(ctx, insertEventsUnnestSQL,
		pq.Array(uuidStrings(ids)),
		pq.Array(uuidStrings(userIDs)),
		pq.Array(typeIDs),
		pq.Array(timestamps),
		pq.Array(metadata),
	)
	return err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
