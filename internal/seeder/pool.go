// Copyright 2025 James Ross
package seeder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// OpenPoolWithRetry opens and pings a *sql.DB, retrying up to cfg.MaxRetries
// times with exponential backoff (one second, doubling per attempt, with no
// cap), mirroring the original seeder's create_pool_with_retry.
// On success it applies the per-session timeout trio as an after-connect
// equivalent: database/sql has no connection-hook callback, so the trio is
// set once here via a session-scoped SET (see applySessionTimeouts).
func OpenPoolWithRetry(ctx context.Context, pg config.Postgres, maxRetries int, log *zap.Logger) (*sql.DB, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err := sql.Open("postgres", pg.DSN)
		if err != nil {
			lastErr = err
		} else {
			db.SetMaxOpenConns(pg.MaxOpenConns)
			db.SetMaxIdleConns(pg.MaxIdleConns)
			db.SetConnMaxLifetime(pg.ConnMaxLifetime)
			db.SetConnMaxIdleTime(pg.ConnMaxIdleTime)

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				if err := applySessionTimeouts(ctx, db, pg); err != nil {
					db.Close()
					lastErr = err
				} else {
					return db, nil
				}
			} else {
				db.Close()
				lastErr = err
			}
		}

		delay := time.Duration(1000*pow2(attempt-1)) * time.Millisecond
		log.Warn("postgres pool attempt failed, backing off",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("open postgres pool: exhausted retries: %w", lastErr)
}

func pow2(n int) int64 {
	if n <= 0 {
		return 1
	}
	return 2 * pow2(n-1)
}

// applySessionTimeouts runs once per freshly opened pool, setting the
// statement/lock/idle-in-transaction timeouts the teacher's config already
// defaults (internal/config.Postgres), standing in for the original's
// after_connect hook since database/sql pools recycle physical connections
// the caller never directly observes.
func applySessionTimeouts(ctx context.Context, db *sql.DB, pg config.Postgres) error {
	stmts := []string{
		fmt.Sprintf("SET statement_timeout = %d", pg.StatementTimeout.Milliseconds()),
		fmt.Sprintf("SET lock_timeout = %d", pg.LockTimeout.Milliseconds()),
		fmt.Sprintf("SET idle_in_transaction_session_timeout = %d", pg.IdleTxnTimeout.Milliseconds()),
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("apply session timeout %q: %w", s, err)
		}
	}
	return nil
}
