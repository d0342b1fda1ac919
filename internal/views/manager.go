// Copyright 2025 James Ross
package views

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
)

// Manager owns the seven rollup tables: refresh and the typed readers
// exposed in reader.go. It holds a *sql.DB, not a transaction, since a
// REFRESH MATERIALIZED VIEW statement is not meaningfully transactional
// alongside other work.
type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// RefreshResult reports what RefreshViews actually did.
type RefreshResult struct {
	Refreshed []string
	Elapsed   time.Duration
}

// RefreshViews refreshes one named view, or all seven if view is nil.
// concurrent requests REFRESH MATERIALIZED VIEW CONCURRENTLY, which
// requires the view's unique index (every migration in this repo creates
// one) — a database that rejects CONCURRENTLY for some other reason causes
// this call to fall back to a non-concurrent refresh of that view rather
// than aborting the whole batch.
func (m *Manager) RefreshViews(ctx context.Context, view *string, concurrent bool) (RefreshResult, error) {
	targets := Names
	if view != nil {
		if !isKnownView(*view) {
			return RefreshResult{}, apperr.NewValidationError("view", *view, "unknown materialized view")
		}
		targets = []string{*view}
	}

	start := time.Now()
	refreshed := make([]string, 0, len(targets))
	for _, name := range targets {
		if err := m.refreshOne(ctx, name, concurrent); err != nil {
			return RefreshResult{Refreshed: refreshed, Elapsed: time.Since(start)}, err
		}
		refreshed = append(refreshed, name)
	}
	return RefreshResult{Refreshed: refreshed, Elapsed: time.Since(start)}, nil
}

func (m *Manager) refreshOne(ctx context.Context, name string, concurrent bool) error {
	timer := time.Now()
	defer func() {
		obs.MaterializedViewRefreshSeconds.WithLabelValues(name).Observe(time.Since(timer).Seconds())
	}()

	stmt := fmt.Sprintf("REFRESH MATERIALIZED VIEW %s", name)
	if concurrent {
		stmt = fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", name)
	}
	_, err := m.db.ExecContext(ctx, stmt)
	if err != nil && concurrent {
		// Falls back silently to a non-concurrent refresh, per the refresh
		// contract's "falling back silently otherwise" clause.
		_, err = m.db.ExecContext(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW %s", name))
	}
	if err != nil {
		return apperr.NewBackendError("postgres", "refresh_view:"+name, err)
	}
	return nil
}

func isKnownView(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
