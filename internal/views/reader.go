// Copyright 2025 James Ross
package views

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/google/uuid"
)

// Window bounds a reader's time range; either bound may be zero to mean
// "unbounded in that direction".
type Window struct {
	From time.Time
	To   time.Time
}

// argCounter is the same single-source-of-truth placeholder pattern
// eventsdb.Store.ListEvents uses: every optional filter and the final LIMIT
// go through next(), so the placeholder count and the args slice length can
// never drift apart regardless of which filters are present. This is the
// same bug class (and the same fix) the original analytics DAO's limit
// builder had.
type argCounter struct {
	args []interface{}
	n    int
}

func newArgCounter() *argCounter { return &argCounter{n: 1} }

func (c *argCounter) next(v interface{}) string {
	c.args = append(c.args, v)
	placeholder := "$" + strconv.Itoa(c.n)
	c.n++
	return placeholder
}

// GetEventHourlySummaries returns rows ordered hour desc, total desc.
func (m *Manager) GetEventHourlySummaries(ctx context.Context, w Window, eventType *string, limit int) ([]EventHourlySummary, error) {
	c := newArgCounter()
	var sb strings.Builder
	sb.WriteString(`SELECT event_type, hour, total_events, unique_users FROM event_hourly_summaries WHERE 1=1`)
	if !w.From.IsZero() {
		sb.WriteString(" AND hour >= " + c.next(w.From))
	}
	if !w.To.IsZero() {
		sb.WriteString(" AND hour < " + c.next(w.To))
	}
	if eventType != nil {
		sb.WriteString(" AND event_type = " + c.next(*eventType))
	}
	sb.WriteString(" ORDER BY hour DESC, total_events DESC")
	if limit > 0 {
		sb.WriteString(" LIMIT " + c.next(limit))
	}

	rows, err := m.db.QueryContext(ctx, sb.String(), c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "event_hourly_summaries", err)
	}
	defer rows.Close()

	var out []EventHourlySummary
	for rows.Next() {
		var r EventHourlySummary
		if err := rows.Scan(&r.EventType, &r.Hour, &r.TotalEvents, &r.UniqueUsers); err != nil {
			return nil, apperr.NewBackendError("postgres", "event_hourly_summaries_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetUserDailyActivity returns rows ordered date desc, total desc.
func (m *Manager) GetUserDailyActivity(ctx context.Context, w Window, userID *uuid.UUID, limit int) ([]UserDailyActivity, error) {
	c := newArgCounter()
	var sb strings.Builder
	sb.WriteString(`SELECT user_id, date, total_events, unique_event_types, first_event, last_event FROM user_daily_activity WHERE 1=1`)
	if !w.From.IsZero() {
		sb.WriteString(" AND date >= " + c.next(w.From))
	}
	if !w.To.IsZero() {
		sb.WriteString(" AND date < " + c.next(w.To))
	}
	if userID != nil {
		sb.WriteString(" AND user_id = " + c.next(*userID))
	}
	sb.WriteString(" ORDER BY date DESC, total_events DESC")
	if limit > 0 {
		sb.WriteString(" LIMIT " + c.next(limit))
	}

	rows, err := m.db.QueryContext(ctx, sb.String(), c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "user_daily_activity", err)
	}
	defer rows.Close()

	var out []UserDailyActivity
	for rows.Next() {
		var r UserDailyActivity
		if err := rows.Scan(&r.UserID, &r.Date, &r.TotalEvents, &r.UniqueEventTypes, &r.FirstEvent, &r.LastEvent); err != nil {
			return nil, apperr.NewBackendError("postgres", "user_daily_activity_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPopularEvents returns rows ordered total desc.
func (m *Manager) GetPopularEvents(ctx context.Context, limit int) ([]PopularEvent, error) {
	c := newArgCounter()
	sb := `SELECT event_type, period, total_count, unique_users, growth_rate FROM popular_events ORDER BY total_count DESC`
	if limit > 0 {
		sb += " LIMIT " + c.next(limit)
	}
	rows, err := m.db.QueryContext(ctx, sb, c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "popular_events", err)
	}
	defer rows.Close()

	var out []PopularEvent
	for rows.Next() {
		var r PopularEvent
		if err := rows.Scan(&r.EventType, &r.Period, &r.TotalCount, &r.UniqueUsers, &r.GrowthRate); err != nil {
			return nil, apperr.NewBackendError("postgres", "popular_events_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetUserSessionSummaries returns the single session-summary row per user.
func (m *Manager) GetUserSessionSummaries(ctx context.Context, userID uuid.UUID) (*UserSessionSummary, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT user_id, total_sessions, avg_session_duration, total_time_spent
		FROM user_session_summaries WHERE user_id = $1
	`, userID)
	var r UserSessionSummary
	if err := row.Scan(&r.UserID, &r.TotalSessions, &r.AvgSessionDuration, &r.TotalTimeSpent); err == sql.ErrNoRows {
		return &UserSessionSummary{UserID: userID}, nil // missing rows are zero, not errors
	} else if err != nil {
		return nil, apperr.NewBackendError("postgres", "user_session_summaries", err)
	}
	return &r, nil
}

// GetPageAnalytics, GetProductAnalytics, GetReferrerAnalytics all share the
// same shape: time-desc-then-total-desc ordering is meaningless for these
// three views (they have no time dimension of their own), so they order by
// total desc only, per spec's fallback rule for views lacking a time column.

func (m *Manager) GetPageAnalytics(ctx context.Context, limit int) ([]PageAnalytics, error) {
	c := newArgCounter()
	sb := `SELECT page, total_views, unique_visitors FROM page_analytics ORDER BY total_views DESC`
	if limit > 0 {
		sb += " LIMIT " + c.next(limit)
	}
	rows, err := m.db.QueryContext(ctx, sb, c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "page_analytics", err)
	}
	defer rows.Close()
	var out []PageAnalytics
	for rows.Next() {
		var r PageAnalytics
		if err := rows.Scan(&r.Page, &r.TotalViews, &r.UniqueVisitors); err != nil {
			return nil, apperr.NewBackendError("postgres", "page_analytics_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *Manager) GetProductAnalytics(ctx context.Context, limit int) ([]ProductAnalytics, error) {
	c := newArgCounter()
	sb := `SELECT product_id, total_interactions, unique_users FROM product_analytics ORDER BY total_interactions DESC`
	if limit > 0 {
		sb += " LIMIT " + c.next(limit)
	}
	rows, err := m.db.QueryContext(ctx, sb, c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "product_analytics", err)
	}
	defer rows.Close()
	var out []ProductAnalytics
	for rows.Next() {
		var r ProductAnalytics
		if err := rows.Scan(&r.ProductID, &r.TotalInteractions, &r.UniqueUsers); err != nil {
			return nil, apperr.NewBackendError("postgres", "product_analytics_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *Manager) GetReferrerAnalytics(ctx context.Context, limit int) ([]ReferrerAnalytics, error) {
	c := newArgCounter()
	sb := `SELECT referrer, total_referrals, unique_users FROM referrer_analytics ORDER BY total_referrals DESC`
	if limit > 0 {
		sb += " LIMIT " + c.next(limit)
	}
	rows, err := m.db.QueryContext(ctx, sb, c.args...)
	if err != nil {
		return nil, apperr.NewBackendError("postgres", "referrer_analytics", err)
	}
	defer rows.Close()
	var out []ReferrerAnalytics
	for rows.Next() {
		var r ReferrerAnalytics
		if err := rows.Scan(&r.Referrer, &r.TotalReferrals, &r.UniqueUsers); err != nil {
			return nil, apperr.NewBackendError("postgres", "referrer_analytics_scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
