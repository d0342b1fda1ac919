// Copyright 2025 James Ross
package views

import (
	"context"
	"database/sql"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/google/uuid"
)

// GetEventMetrics sums event_hourly_summaries rows to report total activity
// for eventType over w, defaulting to zero rather than an error when the
// rollup has no matching row yet. It does not read the base events table:
// UniqueUsers is the largest single-row unique_users value, not a distinct
// count over the whole window.
func (m *Manager) GetEventMetrics(ctx context.Context, w Window, eventType *string) (EventMetrics, error) {
	summaries, err := m.GetEventHourlySummaries(ctx, w, eventType, 0)
	if err != nil {
		return EventMetrics{}, err
	}
	out := EventMetrics{Window: w.From}
	if eventType != nil {
		out.EventType = *eventType
	}
	for _, s := range summaries {
		out.TotalEvents += s.TotalEvents
		if s.UniqueUsers > out.UniqueUsers {
			out.UniqueUsers = s.UniqueUsers
		}
	}
	return out, nil
}

// GetUserMetrics combines user_daily_activity with user_session_summaries
// to compute events_per_user and the user's most-active weekday over w. A
// user with no rows in either view gets a zero-valued UserMetrics, not an
// error: absence of activity is a valid answer, not a failure.
func (m *Manager) GetUserMetrics(ctx context.Context, userID uuid.UUID, w Window) (UserMetrics, error) {
	activity, err := m.GetUserDailyActivity(ctx, w, &userID, 0)
	if err != nil {
		return UserMetrics{}, err
	}
	out := UserMetrics{UserID: userID}
	if len(activity) == 0 {
		return out, nil
	}

	weekdayCounts := make(map[int]int64)
	for _, a := range activity {
		out.TotalEvents += a.TotalEvents
		weekdayCounts[int(a.Date.Weekday())] += a.TotalEvents
	}
	out.EventsPerUser = float64(out.TotalEvents) / float64(len(activity))

	var best int
	var bestCount int64 = -1
	for wd, n := range weekdayCounts {
		if n > bestCount {
			bestCount = n
			best = wd
		}
	}
	out.MostActiveWeekday = time.Weekday(best)

	session, err := m.GetUserSessionSummaries(ctx, userID)
	if err != nil && err != sql.ErrNoRows {
		return out, apperr.NewBackendError("postgres", "get_user_metrics_session", err)
	}
	if session != nil {
		out.TotalSessions = session.TotalSessions
	}
	return out, nil
}
