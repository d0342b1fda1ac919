package views

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGetEventHourlySummaries_ParamCountMatchesFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	from := time.Now().Add(-time.Hour)
	to := time.Now()
	et := "page_view"

	mock.ExpectQuery("SELECT event_type, hour, total_events, unique_users FROM event_hourly_summaries WHERE 1=1").
		WithArgs(from, to, et, 10).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "hour", "total_events", "unique_users"}))

	_, err = m.GetEventHourlySummaries(context.Background(), Window{From: from, To: to}, &et, 10)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventHourlySummaries_NoFiltersStillAppliesLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	mock.ExpectQuery("SELECT event_type, hour, total_events, unique_users FROM event_hourly_summaries WHERE 1=1").
		WithArgs(25).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "hour", "total_events", "unique_users"}))

	_, err = m.GetEventHourlySummaries(context.Background(), Window{}, nil, 25)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserDailyActivity_ParamCountMatchesFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	uid := uuid.New()

	mock.ExpectQuery("SELECT user_id, date, total_events, unique_event_types, first_event, last_event FROM user_daily_activity WHERE 1=1").
		WithArgs(uid, 5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "date", "total_events", "unique_event_types", "first_event", "last_event"}))

	_, err = m.GetUserDailyActivity(context.Background(), Window{}, &uid, 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserSessionSummaries_MissingRowIsZeroNotError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	uid := uuid.New()
	mock.ExpectQuery("SELECT user_id, total_sessions, avg_session_duration, total_time_spent").
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total_sessions", "avg_session_duration", "total_time_spent"}))

	s, err := m.GetUserSessionSummaries(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, int64(0), s.TotalSessions)
}

func TestRefreshViews_RefreshesAllSevenInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	for _, name := range Names {
		mock.ExpectExec("REFRESH MATERIALIZED VIEW " + name).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	result, err := m.RefreshViews(context.Background(), nil, false)
	require.NoError(t, err)
	require.Equal(t, Names, result.Refreshed)
}

func TestRefreshViews_SingleNamedView(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	mock.ExpectExec("REFRESH MATERIALIZED VIEW popular_events").WillReturnResult(sqlmock.NewResult(0, 0))

	view := "popular_events"
	result, err := m.RefreshViews(context.Background(), &view, false)
	require.NoError(t, err)
	require.Equal(t, []string{"popular_events"}, result.Refreshed)
}

func TestRefreshViews_UnknownViewIsValidationError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	view := "not_a_real_view"
	_, err = m.RefreshViews(context.Background(), &view, false)
	require.Error(t, err)
}

func TestGetUserMetrics_NoActivityIsZeroValued(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db)
	uid := uuid.New()
	mock.ExpectQuery("SELECT user_id, date, total_events, unique_event_types, first_event, last_event FROM user_daily_activity WHERE 1=1").
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "date", "total_events", "unique_event_types", "first_event", "last_event"}))

	metrics, err := m.GetUserMetrics(context.Background(), uid, Window{})
	require.NoError(t, err)
	require.Equal(t, int64(0), metrics.TotalEvents)
}
