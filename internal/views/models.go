// Copyright 2025 James Ross
package views

import (
	"time"

	"github.com/google/uuid"
)

// Names lists the seven rollup tables the Materialized-View Manager owns,
// in the order full refreshes process them.
var Names = []string{
	"event_hourly_summaries",
	"user_daily_activity",
	"popular_events",
	"user_session_summaries",
	"page_analytics",
	"product_analytics",
	"referrer_analytics",
}

type EventHourlySummary struct {
	EventType    string
	Hour         time.Time
	TotalEvents  int64
	UniqueUsers  int64
}

type UserDailyActivity struct {
	UserID           uuid.UUID
	Date             time.Time
	TotalEvents      int64
	UniqueEventTypes int64
	FirstEvent       time.Time
	LastEvent        time.Time
}

type PopularEvent struct {
	EventType   string
	Period      string
	TotalCount  int64
	UniqueUsers int64
	GrowthRate  float64
}

type UserSessionSummary struct {
	UserID              uuid.UUID
	TotalSessions        int64
	AvgSessionDuration   float64
	TotalTimeSpent       float64
}

type PageAnalytics struct {
	Page           string
	TotalViews     int64
	UniqueVisitors int64
}

type ProductAnalytics struct {
	ProductID         string
	TotalInteractions int64
	UniqueUsers       int64
}

type ReferrerAnalytics struct {
	Referrer       string
	TotalReferrals int64
	UniqueUsers    int64
}

// EventMetrics is a cross-view derived reader result (C5's
// get_event_metrics): event_hourly_summaries rows for the window, summed;
// the base events table is not read.
type EventMetrics struct {
	EventType   string
	Window      time.Time
	TotalEvents int64
	UniqueUsers int64
}

// UserMetrics is get_user_metrics's result: user_daily_activity plus
// session summary fields plus a derived most-active weekday.
type UserMetrics struct {
	UserID            uuid.UUID
	TotalEvents       int64
	EventsPerUser     float64
	MostActiveWeekday time.Weekday
	TotalSessions     int64
}
