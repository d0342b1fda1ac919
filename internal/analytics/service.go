// Copyright 2025 James Ross
package analytics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/aggregation"
	"github.com/flyingrobots/event-analytics-engine/internal/bucket"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/flyingrobots/event-analytics-engine/internal/views"
	"github.com/google/uuid"
)

// Source picks which subsystem an Analytics Service read is served from.
// SourceAuto lets the service decide via the routing rule; the other two
// values are caller overrides.
type Source int

const (
	SourceAuto Source = iota
	SourceRealTime
	SourceHistorical
)

// Service is the single entry point query handlers use (C6): it composes
// the real-time Aggregation Engine (C3) and the historical Materialized-
// View Manager (C5), routing reads between them based on whether the
// requested window falls after the last successful view refresh.
type Service struct {
	agg          *aggregation.Engine
	viewsManager *views.Manager
	lastRefresh  atomic.Int64 // unix nanos, 0 means "never refreshed"
}

func NewService(agg *aggregation.Engine, viewsManager *views.Manager) *Service {
	return &Service{agg: agg, viewsManager: viewsManager}
}

// NoteRefresh records that the Materialized-View Manager completed a
// refresh at t, giving the routing rule its boundary. The Background
// Scheduler does not call it; while no caller has, SourceAuto routes every
// read to the real-time path.
func (s *Service) NoteRefresh(t time.Time) {
	s.lastRefresh.Store(t.UnixNano())
}

func (s *Service) lastRefreshTime() time.Time {
	n := s.lastRefresh.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// route implements the "windows entirely within the most recent refresh
// interval go to C3; windows extending into refreshed territory go to C5"
// rule, unless the caller overrides it.
func (s *Service) route(w views.Window, override Source) Source {
	if override != SourceAuto {
		return override
	}
	last := s.lastRefreshTime()
	if last.IsZero() {
		return SourceRealTime
	}
	if w.From.After(last) {
		return SourceRealTime
	}
	return SourceHistorical
}

// ProcessEvent forwards to the Aggregation Engine; C6 does not itself own
// any write path.
func (s *Service) ProcessEvent(ctx context.Context, e eventsdb.Event) error {
	return s.agg.AggregateEvent(ctx, e)
}

// RealTimeMetrics reads C3 directly for the bucket containing t.
func (s *Service) RealTimeMetrics(ctx context.Context, kind bucket.Kind, t time.Time) (aggregation.BucketMetrics, error) {
	return s.agg.GetBucketMetrics(ctx, kind, t)
}

// TimeSeries delegates to C3 or C5 depending on the routing rule. The C5
// path is approximated via event_hourly_summaries since the historical
// rollups are the closest analogue to a real-time bucket time series;
// finer-grained historical series are out of scope for the Day/Week/Month
// kinds C5 doesn't roll up per-bucket.
func (s *Service) TimeSeries(ctx context.Context, kind bucket.Kind, w views.Window, override Source) ([]aggregation.TimeSeriesPoint, error) {
	switch s.route(w, override) {
	case SourceHistorical:
		summaries, err := s.viewsManager.GetEventHourlySummaries(ctx, w, nil, 0)
		if err != nil {
			return nil, err
		}
		return summariesToTimeSeries(summaries), nil
	default:
		return s.agg.GetTimeSeries(ctx, kind, w.From, w.To)
	}
}

// summariesToTimeSeries folds event_hourly_summaries rows (one row per
// event type per hour) into one TimeSeriesPoint per hour, mirroring the
// shape GetTimeSeries returns for the real-time path: TotalEvents and
// UniqueUsers summed across event types, EventTypeCounts keyed by name.
// Row order from the DAO is preserved for which hour each point first
// appears at.
func summariesToTimeSeries(summaries []views.EventHourlySummary) []aggregation.TimeSeriesPoint {
	points := make([]aggregation.TimeSeriesPoint, 0, len(summaries))
	index := make(map[bucket.Key]int, len(summaries))
	for _, row := range summaries {
		key := bucket.BucketKey(bucket.Hour, row.Hour)
		i, ok := index[key]
		if !ok {
			i = len(points)
			index[key] = i
			points = append(points, aggregation.TimeSeriesPoint{
				Key: key,
				Metrics: aggregation.BucketMetrics{
					EventTypeCounts: make(map[string]uint64),
				},
			})
		}
		points[i].Metrics.TotalEvents += uint64(row.TotalEvents)
		points[i].Metrics.UniqueUsers += uint64(row.UniqueUsers)
		points[i].Metrics.EventTypeCounts[row.EventType] += uint64(row.TotalEvents)
	}
	return points
}

// HourlySummaries delegates 1:1 to C5, translating the surrogate event-type
// id filter (when the caller supplies one as an integer id rather than a
// name) into the "type_<n>" string form used by filterable reads.
func (s *Service) HourlySummaries(ctx context.Context, w views.Window, eventTypeID *int32, limit int) ([]views.EventHourlySummary, error) {
	var name *string
	if eventTypeID != nil {
		translated := fmt.Sprintf("type_%d", *eventTypeID)
		name = &translated
	}
	return s.viewsManager.GetEventHourlySummaries(ctx, w, name, limit)
}

// UserActivity delegates 1:1 to C5.
func (s *Service) UserActivity(ctx context.Context, w views.Window, userID *uuid.UUID, limit int) ([]views.UserDailyActivity, error) {
	return s.viewsManager.GetUserDailyActivity(ctx, w, userID, limit)
}

// PopularEvents delegates 1:1 to C5.
func (s *Service) PopularEvents(ctx context.Context, limit int) ([]views.PopularEvent, error) {
	return s.viewsManager.GetPopularEvents(ctx, limit)
}
