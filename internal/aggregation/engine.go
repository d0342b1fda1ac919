// Copyright 2025 James Ross
package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/bucket"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/flyingrobots/event-analytics-engine/internal/obs"
	"github.com/redis/go-redis/v9"
)

// Engine fans a single accepted event into bucket-indexed counters and HLL
// sketches in Redis, one write per bucket.Kind, pipelined to bound round
// trips. It owns everything under the "analytics:" key prefix exclusively;
// nothing else writes there.
type Engine struct {
	rdb *redis.Client
}

func NewEngine(rdb *redis.Client) *Engine {
	return &Engine{rdb: rdb}
}

func totalKey(bk bucket.Key) string    { return bk.String() + ":total" }
func typesKey(bk bucket.Key) string    { return bk.String() + ":types" }
func usersHLLKey(bk bucket.Key) string { return bk.String() + ":users_hll" }
func metadataKey(bk bucket.Key) string { return bk.String() + ":metadata" }

// AggregateEvent writes event into every bucket.Kind's keys. Writes are not
// atomic across keys, or across kinds: a reader may observe total
// incremented before the HLL has absorbed the new user id. A failure on one
// kind does not prevent the others from being attempted; the caller decides
// whether to retry the whole event.
func (e *Engine) AggregateEvent(ctx context.Context, ev eventsdb.Event) error {
	var firstErr error
	for _, kind := range bucket.Kinds {
		if err := e.aggregateOneKind(ctx, kind, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		obs.AggregationErrors.Inc()
		return apperr.NewBackendError("redis", "aggregate_event", firstErr)
	}
	obs.EventsAggregated.Inc()
	return nil
}

func (e *Engine) aggregateOneKind(ctx context.Context, kind bucket.Kind, ev eventsdb.Event) error {
	bk := bucket.BucketKey(kind, ev.Timestamp)
	pipe := e.rdb.Pipeline()

	pipe.Incr(ctx, totalKey(bk))
	pipe.HIncrBy(ctx, typesKey(bk), strconv.Itoa(int(ev.EventTypeID)), 1)
	pipe.PFAdd(ctx, usersHLLKey(bk), ev.UserID.String())
	if len(ev.Metadata) > 0 {
		flat := make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			flat[k] = fmt.Sprint(v)
		}
		data, err := json.Marshal(flat)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		pipe.HSet(ctx, metadataKey(bk), "latest", data)
	}

	if ttl := kind.Expiry(); ttl > 0 {
		pipe.Expire(ctx, totalKey(bk), ttl)
		pipe.Expire(ctx, typesKey(bk), ttl)
		pipe.Expire(ctx, usersHLLKey(bk), ttl)
		pipe.Expire(ctx, metadataKey(bk), ttl)
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetBucketMetrics reads the counters, HLL, and latest metadata for the
// bucket containing t. Filters, if any, are applied by the caller over the
// returned EventTypeCounts map — filtering happens at read time, never at
// write time.
func (e *Engine) GetBucketMetrics(ctx context.Context, kind bucket.Kind, t time.Time) (BucketMetrics, error) {
	bk := bucket.BucketKey(kind, t)
	return e.readBucket(ctx, bk)
}

func (e *Engine) readBucket(ctx context.Context, bk bucket.Key) (BucketMetrics, error) {
	pipe := e.rdb.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey(bk))
	typesCmd := pipe.HGetAll(ctx, typesKey(bk))
	cardCmd := pipe.PFCount(ctx, usersHLLKey(bk))
	metaCmd := pipe.HGet(ctx, metadataKey(bk), "latest")

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return BucketMetrics{}, apperr.NewBackendError("redis", "get_bucket_metrics", err)
	}

	out := newBucketMetrics()
	if total, err := totalCmd.Uint64(); err == nil {
		out.TotalEvents = total
	}
	if card, err := cardCmd.Result(); err == nil {
		out.UniqueUsers = uint64(card)
	}
	for etID, count := range typesCmd.Val() {
		n, err := strconv.ParseUint(count, 10, 64)
		if err != nil {
			continue
		}
		out.EventTypeCounts[etID] = n
	}
	if raw, err := metaCmd.Result(); err == nil && raw != "" {
		var props map[string]string
		if jsonErr := json.Unmarshal([]byte(raw), &props); jsonErr == nil {
			out.Properties = props
		}
	}
	return out, nil
}

// TimeSeriesPoint pairs a bucket key with its metrics, the unit
// GetTimeSeries emits.
type TimeSeriesPoint struct {
	Key     bucket.Key
	Metrics BucketMetrics
}

// GetTimeSeries emits one BucketMetrics per bucket of kind in [from, to);
// buckets with no writes yield a zero-valued BucketMetrics rather than being
// omitted, so the series has no gaps for a caller plotting it directly.
func (e *Engine) GetTimeSeries(ctx context.Context, kind bucket.Kind, from, to time.Time) ([]TimeSeriesPoint, error) {
	keys := bucket.Iterate(kind, from, to)
	points := make([]TimeSeriesPoint, 0, len(keys))
	for _, bk := range keys {
		m, err := e.readBucket(ctx, bk)
		if err != nil {
			return nil, err
		}
		points = append(points, TimeSeriesPoint{Key: bk, Metrics: m})
	}
	return points, nil
}
