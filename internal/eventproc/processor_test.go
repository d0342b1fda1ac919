package eventproc

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAggregator struct {
	mu     sync.Mutex
	events []eventsdb.Event
}

func (a *recordingAggregator) AggregateEvent(ctx context.Context, e eventsdb.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func newTestProcessor(t *testing.T) (*Processor, sqlmock.Sqlmock, *recordingAggregator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := eventsdb.NewStore(db)
	agg := &recordingAggregator{}
	p := NewProcessor(store, agg, zap.NewNop())
	return p, mock, agg
}

func waitForCount(t *testing.T, agg *recordingAggregator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if agg.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for aggregator to receive %d events, got %d", n, agg.count())
}

func TestCreateEvent_PersistsThenFansOutAsynchronously(t *testing.T) {
	p, mock, agg := newTestProcessor(t)
	go p.Run(context.Background())
	defer p.Close()

	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WithArgs("page_view").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(int32(1), "page_view", time.Now()))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	e, err := p.CreateEvent(context.Background(), CreateEventRequest{
		EventType: "page_view",
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"page": "/"},
	})
	require.NoError(t, err)
	require.NotNil(t, e)

	waitForCount(t, agg, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventsBatch_AbortsOnFirstError(t *testing.T) {
	p, mock, _ := newTestProcessor(t)
	go p.Run(context.Background())
	defer p.Close()

	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WithArgs("ok").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(int32(1), "ok", time.Now()))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WithArgs("bad").
		WillReturnError(errors.New("connection reset"))

	reqs := []CreateEventRequest{
		{EventType: "ok", Timestamp: time.Now()},
		{EventType: "bad", Timestamp: time.Now()},
		{EventType: "ok", Timestamp: time.Now()},
	}
	events, err := p.CreateEventsBatch(context.Background(), reqs)
	require.Error(t, err)
	require.Len(t, events, 1)
}

func TestEnqueue_QueueFullOnBoundedVariantDropsAndLogsRatherThanBlocking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := eventsdb.NewStore(db)
	agg := &recordingAggregator{}
	p := NewProcessor(store, agg, zap.NewNop(), WithQueueCapacity(1))
	// No Run() goroutine is started, so the queue fills after one push.

	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(int32(1), "t", time.Now())).
		Times(3)
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1)).Times(3)

	for i := 0; i < 3; i++ {
		_, err := p.CreateEvent(context.Background(), CreateEventRequest{EventType: "t", Timestamp: time.Now()})
		require.NoError(t, err)
	}
	// Only the insert must succeed every time; the queue silently drops
	// overflow without the caller ever seeing an error.
}

func TestCreateEvent_UnknownEventTypeIsValidationFailureNotNotFound(t *testing.T) {
	p, mock, _ := newTestProcessor(t)
	go p.Run(context.Background())
	defer p.Close()

	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WithArgs("bogus").
		WillReturnError(sql.ErrNoRows)

	_, err := p.CreateEvent(context.Background(), CreateEventRequest{
		EventType: "bogus",
		Timestamp: time.Now(),
	})
	require.Error(t, err)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestIdempotencyGuard_SecondCheckReturnsCachedEvent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	guard := NewIdempotencyGuard(rdb, time.Minute)

	ctx := context.Background()
	_, ok, err := guard.Check(ctx, "key-1")
	require.NoError(t, err)
	require.False(t, ok)

	e := &eventsdb.Event{EventTypeID: 1}
	require.NoError(t, guard.Set(ctx, "key-1", e))

	cached, ok, err := guard.Check(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(1), cached.EventTypeID)
}
