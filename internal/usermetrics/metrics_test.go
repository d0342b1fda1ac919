package usermetrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestUpdater(t *testing.T) *Updater {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb)
}

func TestRecordSessionEnd_ComputesRunningAverage(t *testing.T) {
	u := newTestUpdater(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	require.NoError(t, u.RecordSessionStart(ctx, userID, now))
	require.NoError(t, u.RecordSessionEnd(ctx, userID, now, 100))

	m, ok, err := u.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(100), m.AvgSessionDuration)

	require.NoError(t, u.RecordSessionStart(ctx, userID, now))
	require.NoError(t, u.RecordSessionEnd(ctx, userID, now, 200))

	m, ok, err = u.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(150), m.AvgSessionDuration)
}

func TestGet_FallsBackToRedisWhenNotCachedInMemory(t *testing.T) {
	u := newTestUpdater(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	require.NoError(t, u.RecordEvent(ctx, userID, now))

	fresh := New(u.rdb)
	m, ok, err := fresh.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), m.TotalEvents)
}

func TestFlush_PersistsAllShardedEntries(t *testing.T) {
	u := newTestUpdater(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, u.RecordEvent(ctx, uuid.New(), time.Now()))
	}

	n, err := u.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, n)
}

func TestGet_UnknownUserReturnsNotOK(t *testing.T) {
	u := newTestUpdater(t)
	_, ok, err := u.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}
