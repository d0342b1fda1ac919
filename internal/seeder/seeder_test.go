package seeder

import (
	"context"
	"testing"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduceBatches_EmitsAllRowsInBatchSizedChunks(t *testing.T) {
	eventUUIDs, err := sequentialUUIDs(95)
	require.NoError(t, err)
	userUUIDs, err := sequentialUUIDs(5)
	require.NoError(t, err)
	eventTypeIDs := []int32{1, 2, 3}

	cfg := config.Seeder{
		GenerateWorkers: 4,
		BatchSize:       10,
	}

	out := make(chan []EventRow, 100)
	err = produceBatches(context.Background(), cfg, eventUUIDs, userUUIDs, eventTypeIDs, out)
	close(out)
	require.NoError(t, err)

	total := 0
	seen := make(map[string]bool)
	for batch := range out {
		assert.LessOrEqual(t, len(batch), 10)
		for _, row := range batch {
			seen[row.ID.String()] = true
		}
		total += len(batch)
	}
	assert.Equal(t, 95, total)
	assert.Len(t, seen, 95)
}

func TestPow2(t *testing.T) {
	assert.Equal(t, int64(1), pow2(0))
	assert.Equal(t, int64(2), pow2(1))
	assert.Equal(t, int64(8), pow2(3))
}
