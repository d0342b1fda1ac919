package seeder

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialUUIDs_AllDistinct(t *testing.T) {
	ids, err := sequentialUUIDs(1000)
	require.NoError(t, err)
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate uuid generated: %s", id)
		seen[id] = true
	}
}

func TestSequentialUUIDs_ShareHighBytesWithBase(t *testing.T) {
	ids, err := sequentialUUIDs(3)
	require.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, ids[0][:8], id[:8])
	}
}

func TestGenerateEventRows_CyclesUsersAndEventTypes(t *testing.T) {
	eventUUIDs, err := sequentialUUIDs(10)
	require.NoError(t, err)
	userUUIDs, err := sequentialUUIDs(3)
	require.NoError(t, err)
	eventTypeIDs := []int32{1, 2}

	rows := GenerateEventRows(eventUUIDs, userUUIDs, eventTypeIDs, 0, 10)
	require.Len(t, rows, 10)
	for i, row := range rows {
		assert.Equal(t, eventUUIDs[i], row.ID)
		assert.Equal(t, userUUIDs[i%3], row.UserID)
		assert.Equal(t, eventTypeIDs[i%2], row.EventTypeID)
		assert.NotEmpty(t, row.Metadata)
	}
}

func TestGenerateEventRows_RespectsStartEndRange(t *testing.T) {
	eventUUIDs, err := sequentialUUIDs(100)
	require.NoError(t, err)
	userUUIDs, err := sequentialUUIDs(5)
	require.NoError(t, err)
	eventTypeIDs := []int32{1}

	rows := GenerateEventRows(eventUUIDs, userUUIDs, eventTypeIDs, 40, 50)
	require.Len(t, rows, 10)
	assert.Equal(t, eventUUIDs[40], rows[0].ID)
	assert.Equal(t, eventUUIDs[49], rows[9].ID)
}
