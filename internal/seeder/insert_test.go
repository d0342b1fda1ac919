package seeder

import (
	"testing"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewRowRateLimiter_DisabledWhenNonPositive(t *testing.T) {
	assert.Nil(t, newRowRateLimiter(config.Seeder{RateLimitPerSec: 0}))
	assert.Nil(t, newRowRateLimiter(config.Seeder{RateLimitPerSec: -1}))
}

func TestNewRowRateLimiter_BurstCoversAtLeastOneBatch(t *testing.T) {
	lim := newRowRateLimiter(config.Seeder{RateLimitPerSec: 10, BatchSize: 500})
	require.NotNil(t, lim)
	assert.Equal(t, rate.Limit(10), lim.Limit())
	assert.GreaterOrEqual(t, lim.Burst(), 500)
}
