package bucket

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketKeyFormats(t *testing.T) {
	ts := time.Date(2026, time.July, 30, 14, 37, 22, 0, time.UTC)

	assert.Equal(t, "analytics:minute:2026-07-30T14:37", BucketKey(Minute, ts).String())
	assert.Equal(t, "analytics:hour:2026-07-30T14", BucketKey(Hour, ts).String())
	assert.Equal(t, "analytics:day:2026-07-30", BucketKey(Day, ts).String())
	assert.Equal(t, "analytics:month:2026-07", BucketKey(Month, ts).String())
}

func TestBucketKeyISOWeek(t *testing.T) {
	// 2026-07-30 is a Thursday in ISO week 31.
	ts := time.Date(2026, time.July, 30, 0, 0, 0, 0, time.UTC)
	year, week := ts.ISOWeek()
	want := Key{Kind: Week, Enc: fmt.Sprintf("%04d-W%02d", year, week)}
	assert.Equal(t, want, BucketKey(Week, ts))
}

func TestHalfOpenBoundary(t *testing.T) {
	hourStart := time.Date(2026, time.July, 30, 14, 0, 0, 0, time.UTC)
	hourEnd := End(Hour, hourStart)
	assert.Equal(t, time.Date(2026, time.July, 30, 15, 0, 0, 0, time.UTC), hourEnd)

	// A timestamp exactly at the boundary belongs to the NEXT bucket, not this one.
	assert.True(t, Contains(Hour, hourStart, hourStart))
	assert.False(t, Contains(Hour, hourStart, hourEnd))
	assert.True(t, Contains(Hour, hourEnd, hourEnd))
}

func TestDayBoundaryAcrossMonth(t *testing.T) {
	lastDayOfMonth := time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC)
	end := End(Day, lastDayOfMonth)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestWeekStartsOnMonday(t *testing.T) {
	// Sunday 2026-08-02 belongs to the week starting Monday 2026-07-27.
	sunday := time.Date(2026, time.August, 2, 12, 0, 0, 0, time.UTC)
	start := Start(Week, sunday)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, time.July, 27, 0, 0, 0, 0, time.UTC), start)
}

func TestIterateMinuteRange(t *testing.T) {
	from := time.Date(2026, time.July, 30, 14, 0, 30, 0, time.UTC)
	to := time.Date(2026, time.July, 30, 14, 2, 0, 0, time.UTC)
	keys := Iterate(Minute, from, to)
	assert.Len(t, keys, 2)
	assert.Equal(t, "analytics:minute:2026-07-30T14:00", keys[0].String())
	assert.Equal(t, "analytics:minute:2026-07-30T14:01", keys[1].String())
}

func TestIterateEmptyRange(t *testing.T) {
	ts := time.Now()
	assert.Nil(t, Iterate(Day, ts, ts))
}

func TestExpiryByKind(t *testing.T) {
	assert.Equal(t, time.Hour, Minute.Expiry())
	assert.Equal(t, 7*24*time.Hour, Hour.Expiry())
	assert.Equal(t, 90*24*time.Hour, Day.Expiry())
	assert.Equal(t, 365*24*time.Hour, Week.Expiry())
	assert.Equal(t, time.Duration(0), Month.Expiry())
}
