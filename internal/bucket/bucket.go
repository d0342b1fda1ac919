// Copyright 2025 James Ross
package bucket

import (
	"fmt"
	"time"
)

// Kind identifies the granularity a metric is rolled up at.
type Kind int

const (
	Minute Kind = iota
	Hour
	Day
	Week
	Month
)

func (k Kind) String() string {
	switch k {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "unknown"
	}
}

// Kinds lists every bucket granularity, in the order the aggregation engine
// writes to them for a single event.
var Kinds = []Kind{Minute, Hour, Day, Week, Month}

// Duration returns the nominal length of one bucket of this kind. Week and
// Month are calendar-based and are only approximate here; callers needing
// exact boundaries use Start/End instead.
func (k Kind) Duration() time.Duration {
	switch k {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Expiry returns the TTL applied to a Redis key of this bucket kind, or zero
// for no expiry (Month buckets are retained indefinitely).
func (k Kind) Expiry() time.Duration {
	switch k {
	case Minute:
		return time.Hour
	case Hour:
		return 7 * 24 * time.Hour
	case Day:
		return 90 * 24 * time.Hour
	case Week:
		return 365 * 24 * time.Hour
	case Month:
		return 0
	default:
		return 0
	}
}

// Key identifies one bucket: a kind plus the deterministic string that
// encodes its start instant (in UTC).
type Key struct {
	Kind Kind
	Enc  string
}

// RedisKeyPrefix returns the namespace segment used when building aggregation
// keys, e.g. "analytics:minute".
func (k Kind) RedisKeyPrefix() string {
	return "analytics:" + k.String()
}

// BucketKey computes the deterministic encoding for the bucket containing t,
// truncated to UTC. Week buckets use ISO-8601 week numbering (time.ISOWeek),
// not %U/%W, so week boundaries are unambiguous and locale-independent.
func BucketKey(k Kind, t time.Time) Key {
	t = t.UTC()
	var enc string
	switch k {
	case Minute:
		enc = t.Format("2006-01-02T15:04")
	case Hour:
		enc = t.Format("2006-01-02T15")
	case Day:
		enc = t.Format("2006-01-02")
	case Week:
		year, week := t.ISOWeek()
		enc = fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		enc = t.Format("2006-01")
	}
	return Key{Kind: k, Enc: enc}
}

// String renders the full Redis-safe key string for this bucket, e.g.
// "analytics:hour:2026-07-30T14".
func (bk Key) String() string {
	return bk.Kind.RedisKeyPrefix() + ":" + bk.Enc
}

// Start returns the half-open interval's start instant for the bucket
// containing t. End returns the first instant NOT in the bucket: an event
// timestamped exactly at End belongs to the next bucket, matching the
// [start, end) semantics callers rely on at every boundary.
func Start(k Kind, t time.Time) time.Time {
	t = t.UTC()
	switch k {
	case Minute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// ISO weeks start on Monday; time.Weekday has Sunday=0.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// End returns the exclusive upper bound of the bucket containing t.
func End(k Kind, t time.Time) time.Time {
	start := Start(k, t)
	switch k {
	case Minute:
		return start.Add(time.Minute)
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Contains reports whether t falls within [Start(k,t), End(k,t)) — trivially
// true for t itself, but the half-open contract matters when comparing a
// bucket's interval against an externally supplied timestamp at the
// boundary (spec boundary-behavior test: t == End belongs to the NEXT
// bucket, never this one).
func Contains(k Kind, bucketRepresentative, candidate time.Time) bool {
	start := Start(k, bucketRepresentative)
	end := End(k, bucketRepresentative)
	c := candidate.UTC()
	return !c.Before(start) && c.Before(end)
}

// Iterate walks every bucket key of kind k whose interval intersects
// [from, to), in ascending order. The caller is responsible for bounding
// the range: Iterate does not cap the number of buckets produced.
func Iterate(k Kind, from, to time.Time) []Key {
	if !to.After(from) {
		return nil
	}
	var keys []Key
	cur := Start(k, from)
	end := to.UTC()
	for cur.Before(end) {
		keys = append(keys, BucketKey(k, cur))
		cur = End(k, cur)
	}
	return keys
}
