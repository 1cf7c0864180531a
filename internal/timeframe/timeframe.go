package timeframe

import (
	"fmt"
	"time"
)

// BucketSize is the granularity of trend points.
type BucketSize string

const (
	BucketSizeHour BucketSize = "hour"
	BucketSizeDay  BucketSize = "day"
)

// RangeLabel names a resolved range.
type RangeLabel string

const (
	RangeLabelToday       RangeLabel = "today"
	RangeLabelYesterday   RangeLabel = "yesterday"
	RangeLabelLast24Hours RangeLabel = "last24hours"
	RangeLabelLast7Days   RangeLabel = "last7days"
	RangeLabelLast30Days  RangeLabel = "last30days"
	RangeLabelThisMonth   RangeLabel = "thismonth"
	RangeLabelLastMonth   RangeLabel = "lastmonth"
	RangeLabelCustom      RangeLabel = "custom"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Range is a closed time window [Start, End] in one location.
type Range struct {
	Start time.Time
	End   time.Time
	Label RangeLabel
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Bucket is hourly for windows within one local calendar date or of at most
// 24 hours, and daily otherwise. The calendar check keeps 25-hour DST days
// hourly.
func (r Range) Bucket() BucketSize {
	if r.Duration() <= 24*time.Hour || sameDate(r.Start, r.End.In(r.Start.Location())) {
		return BucketSizeHour
	}
	return BucketSizeDay
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// BucketKey returns the trend key of t: "H:00" for hourly ranges and
// "YYYY-MM-DD" for daily ones, both in the range's location.
func (r Range) BucketKey(t time.Time) string {
	local := t.In(r.Start.Location())
	if r.Bucket() == BucketSizeHour {
		return fmt.Sprintf("%d:00", local.Hour())
	}
	return local.Format("2006-01-02")
}

// BucketKeys lists every bucket of the range in ascending label order: hours
// of the day by number for hourly ranges and dates for daily ones. A rolling
// window that crosses midnight yields each hour of the day once.
func (r Range) BucketKeys() []string {
	if r.End.Before(r.Start) {
		return []string{}
	}

	start := r.Start
	if r.Bucket() == BucketSizeHour {
		var present [24]bool
		t := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), 0, 0, 0, start.Location())
		for ; !t.After(r.End); t = t.Add(time.Hour) {
			present[t.Hour()] = true
		}
		keys := make([]string, 0, 24)
		for hour, ok := range present {
			if ok {
				keys = append(keys, fmt.Sprintf("%d:00", hour))
			}
		}
		return keys
	}

	var keys []string
	for t := startOfDay(start); !t.After(r.End); t = t.AddDate(0, 0, 1) {
		keys = append(keys, r.BucketKey(t))
	}
	return keys
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
