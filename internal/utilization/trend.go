package utilization

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// Period selects the trend bucket size. Buckets align to calendar units
// (UTC day, ISO week, calendar month), never rolling windows.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Trend returns the last count buckets of utilization for a provider, oldest
// first. Each bucket sums the stored daily metrics inside it; the bucket
// rate is nil when the bucket had no available minutes.
func (c *Calculator) Trend(ctx context.Context, providerID uuid.UUID, period Period, count int) ([]Metric, error) {
	if count <= 0 {
		return nil, &schedule.ValidationError{Field: "count", Reason: "count must be positive"}
	}
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth:
	default:
		return nil, &schedule.ValidationError{Field: "period", Reason: "period must be day, week, or month"}
	}

	now := time.Now().UTC()
	current := BucketStart(period, now)
	first := current
	for i := 1; i < count; i++ {
		first = prevBucket(period, first)
	}

	daily, err := c.store.Range(ctx, providerID, first, nextBucket(period, current))
	if err != nil {
		return nil, err
	}

	buckets := make([]Metric, 0, count)
	start := first
	for i := 0; i < count; i++ {
		end := nextBucket(period, start)
		bucket := Metric{ProviderID: providerID, Date: start}
		for _, m := range daily {
			if m.Date.Before(start) || !m.Date.Before(end) {
				continue
			}
			bucket.BookedMinutes += m.BookedMinutes
			bucket.AvailableMinutes += m.AvailableMinutes
			bucket.GapMinutes += m.GapMinutes
		}
		if bucket.AvailableMinutes > 0 {
			rate := float64(bucket.BookedMinutes) / float64(bucket.AvailableMinutes)
			if rate > 1 {
				rate = 1
			}
			bucket.UtilizationRate = &rate
		}
		buckets = append(buckets, bucket)
		start = end
	}
	return buckets, nil
}

// BucketStart returns the calendar-aligned start of the bucket containing t.
// Weeks start on ISO Monday.
func BucketStart(period Period, t time.Time) time.Time {
	day := schedule.DateOf(t)
	switch period {
	case PeriodWeek:
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1))
	case PeriodMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func nextBucket(period Period, start time.Time) time.Time {
	switch period {
	case PeriodWeek:
		return start.AddDate(0, 0, 7)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

func prevBucket(period Period, start time.Time) time.Time {
	switch period {
	case PeriodWeek:
		return start.AddDate(0, 0, -7)
	case PeriodMonth:
		return start.AddDate(0, -1, 0)
	default:
		return start.AddDate(0, 0, -1)
	}
}
