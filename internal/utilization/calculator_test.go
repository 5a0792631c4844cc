package utilization

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

func ts(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func TestCompute(t *testing.T) {
	providerID := uuid.New()
	day := &schedule.ProviderDay{
		ProviderID: providerID,
		Date:       schedule.DateOf(ts(0, 0)),
		WorkStart:  ts(9, 0),
		WorkEnd:    ts(17, 0),
	}
	appt := func(start, end time.Time, status schedule.AppointmentStatus) schedule.AppointmentSnapshot {
		return schedule.AppointmentSnapshot{ID: uuid.New(), StartTime: start, EndTime: end, Status: status}
	}

	t.Run("working day with bookings", func(t *testing.T) {
		booked := []schedule.AppointmentSnapshot{
			appt(ts(9, 0), ts(10, 0), schedule.StatusBooked),
			appt(ts(11, 0), ts(12, 30), schedule.StatusCompleted),
		}
		m := Compute(providerID, ts(0, 0), day, booked)
		assert.Equal(t, 150, m.BookedMinutes)
		assert.Equal(t, 480, m.AvailableMinutes)
		assert.Equal(t, 330, m.GapMinutes)
		require.NotNil(t, m.UtilizationRate)
		assert.InDelta(t, 0.3125, *m.UtilizationRate, 1e-9)
	})

	t.Run("cancelled bookings excluded", func(t *testing.T) {
		booked := []schedule.AppointmentSnapshot{
			appt(ts(9, 0), ts(17, 0), schedule.StatusCancelled),
		}
		m := Compute(providerID, ts(0, 0), day, booked)
		assert.Equal(t, 0, m.BookedMinutes)
		assert.Equal(t, 480, m.GapMinutes)
	})

	t.Run("non-working day has nil rate", func(t *testing.T) {
		m := Compute(providerID, ts(0, 0), nil, nil)
		assert.Equal(t, 0, m.AvailableMinutes)
		assert.Nil(t, m.UtilizationRate)
	})

	t.Run("overbooked day clamps to one", func(t *testing.T) {
		booked := []schedule.AppointmentSnapshot{
			appt(ts(8, 0), ts(18, 0), schedule.StatusBooked),
		}
		m := Compute(providerID, ts(0, 0), day, booked)
		assert.Equal(t, 600, m.BookedMinutes)
		assert.Equal(t, 0, m.GapMinutes)
		require.NotNil(t, m.UtilizationRate)
		assert.Equal(t, 1.0, *m.UtilizationRate)
	})

	t.Run("date truncated to utc day", func(t *testing.T) {
		m := Compute(providerID, ts(14, 45), day, nil)
		assert.Equal(t, schedule.DateOf(ts(0, 0)), m.Date)
	})
}

func TestBucketStart(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		in     time.Time
		want   time.Time
	}{
		{
			name:   "day truncates to utc midnight",
			period: PeriodDay,
			in:     time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC),
			want:   time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "week aligns to monday",
			period: PeriodWeek,
			in:     time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC), // Wednesday
			want:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "sunday belongs to the preceding monday",
			period: PeriodWeek,
			in:     time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC), // Sunday
			want:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "monday is its own week start",
			period: PeriodWeek,
			in:     time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month aligns to the first",
			period: PeriodMonth,
			in:     time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketStart(tt.period, tt.in))
		})
	}
}

func TestTrendValidation(t *testing.T) {
	c := NewCalculator(nil, nil, nil)

	_, err := c.Trend(context.Background(), uuid.New(), PeriodDay, 0)
	require.Error(t, err)
	assert.True(t, schedule.IsValidation(err))

	_, err = c.Trend(context.Background(), uuid.New(), Period("fortnight"), 3)
	require.Error(t, err)
	assert.True(t, schedule.IsValidation(err))
}

func TestBucketStepping(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday.AddDate(0, 0, 7), nextBucket(PeriodWeek, monday))
	assert.Equal(t, monday.AddDate(0, 0, -7), prevBucket(PeriodWeek, monday))

	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), nextBucket(PeriodMonth, feb))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), prevBucket(PeriodMonth, feb))
}
