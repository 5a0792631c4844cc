package slots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

type fakeReader struct {
	providers []uuid.UUID
	days      map[string]*schedule.ProviderDay
	booked    map[string][]schedule.AppointmentSnapshot
}

func dayKey(providerID uuid.UUID, date time.Time) string {
	return providerID.String() + "|" + schedule.DateOf(date).Format(time.DateOnly)
}

func (f *fakeReader) EligibleProviders(context.Context, string) ([]uuid.UUID, error) {
	return f.providers, nil
}

func (f *fakeReader) ProviderDay(_ context.Context, providerID uuid.UUID, date time.Time) (*schedule.ProviderDay, error) {
	if d, ok := f.days[dayKey(providerID, date)]; ok {
		return d, nil
	}
	return &schedule.ProviderDay{ProviderID: providerID, Date: schedule.DateOf(date)}, nil
}

func (f *fakeReader) BookedAppointments(_ context.Context, providerID uuid.UUID, date time.Time) ([]schedule.AppointmentSnapshot, error) {
	return f.booked[dayKey(providerID, date)], nil
}

type fakeGaps struct {
	open []gaps.Gap
}

func (f *fakeGaps) ListOpen(context.Context, uuid.UUID, time.Time, time.Time) ([]gaps.Gap, error) {
	return f.open, nil
}

func at(day time.Time, hour int) time.Time {
	return day.Add(time.Duration(hour) * time.Hour)
}

func singleProviderFixture(providerID uuid.UUID, day time.Time) *fakeReader {
	return &fakeReader{
		providers: []uuid.UUID{providerID},
		days: map[string]*schedule.ProviderDay{
			dayKey(providerID, day): {
				ProviderID: providerID,
				Date:       day,
				WorkStart:  at(day, 9),
				WorkEnd:    at(day, 17),
			},
		},
		booked: map[string][]schedule.AppointmentSnapshot{
			dayKey(providerID, day): {
				{ID: uuid.New(), StartTime: at(day, 10), EndTime: at(day, 12), Status: schedule.StatusBooked},
			},
		},
	}
}

func TestFindOptimalSlotsValidation(t *testing.T) {
	o := NewOptimizer(&fakeReader{}, &fakeGaps{}, nil, nil)
	from := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	_, err := o.FindOptimalSlots(context.Background(), "consult", 0, from, from.AddDate(0, 0, 1), Preferences{}, UrgencyRoutine)
	require.Error(t, err)
	assert.True(t, schedule.IsValidation(err))

	_, err = o.FindOptimalSlots(context.Background(), "consult", 30, from, from, Preferences{}, UrgencyRoutine)
	require.Error(t, err)
	assert.True(t, schedule.IsValidation(err))
}

func TestFindOptimalSlotsEnumeratesFreeTime(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	now := at(day, 8)

	o := NewOptimizer(singleProviderFixture(providerID, day), &fakeGaps{}, nil, nil).
		WithClock(func() time.Time { return now })

	got, err := o.FindOptimalSlots(context.Background(), "consult", 60, day, day.AddDate(0, 0, 1), Preferences{}, UrgencyUrgent)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Urgent ranking is earliest first: 9-10 free hour, then the afternoon.
	assert.Equal(t, at(day, 9), got[0].Start)
	assert.Equal(t, at(day, 10), got[0].End)
	assert.Equal(t, at(day, 12), got[1].Start)
	assert.Equal(t, at(day, 13), got[1].End)
	assert.Equal(t, providerID, got[0].ProviderID)
}

func TestFindOptimalSlotsIsDeterministic(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	now := at(day, 8)

	o := NewOptimizer(singleProviderFixture(providerID, day), &fakeGaps{}, nil, nil).
		WithClock(func() time.Time { return now })

	first, err := o.FindOptimalSlots(context.Background(), "consult", 30, day, day.AddDate(0, 0, 1), Preferences{}, UrgencyRoutine)
	require.NoError(t, err)
	second, err := o.FindOptimalSlots(context.Background(), "consult", 30, day, day.AddDate(0, 0, 1), Preferences{}, UrgencyRoutine)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindOptimalSlotsGapFillOutranksOpenTime(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	now := at(day, 8)

	gapID := uuid.New()
	openGaps := &fakeGaps{open: []gaps.Gap{{
		ID:         gapID,
		ProviderID: providerID,
		StartTime:  at(day, 12),
		EndTime:    at(day, 13),
		Priority:   9,
		Status:     gaps.StatusOpen,
	}}}

	o := NewOptimizer(singleProviderFixture(providerID, day), openGaps, nil, nil).
		WithClock(func() time.Time { return now })

	got, err := o.FindOptimalSlots(context.Background(), "consult", 60, day, day.AddDate(0, 0, 1), Preferences{}, UrgencyRoutine)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// The slot covering the high-priority gap wins under routine urgency
	// even though it is later in the day.
	assert.Equal(t, at(day, 12), got[0].Start)
	require.NotNil(t, got[0].FillsGapID)
	assert.Equal(t, gapID, *got[0].FillsGapID)
	assert.Equal(t, 9, got[0].GapPriority)
	assert.Nil(t, got[1].FillsGapID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestFindOptimalSlotsUrgentPrefersEarliest(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	now := at(day, 8)

	openGaps := &fakeGaps{open: []gaps.Gap{{
		ID:         uuid.New(),
		ProviderID: providerID,
		StartTime:  at(day, 12),
		EndTime:    at(day, 13),
		Priority:   10,
		Status:     gaps.StatusOpen,
	}}}

	o := NewOptimizer(singleProviderFixture(providerID, day), openGaps, nil, nil).
		WithClock(func() time.Time { return now })

	got, err := o.FindOptimalSlots(context.Background(), "consult", 60, day, day.AddDate(0, 0, 1), Preferences{}, UrgencyUrgent)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, at(day, 9), got[0].Start)
}

func TestScorePreferences(t *testing.T) {
	o := NewOptimizer(&fakeReader{}, &fakeGaps{}, nil, nil)
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC) // Tuesday
	now := at(day, 8)
	providerID := uuid.New()
	slot := CandidateSlot{ProviderID: providerID, Start: at(day, 10), End: at(day, 10).Add(30 * time.Minute)}

	base := o.score(slot, Preferences{}, now)

	withDay := o.score(slot, Preferences{PreferredDays: []time.Weekday{time.Tuesday}}, now)
	assert.InDelta(t, 3, withDay-base, 1e-9)

	adjacentDay := o.score(slot, Preferences{PreferredDays: []time.Weekday{time.Wednesday}}, now)
	assert.InDelta(t, 1.5, adjacentDay-base, 1e-9)

	inWindow := o.score(slot, Preferences{WindowStartHour: 9, WindowEndHour: 12}, now)
	assert.InDelta(t, 2, inWindow-base, 1e-9)

	nearWindow := o.score(slot, Preferences{WindowStartHour: 11, WindowEndHour: 14}, now)
	assert.InDelta(t, 1, nearWindow-base, 1e-9)

	withProvider := o.score(slot, Preferences{PreferredProvider: &providerID}, now)
	assert.InDelta(t, 2, withProvider-base, 1e-9)

	gapSlot := slot
	gapSlot.GapPriority = 8
	assert.InDelta(t, 4, o.score(gapSlot, Preferences{}, now)-base, 1e-9)
}

func TestFreeIntervalsClipsToRange(t *testing.T) {
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	providerDay := &schedule.ProviderDay{
		ProviderID: uuid.New(),
		Date:       day,
		WorkStart:  at(day, 9),
		WorkEnd:    at(day, 17),
		Blocks:     []schedule.ScheduleBlock{{Start: at(day, 12), End: at(day, 13)}},
	}
	booked := []schedule.AppointmentSnapshot{
		{ID: uuid.New(), StartTime: at(day, 9), EndTime: at(day, 10), Status: schedule.StatusBooked},
	}

	free := freeIntervals(providerDay, booked, at(day, 9).Add(30*time.Minute), at(day, 15))
	require.Len(t, free, 2)
	assert.Equal(t, at(day, 10), free[0].start)
	assert.Equal(t, at(day, 12), free[0].end)
	assert.Equal(t, at(day, 13), free[1].start)
	assert.Equal(t, at(day, 15), free[1].end)
}

func TestTodaySuggestions(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	gapID := uuid.New()

	openGaps := &fakeGaps{open: []gaps.Gap{{
		ID:              gapID,
		ProviderID:      providerID,
		StartTime:       at(day, 14),
		EndTime:         at(day, 15),
		DurationMinutes: 60,
		Priority:        7,
		Status:          gaps.StatusOpen,
	}}}

	o := NewOptimizer(&fakeReader{}, openGaps, nil, nil).
		WithClock(func() time.Time { return at(day, 8) })

	got, err := o.TodaySuggestions(context.Background(), providerID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, gapID, got[0].GapID)
	assert.Equal(t, 7, got[0].Priority)
	assert.Equal(t, "60 min open at 14:00, fill priority 7/10", got[0].Description)
}

func TestSuggestScheduleImprovements(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)

	openGaps := &fakeGaps{open: []gaps.Gap{
		{ID: uuid.New(), ProviderID: providerID, StartTime: at(day, 10), EndTime: at(day, 11), DurationMinutes: 60},
		{ID: uuid.New(), ProviderID: providerID, StartTime: at(day, 14), EndTime: at(day, 15), DurationMinutes: 60},
		// A lone gap the next day is not fragmentation.
		{ID: uuid.New(), ProviderID: providerID, StartTime: at(nextDay, 10), EndTime: at(nextDay, 11), DurationMinutes: 60},
	}}

	o := NewOptimizer(&fakeReader{}, openGaps, nil, nil)

	got, err := o.SuggestScheduleImprovements(context.Background(), providerID, day, day.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day, got[0].Date)
	assert.Equal(t, 120, got[0].IdleMinutes)
	assert.Len(t, got[0].GapIDs, 2)

	_, err = o.SuggestScheduleImprovements(context.Background(), providerID, day, day)
	require.Error(t, err)
	assert.True(t, schedule.IsValidation(err))
}
