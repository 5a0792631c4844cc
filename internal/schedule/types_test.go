package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func TestAppointmentSnapshotValidate(t *testing.T) {
	valid := AppointmentSnapshot{
		ID:        uuid.New(),
		StartTime: ts(9, 0),
		EndTime:   ts(9, 30),
	}

	tests := []struct {
		name    string
		mutate  func(*AppointmentSnapshot)
		wantErr bool
	}{
		{name: "valid snapshot", mutate: func(*AppointmentSnapshot) {}},
		{name: "missing id", mutate: func(a *AppointmentSnapshot) { a.ID = uuid.Nil }, wantErr: true},
		{name: "missing start", mutate: func(a *AppointmentSnapshot) { a.StartTime = time.Time{} }, wantErr: true},
		{name: "missing end", mutate: func(a *AppointmentSnapshot) { a.EndTime = time.Time{} }, wantErr: true},
		{name: "inverted times", mutate: func(a *AppointmentSnapshot) { a.EndTime = a.StartTime.Add(-time.Hour) }, wantErr: true},
		{name: "zero duration", mutate: func(a *AppointmentSnapshot) { a.EndTime = a.StartTime }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMergeBlocks(t *testing.T) {
	providerID := uuid.New()
	block := func(startH, startM, endH, endM int) ScheduleBlock {
		return ScheduleBlock{ProviderID: providerID, Start: ts(startH, startM), End: ts(endH, endM)}
	}

	tests := []struct {
		name   string
		blocks []ScheduleBlock
		want   []ScheduleBlock
	}{
		{
			name:   "empty input",
			blocks: nil,
			want:   nil,
		},
		{
			name:   "drops non-positive intervals",
			blocks: []ScheduleBlock{block(12, 0, 12, 0), block(13, 0, 12, 0)},
			want:   nil,
		},
		{
			name:   "overlapping blocks coalesce",
			blocks: []ScheduleBlock{block(12, 0, 13, 0), block(12, 30, 14, 0)},
			want:   []ScheduleBlock{block(12, 0, 14, 0)},
		},
		{
			name:   "touching blocks coalesce",
			blocks: []ScheduleBlock{block(12, 0, 13, 0), block(13, 0, 14, 0)},
			want:   []ScheduleBlock{block(12, 0, 14, 0)},
		},
		{
			name:   "unsorted disjoint blocks come back ordered",
			blocks: []ScheduleBlock{block(15, 0, 16, 0), block(10, 0, 11, 0)},
			want:   []ScheduleBlock{block(10, 0, 11, 0), block(15, 0, 16, 0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeBlocks(tt.blocks))
		})
	}
}

func TestProviderDayWorkingMinutes(t *testing.T) {
	day := ProviderDay{
		ProviderID: uuid.New(),
		Date:       DateOf(ts(0, 0)),
		WorkStart:  ts(9, 0),
		WorkEnd:    ts(17, 0),
	}
	assert.Equal(t, 480, day.WorkingMinutes())

	// Lunch block carves out an hour; a block outside the window is clipped.
	day.Blocks = []ScheduleBlock{
		{Start: ts(12, 0), End: ts(13, 0)},
		{Start: ts(16, 30), End: ts(18, 0)},
	}
	assert.Equal(t, 390, day.WorkingMinutes())

	nonWorking := ProviderDay{ProviderID: day.ProviderID, Date: day.Date}
	assert.False(t, nonWorking.Working())
	assert.Equal(t, 0, nonWorking.WorkingMinutes())
}

func TestDateOf(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	// 23:30 EST on Jan 5 is already Jan 6 in UTC.
	late := time.Date(2026, 1, 5, 23, 30, 0, 0, est)
	assert.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), DateOf(late))
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), DateOf(ts(14, 45)))
}
