// Package schedule holds the shared scheduling domain types consumed by the
// decision-support engine: immutable appointment snapshots, provider working
// days, and read access to patient/provider history. The engine never mutates
// these inputs.
package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle status of a booked appointment as seen
// by the engine. The engine only reads these; transitions happen upstream.
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// AppointmentSnapshot is a read-only view of a booked appointment.
type AppointmentSnapshot struct {
	ID                uuid.UUID         `json:"id"`
	PatientID         uuid.UUID         `json:"patient_id"`
	ProviderID        uuid.UUID         `json:"provider_id"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	Status            AppointmentStatus `json:"status"`
	AppointmentTypeID string            `json:"appointment_type_id"`
	IsTelehealth      bool              `json:"is_telehealth"`
	// BookedAt is when the booking was made; zero when unknown.
	BookedAt time.Time `json:"booked_at,omitzero"`
}

// Duration returns the scheduled length of the appointment.
func (a AppointmentSnapshot) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Validate checks that the snapshot carries usable times.
func (a AppointmentSnapshot) Validate() error {
	if a.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "appointment id is required"}
	}
	if a.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "appointment start time is required"}
	}
	if a.EndTime.IsZero() {
		return &ValidationError{Field: "end_time", Reason: "appointment end time is required"}
	}
	if !a.EndTime.After(a.StartTime) {
		return &ValidationError{Field: "end_time", Reason: "appointment must end after it starts"}
	}
	return nil
}

// ScheduleBlock is a non-bookable interval in a provider's day (lunch,
// admin time, out-of-office).
type ScheduleBlock struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `json:"reason,omitempty"`
}

// ProviderDay describes a provider's configured working window for one date,
// together with any blocks carved out of it.
type ProviderDay struct {
	ProviderID uuid.UUID       `json:"provider_id"`
	Date       time.Time       `json:"date"`
	WorkStart  time.Time       `json:"work_start"`
	WorkEnd    time.Time       `json:"work_end"`
	Blocks     []ScheduleBlock `json:"blocks,omitempty"`
}

// Working reports whether the provider has a working window on this date.
func (d ProviderDay) Working() bool {
	return !d.WorkStart.IsZero() && d.WorkEnd.After(d.WorkStart)
}

// WorkingMinutes returns the configured working minutes net of blocks.
func (d ProviderDay) WorkingMinutes() int {
	if !d.Working() {
		return 0
	}
	total := int(d.WorkEnd.Sub(d.WorkStart).Minutes())
	for _, b := range MergeBlocks(d.Blocks) {
		start, end := b.Start, b.End
		if start.Before(d.WorkStart) {
			start = d.WorkStart
		}
		if end.After(d.WorkEnd) {
			end = d.WorkEnd
		}
		if end.After(start) {
			total -= int(end.Sub(start).Minutes())
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// MergeBlocks sorts blocks by start and coalesces overlapping or touching
// intervals. Non-positive intervals are dropped.
func MergeBlocks(blocks []ScheduleBlock) []ScheduleBlock {
	var valid []ScheduleBlock
	for _, b := range blocks {
		if b.End.After(b.Start) {
			valid = append(valid, b)
		}
	}
	if len(valid) <= 1 {
		return valid
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	merged := []ScheduleBlock{valid[0]}
	for _, b := range valid[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.End) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
