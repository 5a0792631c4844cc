// Package gaps detects and scores idle intervals in provider schedules.
package gaps

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a schedule gap. Elapsed gaps are expired,
// not deleted, so utilization analysis can still see them.
type Status string

const (
	StatusOpen    Status = "open"
	StatusFilled  Status = "filled"
	StatusExpired Status = "expired"
)

// Gap is a fillable idle interval in a provider's working day.
type Gap struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	Date            time.Time  `json:"date"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	// Priority ranks how valuable the gap is to fill, 1-10.
	Priority              int        `json:"priority"`
	Status                Status     `json:"status"`
	FilledByAppointmentID *uuid.UUID `json:"filled_by_appointment_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
