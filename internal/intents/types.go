// Package intents carries the side effects the engine wants performed but
// never performs itself. Recommendations and recall steps produce intents;
// the booking and messaging collaborators consume them from a queue.
package intents

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of side effect requested.
type Type string

const (
	TypeCreateAppointment Type = "create_appointment"
	TypeSendMessage       Type = "send_message"
)

// CreateAppointment asks the booking system to create an overbooked
// appointment in the target slot.
type CreateAppointment struct {
	RecommendationID    uuid.UUID `json:"recommendation_id"`
	ProviderID          uuid.UUID `json:"provider_id"`
	SlotStart           time.Time `json:"slot_start"`
	SlotEnd             time.Time `json:"slot_end"`
	TargetAppointmentID uuid.UUID `json:"target_appointment_id"`
	DecidedBy           string    `json:"decided_by"`
}

// SendMessage asks the delivery system to execute one recall outreach step.
type SendMessage struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	SequenceID   uuid.UUID `json:"sequence_id"`
	StepNumber   int       `json:"step_number"`
	Channel      string    `json:"channel"`
	ContentRef   string    `json:"content_ref"`
}
