// Package recall runs multi-step outreach campaigns that re-engage patients
// overdue for a follow-up visit. Sequences are reusable templates; an
// enrollment is one patient's progress through a sequence. The engine only
// decides which step is due; delivery happens through emitted intents.
package recall

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// StepType is the outreach channel for one step.
type StepType string

const (
	StepEmail  StepType = "email"
	StepSMS    StepType = "sms"
	StepCall   StepType = "call"
	StepLetter StepType = "letter"
)

func validStepType(t StepType) bool {
	switch t {
	case StepEmail, StepSMS, StepCall, StepLetter:
		return true
	}
	return false
}

// Step is one outreach touch within a sequence.
type Step struct {
	StepNumber int      `json:"step_number"`
	Type       StepType `json:"type"`
	// DaysFromStart is the offset from enrollment at which the step is due.
	DaysFromStart int    `json:"days_from_start"`
	ContentRef    string `json:"content_ref"`
}

// Sequence is a reusable outreach template. Step numbers are unique and
// contiguous from 1; this is enforced at construction, not at use.
type Sequence struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	AppointmentTypes   []string  `json:"appointment_types"`
	DaysSinceLastVisit int       `json:"days_since_last_visit"`
	Steps              []Step    `json:"steps"`
	MaxAttempts        int       `json:"max_attempts"`
	StopOnSchedule     bool      `json:"stop_on_schedule"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewSequence validates and builds a sequence template.
func NewSequence(name string, appointmentTypes []string, daysSinceLastVisit int, steps []Step, maxAttempts int, stopOnSchedule bool) (*Sequence, error) {
	if name == "" {
		return nil, &schedule.ValidationError{Field: "name", Reason: "sequence name is required"}
	}
	if len(appointmentTypes) == 0 {
		return nil, &schedule.ValidationError{Field: "appointment_types", Reason: "at least one appointment type is required"}
	}
	if daysSinceLastVisit <= 0 {
		return nil, &schedule.ValidationError{Field: "days_since_last_visit", Reason: "eligibility threshold must be positive"}
	}
	if maxAttempts <= 0 {
		return nil, &schedule.ValidationError{Field: "max_attempts", Reason: "max attempts must be positive"}
	}
	if len(steps) == 0 {
		return nil, &schedule.ValidationError{Field: "steps", Reason: "at least one step is required"}
	}

	prevOffset := -1
	for i, s := range steps {
		if s.StepNumber != i+1 {
			return nil, &schedule.ValidationError{Field: "steps", Reason: "step numbers must be unique and contiguous from 1"}
		}
		if !validStepType(s.Type) {
			return nil, &schedule.ValidationError{Field: "steps", Reason: "unknown step type " + string(s.Type)}
		}
		if s.DaysFromStart < 0 {
			return nil, &schedule.ValidationError{Field: "steps", Reason: "step offset cannot be negative"}
		}
		if s.DaysFromStart < prevOffset {
			return nil, &schedule.ValidationError{Field: "steps", Reason: "step offsets must not decrease"}
		}
		prevOffset = s.DaysFromStart
	}

	return &Sequence{
		ID:                 uuid.New(),
		Name:               name,
		AppointmentTypes:   appointmentTypes,
		DaysSinceLastVisit: daysSinceLastVisit,
		Steps:              steps,
		MaxAttempts:        maxAttempts,
		StopOnSchedule:     stopOnSchedule,
	}, nil
}

// Step returns the step with the given number.
func (s *Sequence) Step(number int) (Step, bool) {
	if number < 1 || number > len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[number-1], true
}

// LastStepNumber returns the highest step number in the sequence.
func (s *Sequence) LastStepNumber() int {
	return len(s.Steps)
}
