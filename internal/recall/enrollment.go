package recall

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus tracks a patient's progress through a sequence. ACTIVE is
// the only non-terminal status.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentOptedOut  EnrollmentStatus = "opted_out"
	EnrollmentScheduled EnrollmentStatus = "scheduled"
)

// Terminal reports whether the enrollment admits no further step execution.
func (s EnrollmentStatus) Terminal() bool {
	return s != EnrollmentActive
}

// Enrollment is one patient's participation in a recall sequence.
type Enrollment struct {
	ID                uuid.UUID        `json:"id"`
	PatientID         uuid.UUID        `json:"patient_id"`
	SequenceID        uuid.UUID        `json:"sequence_id"`
	Status            EnrollmentStatus `json:"status"`
	CurrentStepNumber int              `json:"current_step_number"`
	// Attempts counts failed executions of the current step.
	Attempts int `json:"attempts"`
	// Failed marks a COMPLETED enrollment that exhausted max attempts,
	// distinct from completing all steps without a response.
	Failed             bool       `json:"failed"`
	EnrolledAt         time.Time  `json:"enrolled_at"`
	LastStepExecutedAt *time.Time `json:"last_step_executed_at,omitempty"`
	// LastDispatchedStep guards intent emission: a step is dispatched to
	// the delivery queue at most once.
	LastDispatchedStep int       `json:"-"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Response is a patient reply that pre-empts further steps.
type Response string

const (
	ResponseScheduled Response = "scheduled"
	ResponseOptedOut  Response = "opted_out"
)

// Candidate is a lapsed patient eligible for enrollment.
type Candidate struct {
	PatientID uuid.UUID `json:"patient_id"`
	LastVisit time.Time `json:"last_visit"`
}

// PendingStep is one due outreach step awaiting execution. This is the work
// queue the delivery collaborator consumes.
type PendingStep struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	SequenceID   uuid.UUID `json:"sequence_id"`
	StepNumber   int       `json:"step_number"`
	StepType     StepType  `json:"step_type"`
	ContentRef   string    `json:"content_ref"`
	DueAt        time.Time `json:"due_at"`
}
