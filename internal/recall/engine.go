package recall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/intents"
	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// intentEmitter writes side-effect requests to the outbox. Satisfied by
// *intents.Outbox.
type intentEmitter interface {
	Insert(ctx context.Context, intentType intents.Type, payload any) (uuid.UUID, error)
}

// Engine runs recall campaigns. It decides who to enroll and which steps
// are due; actual outreach delivery happens downstream of emitted intents.
type Engine struct {
	store   *Store
	outbox  intentEmitter
	metrics *metrics.EngineMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewEngine creates a recall engine.
func NewEngine(store *Store, outbox intentEmitter, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{store: store, outbox: outbox, metrics: m, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateSequence validates and persists a new sequence template.
func (e *Engine) CreateSequence(ctx context.Context, name string, appointmentTypes []string, daysSinceLastVisit int, steps []Step, maxAttempts int, stopOnSchedule bool) (*Sequence, error) {
	seq, err := NewSequence(name, appointmentTypes, daysSinceLastVisit, steps, maxAttempts, stopOnSchedule)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateSequence(ctx, seq); err != nil {
		return nil, err
	}
	e.logger.Info("recall sequence created", "sequence_id", seq.ID, "name", seq.Name, "steps", len(seq.Steps))
	return seq, nil
}

// FindCandidates returns lapsed patients eligible for the sequence.
func (e *Engine) FindCandidates(ctx context.Context, sequenceID uuid.UUID, limit int) ([]Candidate, error) {
	seq, err := e.store.GetSequence(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	return e.store.FindCandidates(ctx, seq, e.now(), limit)
}

// Enroll starts a patient on a sequence. Enrolling a patient who already has
// an active enrollment in the same sequence returns the existing enrollment
// unchanged.
func (e *Engine) Enroll(ctx context.Context, patientID, sequenceID uuid.UUID) (*Enrollment, error) {
	if _, err := e.store.GetSequence(ctx, sequenceID); err != nil {
		return nil, err
	}

	enrollment := &Enrollment{
		ID:                uuid.New(),
		PatientID:         patientID,
		SequenceID:        sequenceID,
		Status:            EnrollmentActive,
		CurrentStepNumber: 1,
		EnrolledAt:        e.now().UTC(),
	}

	inserted, err := e.store.InsertEnrollment(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := e.store.ActiveEnrollment(ctx, patientID, sequenceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		// Lost the race to an enrollment that already terminated; retry once.
		enrollment.ID = uuid.New()
		if inserted, err = e.store.InsertEnrollment(ctx, enrollment); err != nil || !inserted {
			return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "concurrent enrollment in progress"}
		}
	}
	e.logger.Info("patient enrolled in recall", "patient_id", patientID, "sequence_id", sequenceID, "enrollment_id", enrollment.ID)
	return enrollment, nil
}

// EnrollmentOutcome reports the result of one enrollment in a batch.
type EnrollmentOutcome struct {
	PatientID  uuid.UUID   `json:"patient_id"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
	// AlreadyEnrolled is set when the patient had an active enrollment and
	// the batch left it untouched.
	AlreadyEnrolled bool   `json:"already_enrolled,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BatchEnroll enrolls many patients; one failure never aborts the batch.
func (e *Engine) BatchEnroll(ctx context.Context, sequenceID uuid.UUID, patientIDs []uuid.UUID) ([]EnrollmentOutcome, error) {
	if _, err := e.store.GetSequence(ctx, sequenceID); err != nil {
		return nil, err
	}

	outcomes := make([]EnrollmentOutcome, 0, len(patientIDs))
	for _, patientID := range patientIDs {
		outcome := EnrollmentOutcome{PatientID: patientID}
		existing, err := e.store.ActiveEnrollment(ctx, patientID, sequenceID)
		switch {
		case err != nil:
			outcome.Error = err.Error()
		case existing != nil:
			outcome.Enrollment = existing
			outcome.AlreadyEnrolled = true
		default:
			enrollment, err := e.Enroll(ctx, patientID, sequenceID)
			if err != nil {
				outcome.Error = err.Error()
			} else {
				outcome.Enrollment = enrollment
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// PendingSteps returns the due outreach steps across all active enrollments.
func (e *Engine) PendingSteps(ctx context.Context, limit int) ([]PendingStep, error) {
	return e.store.PendingSteps(ctx, e.now(), limit)
}

// RecordStepExecution reports the outcome of one outreach attempt. On
// success the enrollment advances to the next step, or completes when the
// executed step was the last. On failure the attempt counter increments;
// exhausting the sequence's max attempts completes the enrollment with the
// failed flag set. Reporting against a terminal enrollment or a stale step
// is a conflict.
func (e *Engine) RecordStepExecution(ctx context.Context, enrollmentID uuid.UUID, stepNumber int, success bool) (*Enrollment, error) {
	enrollment, err := e.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status.Terminal() {
		return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "enrollment is already " + string(enrollment.Status)}
	}
	if enrollment.CurrentStepNumber != stepNumber {
		return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "step already advanced"}
	}
	seq, err := e.store.GetSequence(ctx, enrollment.SequenceID)
	if err != nil {
		return nil, err
	}
	step, ok := seq.Step(stepNumber)
	if !ok {
		return nil, &schedule.ValidationError{Field: "step_number", Reason: "sequence has no such step"}
	}

	executedAt := e.now().UTC()
	if err := e.store.InsertExecution(ctx, enrollmentID, stepNumber, enrollment.Attempts+1, success, executedAt); err != nil {
		return nil, err
	}

	if success {
		if stepNumber >= seq.LastStepNumber() {
			claimed, err := e.store.Complete(ctx, enrollmentID, stepNumber, false, executedAt)
			if err != nil {
				return nil, err
			}
			if !claimed {
				return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "step already advanced"}
			}
			e.metrics.ObserveRecallStep(string(step.Type), "completed")
			e.logger.Info("recall sequence completed", "enrollment_id", enrollmentID, "steps", seq.LastStepNumber())
		} else {
			claimed, err := e.store.AdvanceStep(ctx, enrollmentID, stepNumber, executedAt)
			if err != nil {
				return nil, err
			}
			if !claimed {
				return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "step already advanced"}
			}
			e.metrics.ObserveRecallStep(string(step.Type), "success")
		}
		return e.store.GetEnrollment(ctx, enrollmentID)
	}

	attempts, claimed, err := e.store.RecordFailure(ctx, enrollmentID, stepNumber, executedAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, &schedule.ConflictError{Entity: "enrollment", Reason: "step already advanced"}
	}
	e.metrics.ObserveRecallStep(string(step.Type), "failure")
	if attempts >= seq.MaxAttempts {
		if _, err := e.store.Complete(ctx, enrollmentID, stepNumber, true, executedAt); err != nil {
			return nil, err
		}
		e.metrics.ObserveRecallStep(string(step.Type), "exhausted")
		e.logger.Warn("recall enrollment exhausted max attempts",
			"enrollment_id", enrollmentID, "step", stepNumber, "attempts", attempts)
	}
	return e.store.GetEnrollment(ctx, enrollmentID)
}

// HandlePatientResponse processes a patient reply. An opt-out always
// terminates the enrollment. A scheduled response terminates it only when
// the sequence stops on scheduling; otherwise the campaign keeps running.
// Responses against terminal enrollments are ignored.
func (e *Engine) HandlePatientResponse(ctx context.Context, enrollmentID uuid.UUID, response Response) (*Enrollment, error) {
	enrollment, err := e.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status.Terminal() {
		return enrollment, nil
	}

	switch response {
	case ResponseOptedOut:
		if _, err := e.store.Terminate(ctx, enrollmentID, EnrollmentOptedOut); err != nil {
			return nil, err
		}
		e.logger.Info("recall enrollment opted out", "enrollment_id", enrollmentID)
	case ResponseScheduled:
		seq, err := e.store.GetSequence(ctx, enrollment.SequenceID)
		if err != nil {
			return nil, err
		}
		if !seq.StopOnSchedule {
			return enrollment, nil
		}
		if _, err := e.store.Terminate(ctx, enrollmentID, EnrollmentScheduled); err != nil {
			return nil, err
		}
		e.logger.Info("recall enrollment ended by scheduling", "enrollment_id", enrollmentID)
	default:
		return nil, &schedule.ValidationError{Field: "response", Reason: "unknown response " + string(response)}
	}
	return e.store.GetEnrollment(ctx, enrollmentID)
}

// DispatchDue emits a send_message intent for every due step that has not
// been dispatched yet. Each (enrollment, step) pair is emitted at most once;
// the actual outcome comes back later through RecordStepExecution.
func (e *Engine) DispatchDue(ctx context.Context, limit int) (int, error) {
	pending, err := e.store.PendingSteps(ctx, e.now(), limit)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, p := range pending {
		claimed, err := e.store.MarkDispatched(ctx, p.EnrollmentID, p.StepNumber)
		if err != nil {
			e.logger.Error("recall dispatch claim failed", "error", err, "enrollment_id", p.EnrollmentID)
			continue
		}
		if !claimed {
			continue
		}
		if _, err := e.outbox.Insert(ctx, intents.TypeSendMessage, intents.SendMessage{
			EnrollmentID: p.EnrollmentID,
			PatientID:    p.PatientID,
			SequenceID:   p.SequenceID,
			StepNumber:   p.StepNumber,
			Channel:      string(p.StepType),
			ContentRef:   p.ContentRef,
		}); err != nil {
			e.logger.Error("recall intent emit failed", "error", err, "enrollment_id", p.EnrollmentID, "step", p.StepNumber)
			continue
		}
		e.metrics.ObserveRecallStep(string(p.StepType), "dispatched")
		dispatched++
	}
	if dispatched > 0 {
		e.logger.Info("recall steps dispatched", "count", dispatched)
	}
	return dispatched, nil
}
