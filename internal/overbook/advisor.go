package overbook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/intents"
	"github.com/clinicpulse/schedule-engine/internal/noshow"
	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// How far ahead recommendations look, and how close a gap must sit to the
// at-risk slot to count as structurally absorbing a second patient.
const (
	recommendationHorizon = 7 * 24 * time.Hour
	gapAdjacency          = 15 * time.Minute
	quickVisitMax         = 15 * time.Minute
)

// Policy bounds how aggressively a provider may be overbooked.
type Policy struct {
	// RecommendationTTL is how long a pending recommendation stays
	// decidable before it expires.
	RecommendationTTL time.Duration
	// MaxConcurrentOverbooks caps overbooks per slot.
	MaxConcurrentOverbooks int
}

// DefaultPolicy returns the standard overbooking policy.
func DefaultPolicy() Policy {
	return Policy{
		RecommendationTTL:      48 * time.Hour,
		MaxConcurrentOverbooks: 1,
	}
}

// scheduleReader is the slice of schedule.Reader the advisor needs.
type scheduleReader interface {
	UpcomingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]schedule.AppointmentSnapshot, error)
}

// predictionReader supplies current predictions; satisfied by *noshow.Store.
type predictionReader interface {
	ForAppointments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*noshow.Prediction, error)
}

// gapReader supplies open gaps; satisfied by *gaps.Store.
type gapReader interface {
	ListOpen(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]gaps.Gap, error)
}

// intentEmitter records accepted recommendations for the booking
// collaborator; satisfied by *intents.Outbox.
type intentEmitter interface {
	Insert(ctx context.Context, intentType intents.Type, payload any) (uuid.UUID, error)
}

// Advisor generates and decides overbooking recommendations.
type Advisor struct {
	reader      scheduleReader
	predictions predictionReader
	gaps        gapReader
	store       *Store
	emitter     intentEmitter
	policy      Policy
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewAdvisor creates an overbooking advisor.
func NewAdvisor(reader scheduleReader, predictions predictionReader, gapReader gapReader, store *Store, emitter intentEmitter, policy Policy, m *metrics.EngineMetrics, logger *logging.Logger) *Advisor {
	if policy.RecommendationTTL <= 0 {
		policy.RecommendationTTL = DefaultPolicy().RecommendationTTL
	}
	if policy.MaxConcurrentOverbooks <= 0 {
		policy.MaxConcurrentOverbooks = DefaultPolicy().MaxConcurrentOverbooks
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Advisor{
		reader:      reader,
		predictions: predictions,
		gaps:        gapReader,
		store:       store,
		emitter:     emitter,
		policy:      policy,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source.
func (a *Advisor) WithClock(now func() time.Time) *Advisor {
	a.now = now
	return a
}

// GenerateRecommendations scans the provider's upcoming week for
// appointments whose current prediction is actionable and whose slot can
// structurally absorb a second patient. Each eligible slot gets exactly one
// outstanding recommendation; regeneration supersedes rather than
// duplicates.
func (a *Advisor) GenerateRecommendations(ctx context.Context, providerID uuid.UUID) ([]Recommendation, error) {
	now := a.now().UTC()
	horizon := now.Add(recommendationHorizon)

	upcoming, err := a.reader.UpcomingAppointments(ctx, providerID, now, horizon)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(upcoming))
	for _, appt := range upcoming {
		ids = append(ids, appt.ID)
	}
	predictions, err := a.predictions.ForAppointments(ctx, ids)
	if err != nil {
		return nil, err
	}

	openGaps, err := a.gaps.ListOpen(ctx, providerID, now, horizon)
	if err != nil {
		return nil, err
	}

	var generated []Recommendation
	for _, appt := range upcoming {
		p, ok := predictions[appt.ID]
		if !ok || !p.RiskLevel.Actionable() {
			continue
		}
		if !a.slotCanAbsorb(appt, upcoming, openGaps) {
			continue
		}

		// Only accepted overbooks count against the cap; an outstanding
		// pending recommendation is superseded below, not preserved.
		accepted, err := a.store.CountAcceptedForSlot(ctx, providerID, appt.StartTime)
		if err != nil {
			return nil, err
		}
		if accepted >= a.policy.MaxConcurrentOverbooks {
			continue
		}

		rec := Recommendation{
			ProviderID:          providerID,
			SlotStart:           appt.StartTime,
			SlotEnd:             appt.EndTime,
			TargetAppointmentID: appt.ID,
			RiskProbability:     p.Probability,
			RiskLevel:           p.RiskLevel,
			Rationale:           buildRationale(p),
			Status:              StatusPending,
			RecommendedAt:       now,
			ExpiresAt:           now.Add(a.policy.RecommendationTTL),
		}
		if err := a.store.Supersede(ctx, &rec); err != nil {
			return nil, err
		}
		a.metrics.ObserveRecommendation("generated")
		generated = append(generated, rec)
	}

	if len(generated) > 0 {
		a.logger.Info("overbook: recommendations generated",
			"provider_id", providerID, "count", len(generated))
	}
	return generated, nil
}

// slotCanAbsorb reports whether the at-risk slot has structural room for a
// second patient: an open gap adjacent to or overlapping the slot, or a
// quick existing booking in the same slot that leaves the provider slack.
func (a *Advisor) slotCanAbsorb(appt schedule.AppointmentSnapshot, all []schedule.AppointmentSnapshot, openGaps []gaps.Gap) bool {
	for _, g := range openGaps {
		if g.EndTime.After(appt.StartTime.Add(-gapAdjacency)) && g.StartTime.Before(appt.EndTime.Add(gapAdjacency)) {
			return true
		}
	}
	for _, other := range all {
		if other.ID == appt.ID {
			continue
		}
		overlaps := other.StartTime.Before(appt.EndTime) && other.EndTime.After(appt.StartTime)
		if overlaps && other.Duration() <= quickVisitMax {
			return true
		}
	}
	return false
}

// ApplyDecision resolves a pending recommendation. Deciding an
// already-decided recommendation returns a ConflictError and changes
// nothing. On acceptance the advisor emits a create-appointment intent; it
// never books the appointment itself.
func (a *Advisor) ApplyDecision(ctx context.Context, id uuid.UUID, accepted bool, decidedBy, declineReason string) (*Recommendation, error) {
	if decidedBy == "" {
		return nil, &schedule.ValidationError{Field: "decided_by", Reason: "deciding actor is required"}
	}

	rec, err := a.store.Decide(ctx, id, accepted, decidedBy, declineReason)
	if err != nil {
		return nil, err
	}

	if accepted {
		_, err := a.emitter.Insert(ctx, intents.TypeCreateAppointment, intents.CreateAppointment{
			RecommendationID:    rec.ID,
			ProviderID:          rec.ProviderID,
			SlotStart:           rec.SlotStart,
			SlotEnd:             rec.SlotEnd,
			TargetAppointmentID: rec.TargetAppointmentID,
			DecidedBy:           decidedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("overbook: emit booking intent: %w", err)
		}
		a.metrics.ObserveRecommendation("accepted")
	} else {
		a.metrics.ObserveRecommendation("declined")
	}
	return rec, nil
}

// ExpireStale transitions pending recommendations past their TTL to
// expired and returns the count.
func (a *Advisor) ExpireStale(ctx context.Context) (int64, error) {
	count, err := a.store.ExpireStale(ctx, a.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		a.metrics.ObserveRecommendation("expired")
		a.logger.Info("overbook: stale recommendations expired", "count", count)
	}
	return count, nil
}
