// Package overbook recommends safe double-booking of slots whose existing
// appointment is predicted to no-show, and tracks each recommendation's
// decision lifecycle.
package overbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/noshow"
)

// Status tracks the recommendation lifecycle. ACCEPTED, DECLINED, and
// EXPIRED are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusExpired
}

// Recommendation proposes overbooking one slot against an at-risk booking.
type Recommendation struct {
	ID                  uuid.UUID        `json:"id"`
	ProviderID          uuid.UUID        `json:"provider_id"`
	SlotStart           time.Time        `json:"slot_start"`
	SlotEnd             time.Time        `json:"slot_end"`
	TargetAppointmentID uuid.UUID        `json:"target_appointment_id"`
	RiskProbability     float64          `json:"risk_probability"`
	RiskLevel           noshow.RiskLevel `json:"risk_level"`
	Rationale           string           `json:"rationale"`
	Status              Status           `json:"status"`
	RecommendedAt       time.Time        `json:"recommended_at"`
	ExpiresAt           time.Time        `json:"expires_at"`
	DecidedAt           *time.Time       `json:"decided_at,omitempty"`
	DecidedBy           string           `json:"decided_by,omitempty"`
	DeclineReason       string           `json:"decline_reason,omitempty"`
}

// buildRationale summarizes the strongest risk factors for staff.
func buildRationale(p *noshow.Prediction) string {
	top := p.Factors
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, 0, len(top))
	for _, f := range top {
		parts = append(parts, fmt.Sprintf("%s (%+.2f)", f.Name, f.Weight))
	}
	return fmt.Sprintf("%.0f%% no-show risk: %s", p.Probability*100, strings.Join(parts, ", "))
}
