// Package noshow scores booked appointments for no-show risk. The model is a
// deterministic weighted combination of named features, not a trained model:
// identical inputs always produce identical probabilities, and every
// contribution is reported as a named factor so staff can see why a booking
// was flagged.
package noshow

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// RiskLevel buckets a probability against fixed thresholds.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Fixed risk-level thresholds. These are deliberately not configurable so
// that RiskLevel stays a pure function of probability.
const (
	thresholdMedium   = 0.15
	thresholdHigh     = 0.35
	thresholdCritical = 0.60
)

// LevelFor maps a probability to its risk level.
func LevelFor(probability float64) RiskLevel {
	switch {
	case probability < thresholdMedium:
		return RiskLow
	case probability < thresholdHigh:
		return RiskMedium
	case probability < thresholdCritical:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Actionable reports whether the level is high enough to justify an
// overbooking recommendation.
func (l RiskLevel) Actionable() bool {
	return l == RiskHigh || l == RiskCritical
}

// Factor is one named, signed contribution to a prediction.
type Factor struct {
	Name   string  `json:"factor"`
	Weight float64 `json:"weight"`
}

// Prediction is the current no-show assessment for one appointment.
type Prediction struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Probability   float64   `json:"probability"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Factors       []Factor  `json:"contributing_factors"`
	// LowConfidence is set when the patient had no usable history and the
	// model fell back to the population prior.
	LowConfidence bool      `json:"low_confidence"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Weights holds the hand-tuned model coefficients. Defaults are fixed in
// code; organizations may override individual coefficients via config JSON.
type Weights struct {
	Base             float64 `json:"base"`
	PopulationPrior  float64 `json:"population_prior"`
	NoShowRate       float64 `json:"no_show_rate"`
	RecentNoShows    float64 `json:"recent_no_shows"`
	CancellationRate float64 `json:"cancellation_rate"`
	ShortLeadTime    float64 `json:"short_lead_time"`
	LongLeadTime     float64 `json:"long_lead_time"`
	MondayBooking    float64 `json:"monday_booking"`
	EarlyMorning     float64 `json:"early_morning"`
	Telehealth       float64 `json:"telehealth"`
	BadWeather       float64 `json:"bad_weather"`
}

// DefaultWeights returns the standard coefficients.
func DefaultWeights() Weights {
	return Weights{
		Base:             0.10,
		PopulationPrior:  0.12,
		NoShowRate:       0.45,
		RecentNoShows:    0.15,
		CancellationRate: 0.10,
		ShortLeadTime:    0.08,
		LongLeadTime:     0.05,
		MondayBooking:    0.03,
		EarlyMorning:     0.04,
		Telehealth:       0.02,
		BadWeather:       0.05,
	}
}

// WeightsFromJSON overlays coefficients from a JSON blob onto the defaults.
// An empty blob returns the defaults unchanged.
func WeightsFromJSON(raw string) (Weights, error) {
	w := DefaultWeights()
	if raw == "" {
		return w, nil
	}
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Weights{}, fmt.Errorf("noshow: parse weights: %w", err)
	}
	return w, nil
}

// Model computes no-show predictions.
type Model struct {
	weights Weights
	now     func() time.Time
}

// NewModel creates a model with the given coefficients.
func NewModel(weights Weights) *Model {
	return &Model{weights: weights, now: time.Now}
}

// WithClock overrides the timestamp source.
func (m *Model) WithClock(now func() time.Time) *Model {
	m.now = now
	return m
}

// Predict scores one appointment. A nil or empty history is not an error:
// the model falls back to the population prior and flags the prediction as
// low-confidence. A snapshot with missing or inverted times is rejected.
func (m *Model) Predict(appt schedule.AppointmentSnapshot, history *schedule.PatientHistory, signals Signals) (*Prediction, error) {
	if err := appt.Validate(); err != nil {
		return nil, err
	}

	hist, ctxf, structural := FeaturesFor(appt, history, signals)
	w := m.weights

	var (
		probability float64
		factors     []Factor
	)
	lowConfidence := hist.TotalVisits == 0

	if lowConfidence {
		probability = w.PopulationPrior
		factors = append(factors, Factor{Name: "population_prior", Weight: w.PopulationPrior})
	} else {
		probability = w.Base
		factors = append(factors, Factor{Name: "baseline", Weight: w.Base})

		if rate := hist.NoShowRate(); rate > 0 {
			c := w.NoShowRate * rate
			probability += c
			factors = append(factors, Factor{Name: "prior_no_show_rate", Weight: c})
		}
		if hist.RecentNoShows > 0 {
			recent := float64(hist.RecentNoShows)
			if recent > 3 {
				recent = 3
			}
			c := w.RecentNoShows * recent / 3
			probability += c
			factors = append(factors, Factor{Name: "recent_no_shows", Weight: c})
		}
		if rate := hist.CancellationRate(); rate > 0 {
			c := w.CancellationRate * rate
			probability += c
			factors = append(factors, Factor{Name: "cancellation_rate", Weight: c})
		}
	}

	switch {
	case ctxf.LeadTimeDays >= 0 && ctxf.LeadTimeDays <= 1:
		probability += w.ShortLeadTime
		factors = append(factors, Factor{Name: "short_lead_time", Weight: w.ShortLeadTime})
	case ctxf.LeadTimeDays >= 30:
		probability -= w.LongLeadTime
		factors = append(factors, Factor{Name: "long_lead_time", Weight: -w.LongLeadTime})
	}
	if ctxf.DayOfWeek == time.Monday {
		probability += w.MondayBooking
		factors = append(factors, Factor{Name: "monday_booking", Weight: w.MondayBooking})
	}
	if ctxf.HourOfDay < 10 {
		probability += w.EarlyMorning
		factors = append(factors, Factor{Name: "early_morning", Weight: w.EarlyMorning})
	}
	if structural.IsTelehealth {
		probability += w.Telehealth
		factors = append(factors, Factor{Name: "telehealth", Weight: w.Telehealth})
	}
	if ctxf.BadWeather {
		probability += w.BadWeather
		factors = append(factors, Factor{Name: "bad_weather", Weight: w.BadWeather})
	}

	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}

	// Strongest contribution first; name breaks ties so the ordering is
	// stable across runs.
	sort.SliceStable(factors, func(i, j int) bool {
		ai, aj := abs(factors[i].Weight), abs(factors[j].Weight)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Name < factors[j].Name
	})

	return &Prediction{
		AppointmentID: appt.ID,
		Probability:   probability,
		RiskLevel:     LevelFor(probability),
		Factors:       factors,
		LowConfidence: lowConfidence,
		ComputedAt:    m.now().UTC(),
	}, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
