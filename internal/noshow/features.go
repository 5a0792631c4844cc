package noshow

import (
	"time"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// HistoricalFeatures captures the patient's past attendance behavior.
type HistoricalFeatures struct {
	TotalVisits   int
	NoShows       int
	Cancellations int
	RecentNoShows int
}

// NoShowRate returns the fraction of resolved visits the patient missed.
func (f HistoricalFeatures) NoShowRate() float64 {
	if f.TotalVisits == 0 {
		return 0
	}
	return float64(f.NoShows) / float64(f.TotalVisits)
}

// CancellationRate returns the fraction of resolved visits the patient cancelled.
func (f HistoricalFeatures) CancellationRate() float64 {
	if f.TotalVisits == 0 {
		return 0
	}
	return float64(f.Cancellations) / float64(f.TotalVisits)
}

// ContextualFeatures captures circumstances of this particular booking.
type ContextualFeatures struct {
	// LeadTimeDays is the number of days between booking and appointment.
	// Negative when unknown.
	LeadTimeDays float64
	DayOfWeek    time.Weekday
	HourOfDay    int
	BadWeather   bool
}

// StructuralFeatures captures properties of the appointment itself.
type StructuralFeatures struct {
	AppointmentTypeID string
	DurationMinutes   int
	IsTelehealth      bool
}

// Signals carries contextual inputs the caller already knows. Lead time is
// derived from the snapshot's BookedAt when present.
type Signals struct {
	BadWeather bool
}

// FeaturesFor derives the tagged feature structs from engine inputs.
func FeaturesFor(appt schedule.AppointmentSnapshot, history *schedule.PatientHistory, signals Signals) (HistoricalFeatures, ContextualFeatures, StructuralFeatures) {
	var hist HistoricalFeatures
	if history != nil {
		hist = HistoricalFeatures{
			TotalVisits:   history.TotalVisits(),
			NoShows:       history.NoShows,
			Cancellations: history.Cancellations,
			RecentNoShows: history.RecentNoShows,
		}
	}

	leadDays := -1.0
	if !appt.BookedAt.IsZero() && appt.StartTime.After(appt.BookedAt) {
		leadDays = appt.StartTime.Sub(appt.BookedAt).Hours() / 24
	}
	ctxf := ContextualFeatures{
		LeadTimeDays: leadDays,
		DayOfWeek:    appt.StartTime.UTC().Weekday(),
		HourOfDay:    appt.StartTime.UTC().Hour(),
		BadWeather:   signals.BadWeather,
	}

	structural := StructuralFeatures{
		AppointmentTypeID: appt.AppointmentTypeID,
		DurationMinutes:   int(appt.Duration().Minutes()),
		IsTelehealth:      appt.IsTelehealth,
	}
	return hist, ctxf, structural
}
