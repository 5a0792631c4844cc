// Package utilization aggregates booked, available, and gap time into
// per-provider utilization metrics and calendar-aligned trend series.
package utilization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Metric is the utilization summary for one provider/date. UtilizationRate
// is nil on non-working days: zero available minutes is "not applicable",
// not "0% utilized".
type Metric struct {
	ProviderID       uuid.UUID `json:"provider_id"`
	Date             time.Time `json:"date"`
	BookedMinutes    int       `json:"booked_minutes"`
	AvailableMinutes int       `json:"available_minutes"`
	GapMinutes       int       `json:"gap_minutes"`
	UtilizationRate  *float64  `json:"utilization_rate"`
}

// scheduleReader is the slice of schedule.Reader the calculator needs.
type scheduleReader interface {
	ProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*schedule.ProviderDay, error)
	BookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]schedule.AppointmentSnapshot, error)
}

// Calculator computes and persists utilization metrics.
type Calculator struct {
	reader scheduleReader
	store  *Store
	logger *logging.Logger
}

// NewCalculator creates a utilization calculator.
func NewCalculator(reader scheduleReader, store *Store, logger *logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Calculator{reader: reader, store: store, logger: logger}
}

// CalculateDaily computes the metric for one provider/date and upserts it,
// overwriting any previously computed row for the same key.
func (c *Calculator) CalculateDaily(ctx context.Context, providerID uuid.UUID, date time.Time) (*Metric, error) {
	day, err := c.reader.ProviderDay(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	booked, err := c.reader.BookedAppointments(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	metric := Compute(providerID, date, day, booked)
	if err := c.store.Upsert(ctx, metric); err != nil {
		return nil, fmt.Errorf("utilization: persist daily metric: %w", err)
	}
	return metric, nil
}

// Compute derives the utilization metric from snapshots. Pure: no I/O.
func Compute(providerID uuid.UUID, date time.Time, day *schedule.ProviderDay, booked []schedule.AppointmentSnapshot) *Metric {
	m := &Metric{
		ProviderID: providerID,
		Date:       schedule.DateOf(date),
	}

	for _, a := range booked {
		if a.Status == schedule.StatusCancelled {
			continue
		}
		if d := a.Duration(); d > 0 {
			m.BookedMinutes += int(d.Minutes())
		}
	}

	if day != nil {
		m.AvailableMinutes = day.WorkingMinutes()
	}

	m.GapMinutes = m.AvailableMinutes - m.BookedMinutes
	if m.GapMinutes < 0 {
		m.GapMinutes = 0
	}

	if m.AvailableMinutes > 0 {
		rate := float64(m.BookedMinutes) / float64(m.AvailableMinutes)
		if rate > 1 {
			rate = 1
		}
		if rate < 0 {
			rate = 0
		}
		m.UtilizationRate = &rate
	}
	return m
}
