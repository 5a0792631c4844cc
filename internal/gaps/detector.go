package gaps

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// DefaultMinFillable is the smallest idle interval worth reporting as a gap.
const DefaultMinFillable = 10 * time.Minute

// FillRateProvider returns the historical fill rate (0-1) for a
// provider/hour-of-day combination.
type FillRateProvider interface {
	FillRate(ctx context.Context, providerID uuid.UUID, hourOfDay int) (float64, error)
}

// Detector scans provider days for fillable idle intervals.
type Detector struct {
	minFillable time.Duration
	fillRates   FillRateProvider
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewDetector creates a gap detector. minFillable <= 0 uses the default.
func NewDetector(minFillable time.Duration, fillRates FillRateProvider, m *metrics.EngineMetrics, logger *logging.Logger) *Detector {
	if minFillable <= 0 {
		minFillable = DefaultMinFillable
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{
		minFillable: minFillable,
		fillRates:   fillRates,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect walks the provider's working window and returns every uncovered
// interval of at least the minimum fillable duration. Intervals before "now"
// are never reported; an interval straddling now is trimmed to start at now.
// Zero- and negative-duration inputs are skipped.
func (d *Detector) Detect(ctx context.Context, day *schedule.ProviderDay, booked []schedule.AppointmentSnapshot) ([]Gap, error) {
	if day == nil {
		return nil, &schedule.ValidationError{Field: "day", Reason: "provider day is required"}
	}
	if !day.Working() {
		return nil, nil
	}

	now := d.now().UTC()
	busy := busyIntervals(day, booked)

	var gaps []Gap
	cursor := day.WorkStart
	appendGap := func(start, end time.Time) error {
		if start.Before(now) {
			start = now
		}
		if !end.After(start) || end.Sub(start) < d.minFillable {
			return nil
		}
		g, err := d.buildGap(ctx, day, start, end, now)
		if err != nil {
			return err
		}
		gaps = append(gaps, g)
		return nil
	}

	for _, iv := range busy {
		if iv.start.After(cursor) {
			if err := appendGap(cursor, minTime(iv.start, day.WorkEnd)); err != nil {
				return nil, err
			}
		}
		if iv.end.After(cursor) {
			cursor = iv.end
		}
		if !cursor.Before(day.WorkEnd) {
			break
		}
	}
	if cursor.Before(day.WorkEnd) {
		if err := appendGap(cursor, day.WorkEnd); err != nil {
			return nil, err
		}
	}

	d.metrics.ObserveGapsDetected(len(gaps))
	return gaps, nil
}

func (d *Detector) buildGap(ctx context.Context, day *schedule.ProviderDay, start, end, now time.Time) (Gap, error) {
	fillRate := 0.5
	if d.fillRates != nil {
		rate, err := d.fillRates.FillRate(ctx, day.ProviderID, start.UTC().Hour())
		if err != nil {
			// Missing fill-rate history degrades to a neutral rate.
			d.logger.Warn("gaps: fill rate unavailable, using neutral",
				"provider_id", day.ProviderID, "error", err)
		} else {
			fillRate = rate
		}
	}

	duration := end.Sub(start)
	return Gap{
		ID:              uuid.New(),
		ProviderID:      day.ProviderID,
		Date:            schedule.DateOf(day.Date),
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: int(duration.Minutes()),
		Priority:        Priority(duration, start.Sub(now), fillRate),
		Status:          StatusOpen,
	}, nil
}

type interval struct {
	start, end time.Time
}

// busyIntervals merges schedule blocks and non-cancelled bookings into a
// sorted, coalesced set of covered intervals.
func busyIntervals(day *schedule.ProviderDay, booked []schedule.AppointmentSnapshot) []interval {
	var ivs []interval
	for _, b := range schedule.MergeBlocks(day.Blocks) {
		ivs = append(ivs, interval{start: b.Start, end: b.End})
	}
	for _, a := range booked {
		if a.Status == schedule.StatusCancelled {
			continue
		}
		if !a.EndTime.After(a.StartTime) {
			continue
		}
		ivs = append(ivs, interval{start: a.StartTime, end: a.EndTime})
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })

	var merged []interval
	for _, iv := range ivs {
		if len(merged) > 0 && !iv.start.After(merged[len(merged)-1].end) {
			if iv.end.After(merged[len(merged)-1].end) {
				merged[len(merged)-1].end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// Refresh recomputes the open gaps for a provider/date and replaces the
// stored set. Filled and expired gaps are untouched.
func (d *Detector) Refresh(ctx context.Context, store *Store, day *schedule.ProviderDay, booked []schedule.AppointmentSnapshot) ([]Gap, error) {
	detected, err := d.Detect(ctx, day, booked)
	if err != nil {
		return nil, err
	}
	if err := store.ReplaceOpenForDay(ctx, day.ProviderID, day.Date, detected); err != nil {
		return nil, fmt.Errorf("gaps: refresh: %w", err)
	}
	return detected, nil
}
