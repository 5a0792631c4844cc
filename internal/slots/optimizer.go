// Package slots searches provider calendars for the best open slots for a
// new appointment, balancing patient preferences, urgency, and the value of
// filling detected schedule gaps.
package slots

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Urgency shifts the ranking between preference match and earliest
// availability.
type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyUrgent  Urgency = "urgent"
)

// Preferences captures what the patient asked for. Zero values mean no
// preference.
type Preferences struct {
	PreferredDays []time.Weekday `json:"preferred_days,omitempty"`
	// Preferred time-of-day window in hours, e.g. 9-12 for mornings.
	WindowStartHour   int        `json:"window_start_hour,omitempty"`
	WindowEndHour     int        `json:"window_end_hour,omitempty"`
	PreferredProvider *uuid.UUID `json:"preferred_provider,omitempty"`
}

// CandidateSlot is one ranked option for placing the appointment.
type CandidateSlot struct {
	ProviderID uuid.UUID  `json:"provider_id"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Score      float64    `json:"score"`
	// FillsGapID is set when booking this slot would fill a detected gap.
	FillsGapID  *uuid.UUID `json:"fills_gap_id,omitempty"`
	GapPriority int        `json:"gap_priority,omitempty"`
}

// scheduleReader is the slice of schedule.Reader the optimizer needs.
type scheduleReader interface {
	EligibleProviders(ctx context.Context, appointmentTypeID string) ([]uuid.UUID, error)
	ProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*schedule.ProviderDay, error)
	BookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]schedule.AppointmentSnapshot, error)
}

// gapReader supplies open gaps; satisfied by *gaps.Store.
type gapReader interface {
	ListOpen(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]gaps.Gap, error)
}

// Optimizer enumerates and ranks open slots.
type Optimizer struct {
	reader  scheduleReader
	gaps    gapReader
	metrics *metrics.EngineMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewOptimizer creates a slot optimizer.
func NewOptimizer(reader scheduleReader, gapReader gapReader, m *metrics.EngineMetrics, logger *logging.Logger) *Optimizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Optimizer{reader: reader, gaps: gapReader, metrics: m, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	o.now = now
	return o
}

// FindOptimalSlots returns ranked candidate slots of at least
// durationMinutes across all eligible providers in [from, to). The ranking
// is deterministic: repeated calls against unchanged data return identical
// ordering. Urgent requests always rank the earliest valid slot first.
func (o *Optimizer) FindOptimalSlots(ctx context.Context, appointmentTypeID string, durationMinutes int, from, to time.Time, prefs Preferences, urgency Urgency) ([]CandidateSlot, error) {
	started := o.now()
	defer func() {
		o.metrics.ObserveSlotSearchLatency(time.Since(started).Seconds())
	}()

	if durationMinutes <= 0 {
		return nil, &schedule.ValidationError{Field: "duration_minutes", Reason: "duration must be positive"}
	}
	if !to.After(from) {
		return nil, &schedule.ValidationError{Field: "date_range", Reason: "range end must be after start"}
	}

	providers, err := o.reader.EligibleProviders(ctx, appointmentTypeID)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	if from.Before(now) {
		from = now
	}
	duration := time.Duration(durationMinutes) * time.Minute

	var candidates []CandidateSlot
	for _, providerID := range providers {
		openGaps, err := o.gaps.ListOpen(ctx, providerID, from, to)
		if err != nil {
			return nil, err
		}

		for day := schedule.DateOf(from); day.Before(to); day = day.AddDate(0, 0, 1) {
			providerDay, err := o.reader.ProviderDay(ctx, providerID, day)
			if err != nil {
				return nil, err
			}
			if !providerDay.Working() {
				continue
			}
			booked, err := o.reader.BookedAppointments(ctx, providerID, day)
			if err != nil {
				return nil, err
			}

			for _, free := range freeIntervals(providerDay, booked, from, to) {
				if free.end.Sub(free.start) < duration {
					continue
				}
				c := CandidateSlot{
					ProviderID: providerID,
					Start:      free.start,
					End:        free.start.Add(duration),
				}
				if g := coveringGap(openGaps, c.Start, c.End); g != nil {
					id := g.ID
					c.FillsGapID = &id
					c.GapPriority = g.Priority
				}
				c.Score = o.score(c, prefs, now)
				candidates = append(candidates, c)
			}
		}
	}

	sortCandidates(candidates, urgency)
	return candidates, nil
}

// score combines preference match and gap-fill value. Earliness is handled
// by the sort for urgent requests and by a small bonus here for routine
// ones.
func (o *Optimizer) score(c CandidateSlot, prefs Preferences, now time.Time) float64 {
	var score float64

	// Day-of-week preference: exact day scores full credit, the adjacent
	// day partial credit.
	if len(prefs.PreferredDays) > 0 {
		day := c.Start.UTC().Weekday()
		best := 0.0
		for _, want := range prefs.PreferredDays {
			switch weekdayDistance(day, want) {
			case 0:
				best = 3
			case 1:
				if best < 1.5 {
					best = 1.5
				}
			}
		}
		score += best
	}

	// Time-of-day window: inside scores full credit, within an hour of the
	// window partial credit.
	if prefs.WindowEndHour > prefs.WindowStartHour {
		hour := c.Start.UTC().Hour()
		switch {
		case hour >= prefs.WindowStartHour && hour < prefs.WindowEndHour:
			score += 2
		case hour == prefs.WindowStartHour-1 || hour == prefs.WindowEndHour:
			score += 1
		}
	}

	if prefs.PreferredProvider != nil && *prefs.PreferredProvider == c.ProviderID {
		score += 2
	}

	// Filling a high-priority gap beats consuming flexible open time.
	score += float64(c.GapPriority) * 0.5

	// Mild earliness bonus so routine requests still surface near-term
	// options among otherwise equal slots.
	daysOut := c.Start.Sub(now).Hours() / 24
	if bonus := 2 - daysOut*0.25; bonus > 0 {
		score += bonus
	}
	return score
}

func sortCandidates(candidates []CandidateSlot, urgency Urgency) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if urgency == UrgencyUrgent {
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		} else {
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
		}
		return a.ProviderID.String() < b.ProviderID.String()
	})
}

func weekdayDistance(a, b time.Weekday) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	if d > 3 {
		d = 7 - d
	}
	return d
}

type interval struct {
	start, end time.Time
}

// freeIntervals returns the uncovered portions of a provider day clipped to
// [from, to).
func freeIntervals(day *schedule.ProviderDay, booked []schedule.AppointmentSnapshot, from, to time.Time) []interval {
	var busy []interval
	for _, b := range schedule.MergeBlocks(day.Blocks) {
		busy = append(busy, interval{b.Start, b.End})
	}
	for _, a := range booked {
		if a.Status == schedule.StatusCancelled || !a.EndTime.After(a.StartTime) {
			continue
		}
		busy = append(busy, interval{a.StartTime, a.EndTime})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].start.Before(busy[j].start) })

	var free []interval
	cursor := day.WorkStart
	if cursor.Before(from) {
		cursor = from
	}
	limit := day.WorkEnd
	if limit.After(to) {
		limit = to
	}
	for _, iv := range busy {
		if iv.start.After(cursor) {
			end := iv.start
			if end.After(limit) {
				end = limit
			}
			if end.After(cursor) {
				free = append(free, interval{cursor, end})
			}
		}
		if iv.end.After(cursor) {
			cursor = iv.end
		}
		if !cursor.Before(limit) {
			return free
		}
	}
	if cursor.Before(limit) {
		free = append(free, interval{cursor, limit})
	}
	return free
}

func coveringGap(openGaps []gaps.Gap, start, end time.Time) *gaps.Gap {
	for i := range openGaps {
		g := &openGaps[i]
		if !start.Before(g.StartTime) && !end.After(g.EndTime) {
			return g
		}
	}
	return nil
}
