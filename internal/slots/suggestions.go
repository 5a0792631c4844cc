package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
)

// Suggestion is a read-only pointer to schedule time worth acting on today.
type Suggestion struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	GapID       uuid.UUID `json:"gap_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Priority    int       `json:"priority"`
	Description string    `json:"description"`
}

// Improvement is a what-if observation about a provider's schedule over a
// range. It mutates nothing; it only reports what a rearrangement would
// recover.
type Improvement struct {
	ProviderID     uuid.UUID   `json:"provider_id"`
	Date           time.Time   `json:"date"`
	GapIDs         []uuid.UUID `json:"gap_ids"`
	IdleMinutes    int         `json:"idle_minutes"`
	Description    string      `json:"description"`
}

// TodaySuggestions re-runs gap analysis for the rest of today and returns
// the open gaps worth filling, highest priority first.
func (o *Optimizer) TodaySuggestions(ctx context.Context, providerID uuid.UUID) ([]Suggestion, error) {
	now := o.now().UTC()
	endOfDay := schedule.DateOf(now).AddDate(0, 0, 1)

	openGaps, err := o.gaps.ListOpen(ctx, providerID, now, endOfDay)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(openGaps))
	for _, g := range openGaps {
		suggestions = append(suggestions, Suggestion{
			ProviderID:  g.ProviderID,
			GapID:       g.ID,
			Start:       g.StartTime,
			End:         g.EndTime,
			Priority:    g.Priority,
			Description: fmt.Sprintf("%d min open at %s, fill priority %d/10", g.DurationMinutes, g.StartTime.Format("15:04"), g.Priority),
		})
	}
	return suggestions, nil
}

// SuggestScheduleImprovements reports, per day in the range, how much idle
// time a provider has across detected open gaps and which gaps could be
// consolidated. It is a pure analysis over already-detected gaps.
func (o *Optimizer) SuggestScheduleImprovements(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Improvement, error) {
	if !to.After(from) {
		return nil, &schedule.ValidationError{Field: "date_range", Reason: "range end must be after start"}
	}

	openGaps, err := o.gaps.ListOpen(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	byDay := map[time.Time][]gaps.Gap{}
	for _, g := range openGaps {
		day := schedule.DateOf(g.StartTime)
		byDay[day] = append(byDay[day], g)
	}

	var improvements []Improvement
	for day := schedule.DateOf(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		dayGaps := byDay[day]
		if len(dayGaps) < 2 {
			continue
		}
		idle := 0
		ids := make([]uuid.UUID, 0, len(dayGaps))
		for _, g := range dayGaps {
			idle += g.DurationMinutes
			ids = append(ids, g.ID)
		}
		improvements = append(improvements, Improvement{
			ProviderID:  providerID,
			Date:        day,
			GapIDs:      ids,
			IdleMinutes: idle,
			Description: fmt.Sprintf("%d fragmented gaps totaling %d min on %s; consolidating bookings would free a contiguous block", len(dayGaps), idle, day.Format(time.DateOnly)),
		})
	}
	return improvements, nil
}
