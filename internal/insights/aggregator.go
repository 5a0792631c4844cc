// Package insights merges the outputs of the other engine modules into one
// ranked list of things worth a scheduler's attention. It is read-only; it
// never mutates the state it reports on.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/recall"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/internal/slots"
	"github.com/clinicpulse/schedule-engine/internal/utilization"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Type identifies what kind of observation an insight carries.
type Type string

const (
	TypeOpenGapTime        Type = "open_gap_time"
	TypeLowUtilization     Type = "low_utilization"
	TypeFragmentedSchedule Type = "fragmented_schedule"
	TypeRecallBacklog      Type = "recall_backlog"
)

// Severity ranks how urgently an insight deserves action.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	default:
		return 1
	}
}

// Insight is one ranked, actionable observation.
type Insight struct {
	Type        Type      `json:"type"`
	Severity    Severity  `json:"severity"`
	Score       float64   `json:"score"`
	ProviderID  uuid.UUID `json:"provider_id,omitzero"`
	Date        time.Time `json:"date,omitzero"`
	Description string    `json:"description"`
	// EntityIDs reference the gaps or enrollments behind the insight.
	EntityIDs []uuid.UUID `json:"entity_ids,omitempty"`
}

const (
	lowUtilizationWarning  = 0.5
	lowUtilizationCritical = 0.3
	recallOverdue          = 72 * time.Hour
)

type gapSource interface {
	ListOpen(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]gaps.Gap, error)
}

type utilizationSource interface {
	Range(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]utilization.Metric, error)
}

type recallSource interface {
	PendingSteps(ctx context.Context, asOf time.Time, limit int) ([]recall.PendingStep, error)
}

type improvementSource interface {
	SuggestScheduleImprovements(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slots.Improvement, error)
}

// Aggregator builds the ranked insight feed.
type Aggregator struct {
	gaps         gapSource
	utilization  utilizationSource
	recall       recallSource
	improvements improvementSource
	metrics      *metrics.EngineMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewAggregator creates an insight aggregator.
func NewAggregator(gapSrc gapSource, utilSrc utilizationSource, recallSrc recallSource, improvementSrc improvementSource, m *metrics.EngineMetrics, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{
		gaps:         gapSrc,
		utilization:  utilSrc,
		recall:       recallSrc,
		improvements: improvementSrc,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Generate assembles ranked insights for one provider over [from, to). The
// recall backlog insight is organization-wide and carries a zero provider
// id. Ordering is deterministic: severity, then score, then type.
func (a *Aggregator) Generate(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Insight, error) {
	if !to.After(from) {
		return nil, &schedule.ValidationError{Field: "date_range", Reason: "range end must be after start"}
	}

	var result []Insight
	for _, build := range []func(context.Context, uuid.UUID, time.Time, time.Time) (*Insight, error){
		a.gapInsight,
		a.utilizationInsight,
		a.recallInsight,
	} {
		ins, err := build(ctx, providerID, from, to)
		if err != nil {
			return nil, err
		}
		if ins != nil {
			result = append(result, *ins)
		}
	}

	fragmented, err := a.fragmentationInsights(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	result = append(result, fragmented...)

	sort.SliceStable(result, func(i, j int) bool {
		if sa, sb := severityRank(result[i].Severity), severityRank(result[j].Severity); sa != sb {
			return sa > sb
		}
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Type < result[j].Type
	})

	for _, ins := range result {
		a.metrics.ObserveInsight(string(ins.Type))
	}
	return result, nil
}

// gapInsight summarizes open gap time; severity follows the highest gap
// priority in range.
func (a *Aggregator) gapInsight(ctx context.Context, providerID uuid.UUID, from, to time.Time) (*Insight, error) {
	openGaps, err := a.gaps.ListOpen(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	if len(openGaps) == 0 {
		return nil, nil
	}

	totalMinutes, maxPriority := 0, 0
	ids := make([]uuid.UUID, 0, len(openGaps))
	for _, g := range openGaps {
		totalMinutes += g.DurationMinutes
		if g.Priority > maxPriority {
			maxPriority = g.Priority
		}
		ids = append(ids, g.ID)
	}

	severity := SeverityInfo
	switch {
	case maxPriority >= 8:
		severity = SeverityCritical
	case maxPriority >= 5:
		severity = SeverityWarning
	}
	return &Insight{
		Type:        TypeOpenGapTime,
		Severity:    severity,
		Score:       float64(totalMinutes) / 15,
		ProviderID:  providerID,
		Description: fmt.Sprintf("%d open gaps totaling %d min, top fill priority %d/10", len(openGaps), totalMinutes, maxPriority),
		EntityIDs:   ids,
	}, nil
}

// utilizationInsight flags a provider whose average utilization over the
// range falls below the warning threshold. Days with no available time do
// not count against the average.
func (a *Aggregator) utilizationInsight(ctx context.Context, providerID uuid.UUID, from, to time.Time) (*Insight, error) {
	daily, err := a.utilization.Range(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	sum, n := 0.0, 0
	for _, m := range daily {
		if m.UtilizationRate == nil {
			continue
		}
		sum += *m.UtilizationRate
		n++
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	if avg >= lowUtilizationWarning {
		return nil, nil
	}

	severity := SeverityWarning
	if avg < lowUtilizationCritical {
		severity = SeverityCritical
	}
	return &Insight{
		Type:        TypeLowUtilization,
		Severity:    severity,
		Score:       (lowUtilizationWarning - avg) * 20,
		ProviderID:  providerID,
		Description: fmt.Sprintf("average utilization %.0f%% across %d working days", avg*100, n),
	}, nil
}

// recallInsight reports due recall outreach that has sat unexecuted. It is
// organization-wide because enrollments belong to patients, not providers.
func (a *Aggregator) recallInsight(ctx context.Context, _ uuid.UUID, _, _ time.Time) (*Insight, error) {
	now := a.now().UTC()
	pending, err := a.recall.PendingSteps(ctx, now, 500)
	if err != nil {
		return nil, err
	}

	overdue := 0
	ids := make([]uuid.UUID, 0, len(pending))
	for _, p := range pending {
		if now.Sub(p.DueAt) >= recallOverdue {
			overdue++
			ids = append(ids, p.EnrollmentID)
		}
	}
	if overdue == 0 {
		return nil, nil
	}

	severity := SeverityWarning
	if overdue >= 25 {
		severity = SeverityCritical
	}
	return &Insight{
		Type:        TypeRecallBacklog,
		Severity:    severity,
		Score:       float64(overdue),
		Description: fmt.Sprintf("%d recall steps overdue by 3+ days", overdue),
		EntityIDs:   ids,
	}, nil
}

// fragmentationInsights surfaces days whose open time is split into pieces
// too small to book.
func (a *Aggregator) fragmentationInsights(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Insight, error) {
	improvements, err := a.improvements.SuggestScheduleImprovements(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	result := make([]Insight, 0, len(improvements))
	for _, imp := range improvements {
		result = append(result, Insight{
			Type:        TypeFragmentedSchedule,
			Severity:    SeverityInfo,
			Score:       float64(imp.IdleMinutes) / 30,
			ProviderID:  imp.ProviderID,
			Date:        imp.Date,
			Description: imp.Description,
			EntityIDs:   imp.GapIDs,
		})
	}
	return result, nil
}
