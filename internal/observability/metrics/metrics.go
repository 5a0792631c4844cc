// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for engine operations.
type EngineMetrics struct {
	predictionsTotal      *prometheus.CounterVec
	gapsDetectedTotal     prometheus.Counter
	recommendationsTotal  *prometheus.CounterVec
	recallStepsTotal      *prometheus.CounterVec
	insightsTotal         *prometheus.CounterVec
	slotSearchLatency     prometheus.Histogram
	intentsPublishedTotal *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "noshow",
			Name:      "predictions_total",
			Help:      "Total no-show predictions computed",
		}, []string{"risk_level", "low_confidence"}),
		gapsDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "gaps",
			Name:      "detected_total",
			Help:      "Total schedule gaps detected",
		}),
		recommendationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "overbook",
			Name:      "recommendations_total",
			Help:      "Overbooking recommendation lifecycle events",
		}, []string{"event"}),
		recallStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "recall",
			Name:      "steps_total",
			Help:      "Recall step executions by outcome",
		}, []string{"step_type", "outcome"}),
		insightsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "insights",
			Name:      "generated_total",
			Help:      "Insights generated by type",
		}, []string{"type"}),
		slotSearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicpulse",
			Subsystem: "slots",
			Name:      "search_latency_seconds",
			Help:      "Latency of optimal slot searches",
			Buckets:   prometheus.DefBuckets,
		}),
		intentsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicpulse",
			Subsystem: "intents",
			Name:      "published_total",
			Help:      "Intents published to the delivery queue",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.predictionsTotal, m.gapsDetectedTotal, m.recommendationsTotal,
		m.recallStepsTotal, m.insightsTotal, m.slotSearchLatency,
		m.intentsPublishedTotal,
	)
	return m
}

func (m *EngineMetrics) ObservePrediction(riskLevel string, lowConfidence bool) {
	if m == nil {
		return
	}
	label := "false"
	if lowConfidence {
		label = "true"
	}
	m.predictionsTotal.WithLabelValues(riskLevel, label).Inc()
}

func (m *EngineMetrics) ObserveGapsDetected(count int) {
	if m == nil {
		return
	}
	m.gapsDetectedTotal.Add(float64(count))
}

func (m *EngineMetrics) ObserveRecommendation(event string) {
	if m == nil {
		return
	}
	m.recommendationsTotal.WithLabelValues(event).Inc()
}

func (m *EngineMetrics) ObserveRecallStep(stepType, outcome string) {
	if m == nil {
		return
	}
	m.recallStepsTotal.WithLabelValues(stepType, outcome).Inc()
}

func (m *EngineMetrics) ObserveInsight(insightType string) {
	if m == nil {
		return
	}
	m.insightsTotal.WithLabelValues(insightType).Inc()
}

func (m *EngineMetrics) ObserveSlotSearchLatency(seconds float64) {
	if m == nil {
		return
	}
	m.slotSearchLatency.Observe(seconds)
}

func (m *EngineMetrics) ObserveIntentPublished(intentType, status string) {
	if m == nil {
		return
	}
	m.intentsPublishedTotal.WithLabelValues(intentType, status).Inc()
}
