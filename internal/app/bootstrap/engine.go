package bootstrap

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	appconfig "github.com/clinicpulse/schedule-engine/internal/config"
	"github.com/clinicpulse/schedule-engine/internal/gaps"
	"github.com/clinicpulse/schedule-engine/internal/insights"
	"github.com/clinicpulse/schedule-engine/internal/intents"
	"github.com/clinicpulse/schedule-engine/internal/noshow"
	"github.com/clinicpulse/schedule-engine/internal/observability/metrics"
	"github.com/clinicpulse/schedule-engine/internal/overbook"
	"github.com/clinicpulse/schedule-engine/internal/recall"
	"github.com/clinicpulse/schedule-engine/internal/schedule"
	"github.com/clinicpulse/schedule-engine/internal/slots"
	"github.com/clinicpulse/schedule-engine/internal/utilization"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Engine bundles every wired component of the scheduling engine.
type Engine struct {
	Metrics *metrics.EngineMetrics
	Reader  *schedule.HistoryRepository

	NoShowService *noshow.Service
	NoShowStore   *noshow.Store

	GapDetector *gaps.Detector
	GapStore    *gaps.Store

	Utilization      *utilization.Calculator
	UtilizationStore *utilization.Store

	Advisor       *overbook.Advisor
	OverbookStore *overbook.Store

	Optimizer *slots.Optimizer

	Recall      *recall.Engine
	RecallStore *recall.Store

	Insights *insights.Aggregator

	Outbox *intents.Outbox
}

// BuildEngine wires all engine components over the shared Postgres pool.
// rdb may be nil; gap detection then skips the fill-rate cache and falls
// back to neutral rates.
func BuildEngine(cfg *appconfig.Config, pool *pgxpool.Pool, rdb *redis.Client, reg prometheus.Registerer, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}

	m := metrics.NewEngineMetrics(reg)
	reader := schedule.NewHistoryRepository(pool)
	outbox := intents.NewOutbox(pool)

	weights := noshow.DefaultWeights()
	if cfg.NoShowWeightsJSON != "" {
		w, err := noshow.WeightsFromJSON(cfg.NoShowWeightsJSON)
		if err != nil {
			return nil, err
		}
		weights = w
	}
	noShowStore := noshow.NewStore(pool)
	noShowService := noshow.NewService(noshow.NewModel(weights), reader, reader, noShowStore, m, logger.Component("noshow"))

	gapStore := gaps.NewStore(pool)
	var fillRates gaps.FillRateProvider
	if rdb != nil {
		tracer := otel.Tracer("clinicpulse/gaps")
		fillRates = gaps.NewFillRateCache(rdb, gapStore, cfg.FillRateCacheTTL, tracer)
	}
	detector := gaps.NewDetector(time.Duration(cfg.GapMinFillableMinutes)*time.Minute, fillRates, m, logger.Component("gaps"))

	utilizationStore := utilization.NewStore(pool)
	calculator := utilization.NewCalculator(reader, utilizationStore, logger.Component("utilization"))

	overbookStore := overbook.NewStore(pool)
	advisor := overbook.NewAdvisor(reader, noShowStore, gapStore, overbookStore, outbox, overbook.Policy{
		RecommendationTTL:      cfg.OverbookRecommendationTTL,
		MaxConcurrentOverbooks: cfg.MaxConcurrentOverbooks,
	}, m, logger.Component("overbook"))

	optimizer := slots.NewOptimizer(reader, gapStore, m, logger.Component("slots"))

	recallStore := recall.NewStore(pool)
	recallEngine := recall.NewEngine(recallStore, outbox, m, logger.Component("recall"))

	aggregator := insights.NewAggregator(gapStore, utilizationStore, recallStore, optimizer, m, logger.Component("insights"))

	return &Engine{
		Metrics:          m,
		Reader:           reader,
		NoShowService:    noShowService,
		NoShowStore:      noShowStore,
		GapDetector:      detector,
		GapStore:         gapStore,
		Utilization:      calculator,
		UtilizationStore: utilizationStore,
		Advisor:          advisor,
		OverbookStore:    overbookStore,
		Optimizer:        optimizer,
		Recall:           recallEngine,
		RecallStore:      recallStore,
		Insights:         aggregator,
		Outbox:           outbox,
	}, nil
}
