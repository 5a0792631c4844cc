// Package router assembles the engine's HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicpulse/schedule-engine/internal/http/handlers"
	httpmiddleware "github.com/clinicpulse/schedule-engine/internal/http/middleware"
	"github.com/clinicpulse/schedule-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Health             *handlers.HealthHandler
	Predictions        *handlers.PredictionHandler
	Gaps               *handlers.GapHandler
	Utilization        *handlers.UtilizationHandler
	Recommendations    *handlers.RecommendationHandler
	Slots              *handlers.SlotHandler
	Recall             *handlers.RecallHandler
	Insights           *handlers.InsightHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Predictions != nil {
		r.Route("/appointments/{appointmentID}/prediction", func(r chi.Router) {
			r.Post("/", cfg.Predictions.Predict)
			r.Get("/", cfg.Predictions.Get)
		})
		r.Post("/predictions/batch", cfg.Predictions.BatchPredict)
	}

	r.Route("/providers/{providerID}", func(provider chi.Router) {
		if cfg.Gaps != nil {
			provider.Get("/gaps", cfg.Gaps.List)
			provider.Post("/gaps/refresh", cfg.Gaps.Refresh)
		}
		if cfg.Utilization != nil {
			provider.Post("/utilization", cfg.Utilization.CalculateDaily)
			provider.Get("/utilization/trend", cfg.Utilization.Trend)
		}
		if cfg.Recommendations != nil {
			provider.Get("/recommendations", cfg.Recommendations.ListPending)
			provider.Post("/recommendations/generate", cfg.Recommendations.Generate)
		}
		if cfg.Slots != nil {
			provider.Get("/suggestions", cfg.Slots.TodaySuggestions)
			provider.Get("/improvements", cfg.Slots.Improvements)
		}
		if cfg.Insights != nil {
			provider.Get("/insights", cfg.Insights.List)
		}
	})

	if cfg.Gaps != nil {
		r.Post("/gaps/{gapID}/fill", cfg.Gaps.Fill)
	}

	if cfg.Recommendations != nil {
		r.Route("/recommendations/{recommendationID}", func(r chi.Router) {
			r.Get("/", cfg.Recommendations.Get)
			r.Post("/decision", cfg.Recommendations.Decide)
		})
	}

	if cfg.Slots != nil {
		r.Post("/slots/search", cfg.Slots.Search)
	}

	if cfg.Recall != nil {
		r.Route("/recall", func(rc chi.Router) {
			rc.Route("/sequences", func(rs chi.Router) {
				rs.Post("/", cfg.Recall.CreateSequence)
				rs.Get("/", cfg.Recall.ListSequences)
				rs.Route("/{sequenceID}", func(seq chi.Router) {
					seq.Get("/", cfg.Recall.GetSequence)
					seq.Get("/candidates", cfg.Recall.Candidates)
					seq.Post("/enrollments", cfg.Recall.Enroll)
				})
			})
			rc.Get("/pending-steps", cfg.Recall.PendingSteps)
			rc.Route("/enrollments/{enrollmentID}", func(en chi.Router) {
				en.Post("/executions", cfg.Recall.RecordExecution)
				en.Post("/response", cfg.Recall.PatientResponse)
			})
		})
	}

	return r
}
