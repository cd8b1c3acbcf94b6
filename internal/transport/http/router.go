package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleet-tracker/internal/metrics"
)

// Deps carries everything the HTTP surface needs. All fields are required
// except Subscriber, which disables the live feed when nil.
type Deps struct {
	Dispatcher Dispatcher
	Readings   ReadingQueries
	Alerts     AlertQueries
	Rollups    RollupQueries
	Stats      StatsSource
	Subscriber Subscriber
	Validator  *validator.Validate
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{
		dispatcher: deps.Dispatcher,
		readings:   deps.Readings,
		alerts:     deps.Alerts,
		rollups:    deps.Rollups,
		stats:      deps.Stats,
		validator:  deps.Validator,
		logger:     deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger(deps.Logger))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		deps.Metrics.Registry,
		promhttp.HandlerOpts{},
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/readings", h.ingestReading)
		r.Get("/readings/latest", h.fleetLatest)
		r.Get("/vehicles/latest", h.fleetLatest)
		r.Get("/stats", h.ingestStats)

		r.Route("/vehicles/{vehicleID}", func(r chi.Router) {
			r.Get("/readings", h.vehicleReadings)
			r.Get("/readings/latest", h.vehicleLatest)
			r.Get("/stats", h.vehicleStats)
			r.Get("/rollups", h.vehicleRollups)
			r.Get("/alerts", h.vehicleAlerts)
		})

		r.Get("/alerts", h.listAlerts)
		r.Post("/alerts/{alertID}/resolve", h.resolveAlert)
	})

	if deps.Subscriber != nil {
		feed := &liveFeed{subscriber: deps.Subscriber, logger: deps.Logger}
		r.Get("/ws/live", feed.serveWS)
	}

	return r
}
