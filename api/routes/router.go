package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/goodsin-backend/api/controllers"
	deliverycontrollers "github.com/angelmondragon/goodsin-backend/api/controllers/deliveries"
	"github.com/angelmondragon/goodsin-backend/api/middleware"
	"github.com/angelmondragon/goodsin-backend/internal/deliveries"
	"github.com/angelmondragon/goodsin-backend/internal/scans"
	"github.com/angelmondragon/goodsin-backend/pkg/config"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/goodsin-backend/pkg/redis"
)

// Dependencies are the services and clients the HTTP surface needs.
// Readiness only checks the pingers that are set.
type Dependencies struct {
	Deliveries  deliveries.Service
	Scans       scans.Service
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Readiness   map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ScannerContext(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, middleware.IdempotencyOptions{
			ScanTTL:    cfg.Receiving.ScanReplayTTL,
			RequireKey: cfg.FeatureFlags.RequireScanIdempotency,
		}, logg))

		r.Get("/ping", controllers.Ping())

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", deliverycontrollers.Create(deps.Deliveries, logg))
			r.Get("/", deliverycontrollers.List(deps.Deliveries, logg))

			r.Route("/{deliveryId}", func(r chi.Router) {
				r.Get("/", deliverycontrollers.Detail(deps.Deliveries, logg))
				r.Get("/progress", deliverycontrollers.Progress(deps.Deliveries, logg))
				r.Get("/discrepancies", deliverycontrollers.Discrepancies(deps.Deliveries, logg))
				r.Post("/complete", deliverycontrollers.Complete(deps.Deliveries, logg))
				r.Post("/cancel", deliverycontrollers.Cancel(deps.Deliveries, logg))

				r.Post("/scans", deliverycontrollers.Scan(deps.Deliveries, logg))
				r.Get("/scans", deliverycontrollers.DeliveryScans(deps.Deliveries, deps.Scans, logg))

				r.Route("/items/{itemId}", func(r chi.Router) {
					r.Get("/", deliverycontrollers.Item(deps.Deliveries, logg))
					r.Get("/scans", deliverycontrollers.ItemScans(deps.Deliveries, deps.Scans, logg))
					r.Post("/case-scans", deliverycontrollers.CaseScan(deps.Deliveries, logg))
					r.Post("/unit-scans", deliverycontrollers.UnitScan(deps.Deliveries, logg))
					r.Patch("/received", deliverycontrollers.Adjust(deps.Deliveries, logg))
				})
			})
		})
	})

	return r
}
