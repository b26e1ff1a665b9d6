package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/clinicops-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/clinicops-backend/api/controllers/webhooks"
	"github.com/angelmondragon/clinicops-backend/api/middleware"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Routers  webhookcontrollers.RouterRegistry
	Gatherer prometheus.Gatherer
	// Probes are pinged by /health/ready; nil entries are reported disabled.
	Probes map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Probes))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.AckRecoverer(logg))
		payments := webhookcontrollers.PaymentsWebhook(deps.Routers, logg)
		r.Post("/payments", payments)
		r.Post("/payments/{instance}", payments)
	})

	return r
}
