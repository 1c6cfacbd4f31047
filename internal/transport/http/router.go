// Package httptransport is the thin HTTP layer. It delegates to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idstore/internal/platform/metrics"
	"idstore/internal/platform/middleware"
)

// RouterDeps carries everything the router mounts. Audit is optional; the
// endpoints are skipped when no reader is configured.
type RouterDeps struct {
	Users       *UserHandler
	Audit       *AuditHandler
	Auth        func(http.Handler) http.Handler
	HTTPMetrics *metrics.Metrics
}

// NewRouter wires all endpoints. Health and metrics stay outside the auth
// boundary; everything else requires a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Instrument(deps.HTTPMetrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth)
		}
		deps.Users.Register(r)
		if deps.Audit != nil {
			deps.Audit.Register(r)
		}
	})

	return r
}
