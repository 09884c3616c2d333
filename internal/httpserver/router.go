// Package httpserver assembles the gateway's chi router: safety
// middlewares, access logging, the admin sub-router, the public
// Prometheus endpoint, and the catch-all proxied-request dispatcher.
// Adapted from the corpus's internal/httpserver/router.go, generalized
// from a single hardcoded proxy prefix to a fully dynamic route table.
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portcall/gateway/internal/admin"
	"github.com/portcall/gateway/internal/dispatcher"
	"github.com/portcall/gateway/internal/middleware"
)

// RouterDeps are the already-wired components the router mounts.
type RouterDeps struct {
	Dispatcher *dispatcher.Dispatcher
	Admin      *admin.Handlers
	Auth       *admin.Authenticator
	AccessLog  middleware.Options
	CORS       []string
}

// NewRouter builds the gateway's chi.Router.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.AccessLogger(d.AccessLog))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"draining"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(admin.CORS(d.CORS))

		ar.Get("/health_check", d.Admin.HealthCheck)
		ar.Post("/login", d.Admin.Login)

		ar.Group(func(pr chi.Router) {
			pr.Use(func(next http.Handler) http.Handler {
				return d.Auth.Require(next.ServeHTTP)
			})
			pr.Post("/logout", d.Admin.Logout)
			pr.Get("/me", d.Admin.Me)
			pr.Get("/routes", d.Admin.ListRoutes)
			pr.Put("/routes", d.Admin.ReplaceRoutes)
			pr.Delete("/routes/{id}", func(w http.ResponseWriter, r *http.Request) {
				d.Admin.DeleteRoute(w, r, chi.URLParam(r, "id"))
			})
			pr.Post("/clear", d.Admin.ClearCounters)
			pr.Get("/metrics", d.Admin.Metrics)
			pr.Post("/metrics/clear", d.Admin.ClearMetrics)
		})
	})

	r.Handle("/*", d.Dispatcher)

	return r
}
