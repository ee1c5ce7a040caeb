package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterDeps collects the module handlers mounted on the API router.
type RouterDeps struct {
	Middleware []func(http.Handler) http.Handler
	Mounters   []interface{ MountRoutes(chi.Router) }
	Health     http.HandlerFunc
}

// NewRouter assembles the chi router. The health endpoint bypasses the
// identity middleware so load balancers can probe without gateway headers.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	if deps.Health != nil {
		r.Get("/healthz", deps.Health)
	}

	r.Group(func(r chi.Router) {
		for _, mw := range deps.Middleware {
			r.Use(mw)
		}
		r.Route("/api/v1", func(r chi.Router) {
			for _, m := range deps.Mounters {
				m.MountRoutes(r)
			}
		})
	})

	return r
}
