package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homedash/homedash/internal/application"
	"github.com/homedash/homedash/internal/ports"
)

// Handler is the HTTP adapter entrypoint for dashboard auth use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service      *application.Service
	csrf         ports.CSRFSigner
	secureCookie bool
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, csrf ports.CSRFSigner, secureCookie bool) *Handler {
	return &Handler{service: service, csrf: csrf, secureCookie: secureCookie}
}

// NewRouter registers the HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", handler.initiateLogin)
		r.Get("/login", handler.initiateLogin)
		r.Get("/callback", handler.callback)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(handler.sessionMiddleware)
			r.Get("/csrf", handler.csrfToken)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.sessionMiddleware)
		r.Use(handler.csrfMiddleware)

		r.Get("/me", handler.me)
		r.Get("/config", handler.runtimeConfig)
		r.Get("/token", handler.token)

		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions/{session_id}", handler.revokeSession)

		r.Put("/credentials/{kind}", handler.putCredential)
		r.Delete("/credentials/{kind}", handler.deleteCredential)

		r.Put("/users/{user_id}/role", handler.setRole)
		r.Post("/users/{user_id}/disable", handler.disableUser)
		r.Put("/users/{user_id}/overrides/{key}", handler.setOverride)
		r.Delete("/users/{user_id}/overrides/{key}", handler.deleteOverride)
	})

	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
