package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"Sideline/internal/api/handlers/feed"
	"Sideline/internal/api/middleware"
)

// RouterOptions wires the bridge's handlers
type RouterOptions struct {
	Feed    *feed.Handler
	Session *feed.SessionHandler // nil disables /session
	Metrics http.Handler         // nil disables /metrics

	RequestsPerSecond float64
	Burst             int
}

// NewRouter builds the local HTTP bridge
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)

	if opts.RequestsPerSecond > 0 {
		r.Use(middleware.NewRateLimiter(opts.RequestsPerSecond, opts.Burst).Middleware)
	}

	RegisterFeedRoutes(r, opts.Feed)
	if opts.Session != nil {
		RegisterSessionRoutes(r, opts.Session)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
