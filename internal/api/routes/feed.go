package routes

import (
	"github.com/go-chi/chi/v5"

	"Sideline/internal/api/handlers/feed"
)

// RegisterFeedRoutes registers the feed endpoints of the local bridge
func RegisterFeedRoutes(r chi.Router, handler *feed.Handler) {
	r.Route("/feed", func(r chi.Router) {
		r.Get("/", handler.HandleGetFeed)
		r.Post("/refresh", handler.HandleRefresh)
		r.Post("/more", handler.HandleLoadMore)
		r.Put("/filter", handler.HandleSetFilter)
		r.Delete("/filter", handler.HandleResetFilter)
		r.Post("/block", handler.HandleBlockAuthor)
	})
}

// RegisterSessionRoutes registers login and logout for the local bridge
func RegisterSessionRoutes(r chi.Router, handler *feed.SessionHandler) {
	r.Put("/session", handler.HandleSetSession)
	r.Delete("/session", handler.HandleClearSession)
}
