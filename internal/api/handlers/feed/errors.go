package feed

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"Sideline/internal/core/feed"
	"Sideline/internal/feedapi"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errorType, Message: message}); err != nil {
		log.Printf("ERROR: Failed to encode error response: %v", err)
	}
}

// handleEngineError maps engine errors to HTTP responses
func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feed.ErrNotAuthenticated), errors.Is(err, feedapi.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Sign in to use this feature")
	case errors.Is(err, feed.ErrDisposed):
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "The feed is shutting down")
	case errors.Is(err, feedapi.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RateLimited", "The feed service is throttling requests")
	case feed.IsFetchError(err):
		writeError(w, http.StatusBadGateway, "UpstreamError", err.Error())
	default:
		log.Printf("ERROR: Feed engine error: %v", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "An error occurred while loading the feed")
	}
}
