// Package feed exposes the feed engine to a local UI shell over HTTP
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"Sideline/internal/core/feed"
	"Sideline/internal/core/teamfilter"
)

// Engine is the part of the feed engine the handlers drive
type Engine interface {
	State() feed.State
	Refresh(ctx context.Context) error
	LoadMore(ctx context.Context) error
	SetFilter(ctx context.Context, f teamfilter.Filter) error
	ResetFilter(ctx context.Context) error
	BlockAuthor(userID string) error
}

// StateResponse is the JSON view of the engine state
type StateResponse struct {
	Cursor            *string             `json:"cursor,omitempty"`
	Posts             []feed.Post         `json:"posts"`
	SelectedFilter    []string            `json:"selectedFilter"`
	MyTeams           []teamfilter.Follow `json:"myTeams,omitempty"`
	Error             string              `json:"error,omitempty"`
	Mode              string              `json:"mode"`
	Page              int                 `json:"page"`
	FilterInitialized bool                `json:"filterInitialized"`
	IsRefreshing      bool                `json:"isRefreshing"`
	IsLoadingMore     bool                `json:"isLoadingMore"`
	HasNext           bool                `json:"hasNext"`
}

// SetFilterRequest is the body of PUT /feed/filter. Null or empty teamIds
// selects all teams.
type SetFilterRequest struct {
	TeamIDs []string `json:"teamIds"`
}

// BlockRequest is the body of POST /feed/block
type BlockRequest struct {
	UserID string `json:"userId"`
}

// Handler serves the feed endpoints
type Handler struct {
	engine  Engine
	timeout time.Duration
}

// NewHandler creates a feed handler. timeout bounds each engine call.
func NewHandler(engine Engine, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{engine: engine, timeout: timeout}
}

// HandleGetFeed returns the current state without fetching
// GET /feed
func (h *Handler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	writeState(w, h.engine.State())
}

// HandleRefresh re-fetches page 1
// POST /feed/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.engine.Refresh)
}

// HandleLoadMore appends the next page
// POST /feed/more
func (h *Handler) HandleLoadMore(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.engine.LoadMore)
}

// HandleSetFilter changes the team filter
// PUT /feed/filter {"teamIds": ["..."]}
func (h *Handler) HandleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req SetFilterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Body must be {\"teamIds\": [...]}")
		return
	}
	filter := teamfilter.New(req.TeamIDs...)

	h.run(w, r, func(ctx context.Context) error {
		return h.engine.SetFilter(ctx, filter)
	})
}

// HandleResetFilter drops the stored filter and derives one from followed teams
// DELETE /feed/filter
func (h *Handler) HandleResetFilter(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.engine.ResetFilter)
}

// HandleBlockAuthor hides an author's posts locally
// POST /feed/block {"userId": "..."}
func (h *Handler) HandleBlockAuthor(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Body must be {\"userId\": \"...\"}")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "userId is required")
		return
	}

	if err := h.engine.BlockAuthor(userID); err != nil {
		handleEngineError(w, err)
		return
	}
	writeState(w, h.engine.State())
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := op(ctx); err != nil {
		handleEngineError(w, err)
		return
	}
	writeState(w, h.engine.State())
}

func toStateResponse(s feed.State) StateResponse {
	resp := StateResponse{
		Cursor:            s.Cursor,
		Posts:             s.Posts,
		SelectedFilter:    s.SelectedFilter.TeamIDs(),
		MyTeams:           s.MyTeams,
		Mode:              s.Mode.String(),
		Page:              s.Page,
		FilterInitialized: s.FilterInitialized,
		IsRefreshing:      s.IsRefreshing,
		IsLoadingMore:     s.IsLoadingMore,
		HasNext:           s.HasNext,
	}
	if resp.Posts == nil {
		resp.Posts = []feed.Post{}
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

func writeState(w http.ResponseWriter, s feed.State) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toStateResponse(s)); err != nil {
		// Headers already sent
		log.Printf("ERROR: Failed to encode feed response: %v", err)
	}
}
