package feed

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenStore accepts the access token from the UI shell
type TokenStore interface {
	SetToken(token string) error
	Clear()
}

// SessionRequest is the body of PUT /session
type SessionRequest struct {
	AccessToken string `json:"accessToken"`
}

// SessionHandler swaps the viewer's token. The engine notices the new auth
// mode on its next operation.
type SessionHandler struct {
	tokens TokenStore
}

// NewSessionHandler creates a session handler
func NewSessionHandler(tokens TokenStore) *SessionHandler {
	return &SessionHandler{tokens: tokens}
}

// HandleSetSession installs a token
// PUT /session {"accessToken": "..."}
func (h *SessionHandler) HandleSetSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Body must be {\"accessToken\": \"...\"}")
		return
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "accessToken is required")
		return
	}

	if err := h.tokens.SetToken(token); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidToken", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearSession signs the viewer out
// DELETE /session
func (h *SessionHandler) HandleClearSession(w http.ResponseWriter, r *http.Request) {
	h.tokens.Clear()
	w.WriteHeader(http.StatusNoContent)
}
