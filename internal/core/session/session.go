// Package session exposes the viewer's authentication state to the feed engine.
// The engine only asks whether the token is currently valid and when it expires;
// token issuance and refresh belong to the auth module.
package session

import (
	"time"
)

// Session describes the current authenticated session
type Session struct {
	// ExpiresAt is nil when the token carries no expiry
	ExpiresAt *time.Time
	UserID    string
}

// Provider is the auth collaborator consumed by the feed engine.
// Both methods must be cheap: they are called at the start of every feed operation.
type Provider interface {
	IsTokenValid() bool
	CurrentSession() Session
}

// TokenSource supplies the bearer token attached to authenticated requests
type TokenSource interface {
	AccessToken() string
}
