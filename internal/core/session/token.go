package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpirySkew treats a token as expired slightly before its exp claim so a
// request issued just before expiry does not reach the server with a dead token
const DefaultExpirySkew = 10 * time.Second

// ErrMissingSubject is returned when an access token has no 'sub' claim
var ErrMissingSubject = errors.New("missing 'sub' claim")

// Claims are the access-token claims the client cares about
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// ParseToken parses an access token without verifying its signature.
// Verification is the server's job; the client only reads subject and expiry.
func ParseToken(tokenString string) (*Claims, error) {
	tokenString = stripBearerPrefix(tokenString)

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

// stripBearerPrefix removes the "Bearer " prefix from a token string
func stripBearerPrefix(tokenString string) string {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	return strings.TrimSpace(tokenString)
}

// TokenSession is a Provider backed by a JWT access token held in memory.
// An empty token means the viewer is a guest.
type TokenSession struct {
	now    func() time.Time
	claims *Claims
	token  string
	skew   time.Duration
	mu     sync.RWMutex
}

var (
	_ Provider    = (*TokenSession)(nil)
	_ TokenSource = (*TokenSession)(nil)
)

// NewTokenSession creates a session for token. An empty token yields a guest session.
func NewTokenSession(token string) (*TokenSession, error) {
	s := &TokenSession{
		now:  time.Now,
		skew: DefaultExpirySkew,
	}
	if token == "" {
		return s, nil
	}
	if err := s.SetToken(token); err != nil {
		return nil, err
	}
	return s, nil
}

// SetToken installs a new access token (login or token refresh)
func (s *TokenSession) SetToken(token string) error {
	claims, err := ParseToken(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = stripBearerPrefix(token)
	s.claims = claims
	return nil
}

// Clear drops the token (logout)
func (s *TokenSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.claims = nil
}

// AccessToken returns the raw token, or "" for guests
func (s *TokenSession) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsTokenValid reports whether a token is present and not yet expired
func (s *TokenSession) IsTokenValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" || s.claims == nil {
		return false
	}

	now := s.now()
	if s.claims.NotBefore != nil && s.claims.NotBefore.After(now) {
		return false
	}
	if s.claims.ExpiresAt != nil && !now.Before(s.claims.ExpiresAt.Add(-s.skew)) {
		return false
	}
	return true
}

// CurrentSession returns the session described by the token claims
func (s *TokenSession) CurrentSession() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.claims == nil {
		return Session{}
	}

	sess := Session{UserID: s.claims.Subject}
	if s.claims.ExpiresAt != nil {
		expiresAt := s.claims.ExpiresAt.Time
		sess.ExpiresAt = &expiresAt
	}
	return sess
}
