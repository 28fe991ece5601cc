package feedapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Typed errors for feed API calls, usable with errors.Is
var (
	// ErrUnauthorized indicates the token was rejected (HTTP 401/403 or an
	// UNAUTHENTICATED GraphQL error)
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the server throttled the request (HTTP 429)
	ErrRateLimited = errors.New("rate limited")

	// ErrServer indicates a 5xx response
	ErrServer = errors.New("feed server error")

	// ErrBadResponse indicates a body that could not be decoded or lacked data
	ErrBadResponse = errors.New("bad response")

	// ErrQuery indicates the server answered with GraphQL errors
	ErrQuery = errors.New("query failed")
)

// IsAuthError reports whether re-authenticating might help
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRetryable reports whether the caller may retry the same request later
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer)
}

// statusError maps a non-200 HTTP status to a typed error
func statusError(operation string, status int, body string) error {
	body = strings.TrimSpace(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", operation, ErrUnauthorized, body)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %s", operation, ErrRateLimited, body)
	case status >= 500:
		return fmt.Errorf("%s: %w: status %d: %s", operation, ErrServer, status, body)
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", operation, status, body)
	}
}

// queryError maps GraphQL errors to a typed error
func queryError(operation string, errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	unauthenticated := false
	for _, e := range errs {
		messages = append(messages, e.Message)
		if code, _ := e.Extensions["code"].(string); code == "UNAUTHENTICATED" || code == "FORBIDDEN" {
			unauthenticated = true
		}
	}
	joined := strings.Join(messages, "; ")
	if unauthenticated {
		return fmt.Errorf("%s: %w: %s", operation, ErrUnauthorized, joined)
	}
	return fmt.Errorf("%s: %w: %s", operation, ErrQuery, joined)
}
