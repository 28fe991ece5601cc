// Package feedapi is the GraphQL client for the remote feed service
package feedapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"

	"Sideline/internal/core/feed"
	"Sideline/internal/core/session"
	"Sideline/internal/core/teamfilter"
	"Sideline/internal/metrics"
)

const (
	// DefaultTimeout bounds one GraphQL round trip
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 10 << 20
	maxErrorBytes    = 1024
	defaultUserAgent = "Sideline/1.0"
)

// Config configures a Client
type Config struct {
	Tokens     session.TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
	Endpoint   string
	UserAgent  string
	Timeout    time.Duration
	// RequestsPerSecond of zero disables client-side throttling
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the feed GraphQL endpoint
type Client struct {
	tokens    session.TokenSource
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	endpoint  string
	userAgent string
}

var _ feed.Repository = (*Client)(nil)

// NewClient creates a client for cfg.Endpoint
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid feed API endpoint %q", cfg.Endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = cfg.Timeout
		if httpClient.Timeout <= 0 {
			httpClient.Timeout = DefaultTimeout
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		tokens:    cfg.Tokens,
		http:      httpClient,
		limiter:   limiter,
		logger:    logger.With("component", "feedapi"),
		endpoint:  u.String(),
		userAgent: userAgent,
	}, nil
}

// GetFeed fetches a page of the personalized feed
func (c *Client) GetFeed(ctx context.Context, q feed.PageQuery) (*feed.Page, error) {
	vars := filterVariables{Filter: feedFilterInput{
		TeamIDs:             q.TeamIDs,
		Page:                q.Page,
		Cursor:              q.Cursor,
		Limit:               q.Limit,
		IncludeBlockedUsers: q.IncludeBlockedUsers,
	}}

	var data feedData
	if err := c.do(ctx, opFeed, feedQuery, vars, true, &data); err != nil {
		return nil, err
	}
	return c.toPage(opFeed, data.Feed)
}

// GetPublicFeed fetches a page of the public feed. It sends no credentials.
func (c *Client) GetPublicFeed(ctx context.Context, q feed.PageQuery) (*feed.Page, error) {
	vars := filterVariables{Filter: publicFilterInput{
		Page:   q.Page,
		Cursor: q.Cursor,
		Limit:  q.Limit,
	}}

	var data feedData
	if err := c.do(ctx, opPublicFeed, publicFeedQuery, vars, false, &data); err != nil {
		return nil, err
	}
	page, err := c.toPage(opPublicFeed, data.Feed)
	if err != nil {
		return nil, err
	}
	page.MyTeams = nil
	page.BlockedUsers = nil
	return page, nil
}

// GetMyTeams returns the teams the viewer follows, never nil on success
func (c *Client) GetMyTeams(ctx context.Context) ([]teamfilter.Follow, error) {
	var data myTeamsData
	if err := c.do(ctx, opMyTeams, myTeamsQuery, nil, true, &data); err != nil {
		return nil, err
	}
	follows := make([]teamfilter.Follow, 0, len(data.MyTeams))
	for _, f := range data.MyTeams {
		if f.TeamID == "" {
			continue
		}
		follows = append(follows, f)
	}
	return follows, nil
}

// GetBlockedUsers returns the ids the viewer has blocked, never nil on success
func (c *Client) GetBlockedUsers(ctx context.Context) ([]string, error) {
	var data blockedUsersData
	if err := c.do(ctx, opBlockedUsers, blockedUsersQuery, nil, true, &data); err != nil {
		return nil, err
	}
	if data.BlockedUsers == nil {
		return []string{}, nil
	}
	return data.BlockedUsers, nil
}

func (c *Client) toPage(operation string, w *wirePage) (*feed.Page, error) {
	if w == nil {
		return nil, fmt.Errorf("%s: %w: missing feed", operation, ErrBadResponse)
	}

	page := &feed.Page{
		NextCursor:   w.NextCursor,
		Posts:        make([]feed.Post, 0, len(w.Posts)),
		MyTeams:      w.MyTeams,
		BlockedUsers: w.BlockedUsers,
		Page:         w.Page,
		HasNext:      w.HasNext,
	}
	if page.NextCursor != nil && *page.NextCursor == "" {
		page.NextCursor = nil
	}

	for _, wp := range w.Posts {
		p, err := toPost(wp)
		if err != nil {
			c.logger.Warn("dropping malformed post", "operation", operation, "error", err)
			continue
		}
		page.Posts = append(page.Posts, p)
	}
	return page, nil
}

// do posts one GraphQL document and decodes its data into out
func (c *Client) do(ctx context.Context, operation, query string, variables any, authenticated bool, out any) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	defer func() {
		metrics.ObserveAPIRequest(operation, start, err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", operation, err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables, OperationName: operation})
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	if authenticated {
		token := ""
		if c.tokens != nil {
			token = c.tokens.AccessToken()
		}
		if token == "" {
			return fmt.Errorf("%s: %w: no access token", operation, ErrUnauthorized)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Limit error body to 1KB
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return statusError(operation, resp.StatusCode, string(b))
	}

	var gr graphQLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&gr); err != nil {
		return fmt.Errorf("%s: %w: %v", operation, ErrBadResponse, err)
	}
	if len(gr.Errors) > 0 {
		return queryError(operation, gr.Errors)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("%s: %w: missing data", operation, ErrBadResponse)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", operation, ErrBadResponse, err)
	}

	c.logger.Debug("feed API request completed",
		"operation", operation,
		"request_id", requestID,
		"duration", time.Since(start))
	return nil
}
