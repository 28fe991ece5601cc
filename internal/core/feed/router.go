package feed

import (
	"context"

	"Sideline/internal/core/session"
	"Sideline/internal/core/teamfilter"
)

// DefaultPageLimit is the page size used when none is configured
const DefaultPageLimit = 5

// Router sends feed requests to the personalized or the public source
// depending on the live token state
type Router struct {
	session session.Provider
	repo    Repository
	limit   int
}

// NewRouter creates a router. A nil provider means the viewer is always a guest.
func NewRouter(sess session.Provider, repo Repository, limit int) *Router {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return &Router{session: sess, repo: repo, limit: limit}
}

// Mode evaluates the auth mode now. It is never cached: the token may expire
// between two calls.
func (r *Router) Mode() AuthMode {
	if r.session != nil && r.session.IsTokenValid() {
		return Authenticated
	}
	return Guest
}

// Session returns the current session, zero for guests
func (r *Router) Session() session.Session {
	if r.session == nil {
		return session.Session{}
	}
	return r.session.CurrentSession()
}

// FirstPage builds a page-1 request for mode and filter
func (r *Router) FirstPage(mode AuthMode, filter teamfilter.Filter, includeBlocked bool) PageQuery {
	q := PageQuery{Page: intPtr(1), Limit: r.limit}
	if mode == Authenticated {
		q.TeamIDs = filter.TeamIDs()
		q.IncludeBlockedUsers = includeBlocked
	}
	return q
}

// NextPage builds the request following p. The cursor wins over the page
// number when the previous response supplied one.
func (r *Router) NextPage(mode AuthMode, filter teamfilter.Filter, p pagination) PageQuery {
	q := PageQuery{Limit: r.limit}
	if p.cursor != nil {
		cursor := *p.cursor
		q.Cursor = &cursor
	} else {
		q.Page = intPtr(p.page + 1)
	}
	if mode == Authenticated {
		q.TeamIDs = filter.TeamIDs()
	}
	return q
}

// Fetch issues q against the source for mode
func (r *Router) Fetch(ctx context.Context, mode AuthMode, q PageQuery) (*Page, error) {
	if mode == Authenticated {
		return r.repo.GetFeed(ctx, q)
	}

	q.TeamIDs = nil
	q.IncludeBlockedUsers = false
	page, err := r.repo.GetPublicFeed(ctx, q)
	if err != nil {
		return nil, err
	}
	// Guests never see personalization, even if the server sent it
	page.MyTeams = nil
	page.BlockedUsers = nil
	return page, nil
}

// pagination is the continuation bookkeeping of one mode
type pagination struct {
	cursor  *string
	page    int
	mode    AuthMode
	hasNext bool
}

func newPagination(mode AuthMode) pagination {
	return pagination{mode: mode, hasNext: true}
}
