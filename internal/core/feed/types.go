// Package feed is the client-side feed engine: it fetches paginated posts for
// guests and authenticated viewers, merges them into one ordered list, hides
// blocked authors and keeps a snapshot for fast startup.
package feed

import (
	"context"
	"time"

	"Sideline/internal/core/teamfilter"
)

// AuthMode selects which feed source serves a request
type AuthMode int

const (
	// Guest reads the public feed with no personalization
	Guest AuthMode = iota
	// Authenticated reads the personalized feed with the viewer's token
	Authenticated
)

func (m AuthMode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "guest"
}

// Post is one entry of the feed
type Post struct {
	CreatedAt    time.Time  `json:"createdAt"`
	ID           string     `json:"id"`
	AuthorID     string     `json:"authorId"`
	AuthorName   string     `json:"authorName,omitempty"`
	TeamID       string     `json:"teamId,omitempty"`
	Content      string     `json:"content,omitempty"`
	Media        []MediaRef `json:"media,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	ViewCount    int        `json:"viewCount"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	IsLiked      bool       `json:"isLiked"`
	IsBookmarked bool       `json:"isBookmarked"`
}

// MediaRef points at an image or video attached to a post
type MediaRef struct {
	URL          string `json:"url"`
	Type         string `json:"type,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// PageQuery is the input of one feed page request.
// Exactly one of Page and Cursor is set: page 1 requests carry Page=1.
type PageQuery struct {
	Page                *int
	Cursor              *string
	TeamIDs             []string // nil means all teams
	Limit               int
	IncludeBlockedUsers bool
}

// Page is one page of feed results
type Page struct {
	NextCursor *string
	Posts      []Post
	// MyTeams is nil when the response omitted it (always for guests)
	MyTeams []teamfilter.Follow
	// BlockedUsers is nil unless the request asked for it
	BlockedUsers []string
	Page         int
	HasNext      bool
}

// Repository is the remote feed API
type Repository interface {
	teamfilter.TeamsSource

	// GetFeed returns a page of the personalized feed
	GetFeed(ctx context.Context, q PageQuery) (*Page, error)

	// GetPublicFeed returns a page of the public feed. TeamIDs and
	// IncludeBlockedUsers are ignored.
	GetPublicFeed(ctx context.Context, q PageQuery) (*Page, error)

	// GetBlockedUsers returns the ids of users the viewer has blocked
	GetBlockedUsers(ctx context.Context) ([]string, error)
}

// State is a copy of the engine's observable state
type State struct {
	Err            error
	Cursor         *string
	Posts          []Post
	SelectedFilter teamfilter.Filter
	MyTeams        []teamfilter.Follow
	Page           int
	Mode           AuthMode
	// FilterInitialized is false until the first filter decision is made
	FilterInitialized bool
	IsRefreshing      bool
	IsLoadingMore     bool
	HasNext           bool
	BlockedLoaded     bool
}

func intPtr(n int) *int {
	return &n
}
