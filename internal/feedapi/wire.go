package feedapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"Sideline/internal/core/feed"
	"Sideline/internal/core/teamfilter"
)

type graphQLRequest struct {
	Variables     any    `json:"variables,omitempty"`
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

type graphQLError struct {
	Extensions map[string]any `json:"extensions,omitempty"`
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// feedFilterInput is the authenticated filter. A nil TeamIDs is sent as null.
type feedFilterInput struct {
	TeamIDs             []string `json:"teamIds"`
	Page                *int     `json:"page"`
	Cursor              *string  `json:"cursor"`
	Limit               int      `json:"limit"`
	IncludeBlockedUsers bool     `json:"includeBlockedUsers"`
}

// publicFilterInput carries no team or blocked-user fields
type publicFilterInput struct {
	Page   *int    `json:"page"`
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit"`
}

type filterVariables struct {
	Filter any `json:"filter"`
}

type wireMedia struct {
	URL          string `json:"url"`
	Type         string `json:"type"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type wirePost struct {
	CreatedAt    json.RawMessage `json:"createdAt"`
	ID           string          `json:"id"`
	AuthorID     string          `json:"authorId"`
	AuthorName   string          `json:"authorName"`
	TeamID       string          `json:"teamId"`
	Content      string          `json:"content"`
	Media        []wireMedia     `json:"media"`
	Tags         []string        `json:"tags"`
	ViewCount    int             `json:"viewCount"`
	LikeCount    int             `json:"likeCount"`
	CommentCount int             `json:"commentCount"`
	IsLiked      bool            `json:"isLiked"`
	IsBookmarked bool            `json:"isBookmarked"`
}

type wirePage struct {
	NextCursor   *string             `json:"nextCursor"`
	Posts        []wirePost          `json:"posts"`
	MyTeams      []teamfilter.Follow `json:"myTeams"`
	BlockedUsers []string            `json:"blockedUsers"`
	Page         int                 `json:"page"`
	HasNext      bool                `json:"hasNext"`
}

type feedData struct {
	Feed *wirePage `json:"feed"`
}

type myTeamsData struct {
	MyTeams []teamfilter.Follow `json:"myTeams"`
}

type blockedUsersData struct {
	BlockedUsers []string `json:"blockedUsers"`
}

// parseTimestamp accepts an RFC3339 string, an epoch-millis number or an
// epoch-millis string
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// toPost narrows a wire post. Posts without an id or a readable createdAt are
// rejected: they cannot be deduplicated or ordered.
func toPost(w wirePost) (feed.Post, error) {
	if w.ID == "" {
		return feed.Post{}, fmt.Errorf("post without id")
	}
	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return feed.Post{}, fmt.Errorf("post %s: %w", w.ID, err)
	}

	p := feed.Post{
		CreatedAt:    createdAt,
		ID:           w.ID,
		AuthorID:     w.AuthorID,
		AuthorName:   w.AuthorName,
		TeamID:       w.TeamID,
		Content:      w.Content,
		Tags:         w.Tags,
		ViewCount:    w.ViewCount,
		LikeCount:    w.LikeCount,
		CommentCount: w.CommentCount,
		IsLiked:      w.IsLiked,
		IsBookmarked: w.IsBookmarked,
	}
	for _, m := range w.Media {
		if m.URL == "" {
			continue
		}
		p.Media = append(p.Media, feed.MediaRef{URL: m.URL, Type: m.Type, ThumbnailURL: m.ThumbnailURL})
	}
	return p, nil
}
