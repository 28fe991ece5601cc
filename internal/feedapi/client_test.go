package feedapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Sideline/internal/core/feed"
	"Sideline/internal/core/teamfilter"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

type capturedRequest struct {
	header http.Header
	body   graphQLRequestEcho
}

type graphQLRequestEcho struct {
	Variables     json.RawMessage `json:"variables"`
	Query         string          `json:"query"`
	OperationName string          `json:"operationName"`
}

// graphQLServer answers every request with status and body, recording requests
type graphQLServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newGraphQLServer(t *testing.T, status int, body string) *graphQLServer {
	t.Helper()
	s := &graphQLServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var echo graphQLRequestEcho
		_ = json.NewDecoder(r.Body).Decode(&echo)

		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{header: r.Header.Clone(), body: echo})
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *graphQLServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func newTestClient(t *testing.T, endpoint string, token string) *Client {
	t.Helper()
	c, err := NewClient(Config{Endpoint: endpoint, Tokens: staticToken(token)})
	require.NoError(t, err)
	return c
}

const feedResponse = `{
  "data": {
    "feed": {
      "posts": [
        {"id": "p1", "authorId": "u1", "teamId": "lions", "createdAt": "2026-03-01T12:00:00Z", "likeCount": 4, "isLiked": true,
         "media": [{"url": "https://cdn.example/1.jpg", "type": "image"}, {"url": ""}], "tags": ["derby"]},
        {"id": "p2", "authorId": "u2", "teamId": "bears", "createdAt": 1772366340000},
        {"authorId": "u3", "createdAt": "2026-03-01T11:00:00Z"},
        {"id": "p4", "authorId": "u4"}
      ],
      "hasNext": true,
      "page": 1,
      "nextCursor": "",
      "myTeams": [{"teamId": "lions", "teamName": "Lions"}],
      "blockedUsers": ["u9"]
    }
  }
}`

func TestClient_GetFeed(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, feedResponse)
	client := newTestClient(t, server.URL, "tok-123")

	page, err := client.GetFeed(context.Background(), feed.PageQuery{
		Page:                intPtr(1),
		TeamIDs:             []string{"teamA", "teamB"},
		Limit:               5,
		IncludeBlockedUsers: true,
	})
	require.NoError(t, err)

	require.Len(t, page.Posts, 2, "posts without id or createdAt are dropped")
	assert.Equal(t, "p1", page.Posts[0].ID)
	assert.True(t, page.Posts[0].CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, page.Posts[0].IsLiked)
	assert.Equal(t, []feed.MediaRef{{URL: "https://cdn.example/1.jpg", Type: "image"}}, page.Posts[0].Media)
	assert.Equal(t, []string{"derby"}, page.Posts[0].Tags)
	assert.True(t, page.Posts[1].CreatedAt.Equal(time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)))

	assert.True(t, page.HasNext)
	assert.Equal(t, 1, page.Page)
	assert.Nil(t, page.NextCursor, "an empty cursor means none")
	assert.Equal(t, []teamfilter.Follow{{TeamID: "lions", TeamName: "Lions"}}, page.MyTeams)
	assert.Equal(t, []string{"u9"}, page.BlockedUsers)

	reqs := server.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer tok-123", reqs[0].header.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].header.Get("Content-Type"))
	_, err = uuid.Parse(reqs[0].header.Get("X-Request-ID"))
	assert.NoError(t, err)
	assert.Equal(t, "Feed", reqs[0].body.OperationName)
	assert.Equal(t, feedQuery, reqs[0].body.Query)
	assert.JSONEq(t,
		`{"filter":{"teamIds":["teamA","teamB"],"page":1,"cursor":null,"limit":5,"includeBlockedUsers":true}}`,
		string(reqs[0].body.Variables))
}

func TestClient_GetFeedAllTeamsSendsNull(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, `{"data":{"feed":{"posts":[],"hasNext":false,"page":2}}}`)
	client := newTestClient(t, server.URL, "tok")

	page, err := client.GetFeed(context.Background(), feed.PageQuery{Page: intPtr(2), Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Nil(t, page.MyTeams)
	assert.Nil(t, page.BlockedUsers)

	reqs := server.captured()
	require.Len(t, reqs, 1)
	assert.JSONEq(t,
		`{"filter":{"teamIds":null,"page":2,"cursor":null,"limit":5,"includeBlockedUsers":false}}`,
		string(reqs[0].body.Variables))
}

func TestClient_GetPublicFeed(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, feedResponse)
	client := newTestClient(t, server.URL, "tok")
	cursor := "c1"

	page, err := client.GetPublicFeed(context.Background(), feed.PageQuery{
		Cursor:              &cursor,
		TeamIDs:             []string{"ignored"},
		Limit:               5,
		IncludeBlockedUsers: true,
	})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)
	assert.Nil(t, page.MyTeams)
	assert.Nil(t, page.BlockedUsers)

	reqs := server.captured()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].header.Get("Authorization"), "public requests carry no credentials")
	assert.Equal(t, "PublicFeed", reqs[0].body.OperationName)
	assert.JSONEq(t, `{"filter":{"page":null,"cursor":"c1","limit":5}}`, string(reqs[0].body.Variables))
}

func TestClient_AuthenticatedCallWithoutToken(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, feedResponse)
	client := newTestClient(t, server.URL, "")

	_, err := client.GetFeed(context.Background(), feed.PageQuery{Page: intPtr(1)})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsAuthError(err))
	assert.Empty(t, server.captured())
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"server error", http.StatusServiceUnavailable, ErrServer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newGraphQLServer(t, tt.status, `{"message":"nope"}`)
			client := newTestClient(t, server.URL, "tok")

			_, err := client.GetFeed(context.Background(), feed.PageQuery{Page: intPtr(1)})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}

	t.Run("other status", func(t *testing.T) {
		server := newGraphQLServer(t, http.StatusBadRequest, `bad`)
		_, err := newTestClient(t, server.URL, "tok").GetPublicFeed(context.Background(), feed.PageQuery{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 400")
	})
}

func TestClient_GraphQLErrors(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		server := newGraphQLServer(t, http.StatusOK, `{"errors":[{"message":"limit too large"}],"data":null}`)
		_, err := newTestClient(t, server.URL, "tok").GetFeed(context.Background(), feed.PageQuery{})
		assert.ErrorIs(t, err, ErrQuery)
		assert.Contains(t, err.Error(), "limit too large")
	})

	t.Run("unauthenticated code", func(t *testing.T) {
		server := newGraphQLServer(t, http.StatusOK,
			`{"errors":[{"message":"token expired","extensions":{"code":"UNAUTHENTICATED"}}]}`)
		_, err := newTestClient(t, server.URL, "tok").GetFeed(context.Background(), feed.PageQuery{})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestClient_BadResponses(t *testing.T) {
	bodies := map[string]string{
		"not json":     `<html>`,
		"null data":    `{"data":null}`,
		"missing feed": `{"data":{}}`,
		"wrong shape":  `{"data":{"feed":{"posts":"many"}}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := newGraphQLServer(t, http.StatusOK, body)
			_, err := newTestClient(t, server.URL, "tok").GetFeed(context.Background(), feed.PageQuery{})
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func TestClient_GetMyTeams(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK,
		`{"data":{"myTeams":[{"teamId":"lions","teamName":"Lions"},{"teamId":""},{"teamId":"bears"}]}}`)
	client := newTestClient(t, server.URL, "tok")

	follows, err := client.GetMyTeams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []teamfilter.Follow{{TeamID: "lions", TeamName: "Lions"}, {TeamID: "bears"}}, follows)

	reqs := server.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "MyTeams", reqs[0].body.OperationName)
	assert.Equal(t, myTeamsQuery, reqs[0].body.Query)
}

func TestClient_GetMyTeamsEmpty(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, `{"data":{"myTeams":null}}`)

	follows, err := newTestClient(t, server.URL, "tok").GetMyTeams(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, follows)
	assert.Empty(t, follows)
}

func TestClient_GetBlockedUsers(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, `{"data":{"blockedUsers":["u1","u2"]}}`)

	blocked, err := newTestClient(t, server.URL, "tok").GetBlockedUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, blocked)

	empty := newGraphQLServer(t, http.StatusOK, `{"data":{"blockedUsers":null}}`)
	blocked, err = newTestClient(t, empty.URL, "tok").GetBlockedUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, blocked)
}

func TestClient_RateLimiterHonorsContext(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, `{"data":{"blockedUsers":[]}}`)
	client, err := NewClient(Config{
		Endpoint:          server.URL,
		Tokens:            staticToken("tok"),
		RequestsPerSecond: 0.001,
		Burst:             1,
	})
	require.NoError(t, err)

	_, err = client.GetBlockedUsers(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.GetBlockedUsers(ctx)
	require.Error(t, err)
	assert.Len(t, server.captured(), 1)
}

func TestClient_TransportError(t *testing.T) {
	server := newGraphQLServer(t, http.StatusOK, `{}`)
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url, "tok").GetBlockedUsers(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadResponse))
	assert.Contains(t, err.Error(), "request failed")
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "not a url", "/graphql"} {
		_, err := NewClient(Config{Endpoint: endpoint})
		assert.Error(t, err, endpoint)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"rfc3339", `"2026-03-01T12:00:00Z"`, false},
		{"rfc3339 with offset", `"2026-03-01T13:00:00+01:00"`, false},
		{"epoch millis", `1772366400000`, false},
		{"epoch millis string", `"1772366400000"`, false},
		{"null", `null`, true},
		{"empty", ``, true},
		{"garbage", `"last tuesday"`, true},
		{"object", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func intPtr(n int) *int {
	return &n
}
