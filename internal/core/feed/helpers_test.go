package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"Sideline/internal/core/session"
	"Sideline/internal/core/storage"
	"Sideline/internal/core/teamfilter"
	"Sideline/internal/db/memory"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock only moves when Advance is called. Due timers run synchronously.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeSession is a session whose validity tests flip at will
type fakeSession struct {
	mu        sync.Mutex
	expiresAt *time.Time
	valid     bool
}

func (s *fakeSession) IsTokenValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *fakeSession) CurrentSession() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return session.Session{ExpiresAt: s.expiresAt, UserID: "viewer"}
}

func (s *fakeSession) setValid(valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = valid
}

// fakeRepo records every request and answers through hooks
type fakeRepo struct {
	mu          sync.Mutex
	feedCalls   []PageQuery
	publicCalls []PageQuery
	teamsCalls  int
	blockCalls  int

	feed    func(q PageQuery) (*Page, error)
	public  func(q PageQuery) (*Page, error)
	teams   []teamfilter.Follow
	teamErr error
	blocked []string
	blkErr  error
}

func (r *fakeRepo) GetFeed(_ context.Context, q PageQuery) (*Page, error) {
	r.mu.Lock()
	r.feedCalls = append(r.feedCalls, q)
	hook := r.feed
	r.mu.Unlock()
	if hook == nil {
		return &Page{Page: 1}, nil
	}
	return hook(q)
}

func (r *fakeRepo) GetPublicFeed(_ context.Context, q PageQuery) (*Page, error) {
	r.mu.Lock()
	r.publicCalls = append(r.publicCalls, q)
	hook := r.public
	r.mu.Unlock()
	if hook == nil {
		return &Page{Page: 1}, nil
	}
	return hook(q)
}

func (r *fakeRepo) GetMyTeams(context.Context) ([]teamfilter.Follow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teamsCalls++
	return r.teams, r.teamErr
}

func (r *fakeRepo) GetBlockedUsers(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blockCalls++
	return r.blocked, r.blkErr
}

func (r *fakeRepo) feedQueries() []PageQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PageQuery(nil), r.feedCalls...)
}

func (r *fakeRepo) publicQueries() []PageQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PageQuery(nil), r.publicCalls...)
}

func (r *fakeRepo) blockedCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockCalls
}

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetFeed(ctx context.Context, q PageQuery) (*Page, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Page), args.Error(1)
}

func (m *MockRepository) GetPublicFeed(ctx context.Context, q PageQuery) (*Page, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Page), args.Error(1)
}

func (m *MockRepository) GetMyTeams(ctx context.Context) ([]teamfilter.Follow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]teamfilter.Follow), args.Error(1)
}

func (m *MockRepository) GetBlockedUsers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// failingKV fails every operation
type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errors.New("disk gone") }
func (failingKV) Set(context.Context, string, string) error   { return errors.New("disk gone") }
func (failingKV) Remove(context.Context, string) error        { return errors.New("disk gone") }

func newTestKV(t *testing.T) storage.Store {
	t.Helper()
	kv, err := memory.NewKVStore(64)
	require.NoError(t, err)
	return kv
}

func newTestEngine(repo Repository, sess session.Provider, kv storage.Store, clock *fakeClock) *Engine {
	return NewEngine(repo, sess, kv, Options{Clock: clock, PageLimit: 5})
}

// post builds a post created minutesAgo before testEpoch
func post(id string, minutesAgo int, author string) Post {
	return Post{
		ID:        id,
		AuthorID:  author,
		CreatedAt: testEpoch.Add(-time.Duration(minutesAgo) * time.Minute),
		Content:   "post " + id,
	}
}

// postRange builds posts p<from>..p<to>, newest first
func postRange(from, to int) []Post {
	posts := make([]Post, 0, to-from+1)
	for i := from; i <= to; i++ {
		posts = append(posts, post(fmt.Sprintf("p%02d", i), i, "author"))
	}
	return posts
}

func ids(posts []Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func requireSorted(t *testing.T, posts []Post) {
	t.Helper()
	require.True(t, sort.SliceIsSorted(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	}), "posts must be ordered newest first")
}

func requireUnique(t *testing.T, posts []Post) {
	t.Helper()
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		require.False(t, seen[p.ID], "duplicate post %s", p.ID)
		seen[p.ID] = true
	}
}
