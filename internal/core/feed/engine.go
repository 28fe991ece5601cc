package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"Sideline/internal/core/session"
	"Sideline/internal/core/storage"
	"Sideline/internal/core/teamfilter"
	"Sideline/internal/metrics"
)

// Default timings
const (
	DefaultBlockedLoadDelay = 3 * time.Second
)

// Options tunes an Engine. Zero values fall back to the defaults.
type Options struct {
	Logger   *slog.Logger
	Clock    Clock
	OnChange func(State)

	PageLimit         int
	BlockedLoadDelay  time.Duration
	BlockedRefreshMax time.Duration
	// SnapshotMaxAge of zero accepts snapshots of any age
	SnapshotMaxAge time.Duration
}

// Engine owns one feed: its posts, filter, pagination and blocked-user set.
// All exported methods are safe for concurrent use. At most one refresh and
// one load-more run at a time; extra calls return immediately.
type Engine struct {
	router    *Router
	repo      Repository
	kv        storage.Store
	filters   *teamfilter.Store
	resolver  *teamfilter.Resolver
	snapshots *SnapshotCache
	clock     Clock
	logger    *slog.Logger
	onChange  func(State)
	opts      Options

	// lifetime of background work, cancelled by Dispose
	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	posts            []Post
	filter           teamfilter.Filter
	myTeams          []teamfilter.Follow
	blocked          BlockedSet
	localBlocked     BlockedSet
	lastErr          error
	blockedTimer     Timer
	lastBlockedFetch time.Time
	paging           pagination
	replaceSeq       uint64
	blockedGen       uint64
	blockedState     loaderState
	mode             AuthMode
	mounted          bool
	disposed         bool
	filterReady      bool
	refreshing       bool
	loadingMore      bool
}

// NewEngine creates an engine over repo, persisting through kv.
// sess may be nil for a guest-only engine.
func NewEngine(repo Repository, sess session.Provider, kv storage.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.BlockedLoadDelay <= 0 {
		opts.BlockedLoadDelay = DefaultBlockedLoadDelay
	}
	if opts.BlockedRefreshMax <= 0 {
		opts.BlockedRefreshMax = DefaultBlockedRefreshMax
	}

	logger := opts.Logger.With("component", "feed")
	filters := teamfilter.NewStore(kv, logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		router:    NewRouter(sess, repo, opts.PageLimit),
		repo:      repo,
		kv:        kv,
		filters:   filters,
		resolver:  teamfilter.NewResolver(repo, filters, logger),
		snapshots: NewSnapshotCache(kv, opts.SnapshotMaxAge, logger),
		clock:     opts.Clock,
		logger:    logger,
		onChange:  opts.OnChange,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		paging:    newPagination(Guest),
	}
}

// Mount decides the initial filter, paints any cached first page, schedules
// the blocked-user load and runs the first refresh. Mounting twice is a no-op.
func (e *Engine) Mount(ctx context.Context) error {
	mode := e.router.Mode()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.mounted {
		e.mu.Unlock()
		return nil
	}
	e.mounted = true
	e.mu.Unlock()

	filter := e.initialFilter(ctx, mode)
	var lastFetch time.Time
	if mode == Authenticated {
		lastFetch = loadBlockedFetchTime(ctx, e.kv)
	}
	cached, hit := e.snapshots.Load(ctx, mode, filter, e.clock.Now())

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	e.mode = mode
	e.filter = filter
	e.paging = newPagination(mode)
	if hit {
		e.posts = cached
	}
	if mode == Authenticated {
		e.blocked = BlockedSet{}
		e.lastBlockedFetch = lastFetch
		e.scheduleBlockedLoadLocked()
	}
	e.filterReady = true
	state := e.stateLocked()
	e.mu.Unlock()

	e.logger.Info("feed mounted",
		"mode", mode.String(),
		"filter", filter.Key(),
		"snapshot_posts", len(cached))
	e.notify(state)

	return e.Refresh(ctx)
}

// Refresh re-fetches page 1 under the current mode and replaces the list.
// It returns nil without fetching when a refresh is already running, the
// filter is not ready, or the session expired since the last operation.
func (e *Engine) Refresh(ctx context.Context) error {
	mode := e.router.Mode()

	e.mu.Lock()
	if !e.readyLocked() {
		e.mu.Unlock()
		metrics.IncSkipped("refresh", "not_ready")
		return nil
	}
	if e.refreshing {
		e.mu.Unlock()
		metrics.IncSkipped("refresh", "in_flight")
		return nil
	}
	if e.mode == Authenticated && mode == Guest {
		// Token went stale: abort and let the next action run as a guest
		e.enterGuestLocked()
		state := e.stateLocked()
		e.mu.Unlock()
		e.logger.Info("refresh aborted, session is no longer valid")
		metrics.IncSkipped("refresh", "stale_token")
		e.notify(state)
		return nil
	}
	e.refreshing = true
	seq := e.nextReplaceLocked()
	switching := e.mode != mode
	state := e.stateLocked()
	e.mu.Unlock()
	e.notify(state)
	defer e.endReplace(seq)

	if switching {
		e.switchMode(ctx, mode)
	}

	sess := e.router.Session()
	now := e.clock.Now()

	e.mu.Lock()
	filter := e.filter
	includeBlocked := false
	if mode == Authenticated {
		includeBlocked = ShouldRefetchBlocked(now, sess.ExpiresAt, e.lastBlockedFetch,
			e.blockedState == loaderLoaded, e.opts.BlockedRefreshMax)
		if e.blockedState == loaderIdle {
			e.scheduleBlockedLoadLocked()
		}
	}
	e.mu.Unlock()

	return e.fetchFirstPage(ctx, "refresh", mode, filter, includeBlocked)
}

// LoadMore appends the next page. It returns nil without fetching while any
// fetch is running, when there is no next page, or before the filter is ready.
// If the mode changed since the last page, or no page has landed in the
// current mode, it fetches page 1 and replaces the list instead.
func (e *Engine) LoadMore(ctx context.Context) error {
	mode := e.router.Mode()

	e.mu.Lock()
	if !e.readyLocked() {
		e.mu.Unlock()
		metrics.IncSkipped("loadMore", "not_ready")
		return nil
	}
	if e.refreshing || e.loadingMore {
		e.mu.Unlock()
		metrics.IncSkipped("loadMore", "in_flight")
		return nil
	}

	// No page has landed in this mode yet: start over at page 1
	switching := mode != e.mode
	if switching || e.paging.page == 0 {
		e.loadingMore = true
		state := e.stateLocked()
		e.mu.Unlock()
		e.notify(state)
		defer e.endLoadMore()

		if switching {
			e.logger.Info("auth mode changed, restarting pagination", "mode", mode.String())
			e.switchMode(ctx, mode)
		}

		e.mu.Lock()
		filter := e.filter
		e.mu.Unlock()
		return e.fetchFirstPage(ctx, "loadMore", mode, filter, false)
	}

	if !e.paging.hasNext {
		e.mu.Unlock()
		metrics.IncSkipped("loadMore", "no_next_page")
		return nil
	}

	filter := e.filter
	q := e.router.NextPage(mode, filter, e.paging)
	pageNum := e.paging.page + 1
	e.loadingMore = true
	state := e.stateLocked()
	e.mu.Unlock()
	e.notify(state)
	defer e.endLoadMore()

	start := time.Now()
	page, err := e.router.Fetch(ctx, mode, q)
	metrics.ObserveFetch("loadMore", mode.String(), start, err)
	if err != nil {
		return e.fail("loadMore", mode, err)
	}

	e.applyPage(ctx, mode, filter, page, Append, pageNum)
	return nil
}

// SetFilter switches the team filter and refetches page 1. Guests and filters
// equal to the current one as sets are no-ops. It runs even while a refresh is
// in flight; the older response is tolerated when it lands.
func (e *Engine) SetFilter(ctx context.Context, f teamfilter.Filter) error {
	mode := e.router.Mode()
	f = teamfilter.New(f...)

	e.mu.Lock()
	if !e.readyLocked() {
		e.mu.Unlock()
		metrics.IncSkipped("setFilter", "not_ready")
		return nil
	}
	if mode == Guest {
		if e.mode == Authenticated {
			e.enterGuestLocked()
			state := e.stateLocked()
			e.mu.Unlock()
			e.logger.Info("filter change ignored, session is no longer valid")
			metrics.IncSkipped("setFilter", "stale_token")
			e.notify(state)
			return nil
		}
		e.mu.Unlock()
		metrics.IncSkipped("setFilter", "guest")
		return nil
	}
	switching := e.mode != mode
	if !switching && f.Equal(e.filter) {
		e.mu.Unlock()
		metrics.IncSkipped("setFilter", "unchanged")
		return nil
	}
	e.refreshing = true
	seq := e.nextReplaceLocked()
	e.mu.Unlock()
	defer e.endReplace(seq)

	if switching {
		e.switchMode(ctx, mode)
	}

	if err := e.filters.Save(ctx, f); err != nil {
		e.logger.Warn("failed to persist team filter", "error", err)
	}

	e.mu.Lock()
	e.filter = f
	e.posts = nil
	e.paging = newPagination(mode)
	state := e.stateLocked()
	e.mu.Unlock()
	e.notify(state)

	e.logger.Debug("team filter changed", "filter", f.Key())
	return e.fetchFirstPage(ctx, "setFilter", mode, f, false)
}

// ResetFilter forgets the persisted filter and derives a new one from the
// viewer's followed teams
func (e *Engine) ResetFilter(ctx context.Context) error {
	if e.router.Mode() != Authenticated {
		return ErrNotAuthenticated
	}
	if err := e.filters.Clear(ctx); err != nil {
		e.logger.Warn("failed to clear team filter", "error", err)
	}
	f, err := e.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	return e.SetFilter(ctx, f)
}

// BlockAuthor hides userID's posts immediately, without a network round trip.
// The block itself is recorded server side by the caller.
func (e *Engine) BlockAuthor(userID string) error {
	if e.router.Mode() != Authenticated {
		return ErrNotAuthenticated
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.blocked == nil {
		e.blocked = BlockedSet{}
	}
	if e.localBlocked == nil {
		e.localBlocked = BlockedSet{}
	}
	e.blocked[userID] = struct{}{}
	e.localBlocked[userID] = struct{}{}
	e.posts = FilterBlocked(e.posts, BlockedSet{userID: {}})
	state := e.stateLocked()
	e.mu.Unlock()

	e.notify(state)
	return nil
}

// State returns a copy of the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Posts returns a copy of the current post list
func (e *Engine) Posts() []Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPosts(e.posts)
}

// Dispose stops background work. Responses that land afterwards are dropped.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.cancelBlockedLoadLocked()
	e.mu.Unlock()

	e.cancel()
	e.logger.Debug("feed disposed")
}

func (e *Engine) readyLocked() bool {
	return e.mounted && !e.disposed && e.filterReady
}

// initialFilter returns nil for guests. A resolver failure also yields the
// all-teams filter, which is not persisted so the next mount retries.
func (e *Engine) initialFilter(ctx context.Context, mode AuthMode) teamfilter.Filter {
	if mode == Guest {
		return nil
	}
	f, err := e.resolver.Initial(ctx)
	if err != nil {
		e.logger.Warn("failed to resolve default team filter, showing all teams", "error", err)
		return nil
	}
	return f
}

// switchMode resets the bookkeeping for mode. Pagination never carries over
// between modes.
func (e *Engine) switchMode(ctx context.Context, mode AuthMode) {
	if mode == Guest {
		e.mu.Lock()
		e.enterGuestLocked()
		e.mu.Unlock()
		return
	}

	filter := e.initialFilter(ctx, Authenticated)
	lastFetch := loadBlockedFetchTime(ctx, e.kv)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.mode = Authenticated
	e.filter = filter
	e.paging = newPagination(Authenticated)
	e.blocked = BlockedSet{}
	e.localBlocked = nil
	e.lastBlockedFetch = lastFetch
	e.cancelBlockedLoadLocked()
	e.scheduleBlockedLoadLocked()
}

func (e *Engine) enterGuestLocked() {
	e.mode = Guest
	e.filter = nil
	e.paging = newPagination(Guest)
	e.blocked = nil
	e.localBlocked = nil
	e.myTeams = nil
	e.cancelBlockedLoadLocked()
}

func (e *Engine) fetchFirstPage(ctx context.Context, op string, mode AuthMode, filter teamfilter.Filter, includeBlocked bool) error {
	q := e.router.FirstPage(mode, filter, includeBlocked)

	start := time.Now()
	page, err := e.router.Fetch(ctx, mode, q)
	metrics.ObserveFetch(op, mode.String(), start, err)
	if err != nil {
		return e.fail(op, mode, err)
	}

	e.applyPage(ctx, mode, filter, page, Replace, 1)
	return nil
}

// applyPage merges a fetched page. Responses for a mode the engine has left
// are dropped; responses for an older filter are merged as they are.
func (e *Engine) applyPage(ctx context.Context, mode AuthMode, filter teamfilter.Filter, page *Page, merge MergeMode, requested int) {
	now := e.clock.Now()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	if e.mode != mode {
		e.mu.Unlock()
		e.logger.Debug("dropping response for previous auth mode", "mode", mode.String())
		return
	}

	blockedFetched := false
	if mode == Authenticated {
		if page.BlockedUsers != nil {
			e.replaceBlockedLocked(page.BlockedUsers)
			e.lastBlockedFetch = now
			e.posts = FilterBlocked(e.posts, e.blocked)
			blockedFetched = true
		}
		if page.MyTeams != nil {
			e.myTeams = page.MyTeams
		}
	}

	incoming := page.Posts
	if mode == Authenticated {
		incoming = FilterBlocked(incoming, e.blocked)
	}
	e.posts = MergePage(e.posts, incoming, merge)

	e.paging.hasNext = page.HasNext
	e.paging.cursor = page.NextCursor
	e.paging.page = page.Page
	if e.paging.page <= 0 {
		e.paging.page = requested
	}
	e.lastErr = nil

	var snapshot []Post
	if merge == Replace {
		snapshot = copyPosts(e.posts)
	}
	state := e.stateLocked()
	e.mu.Unlock()

	if blockedFetched {
		metrics.IncBlockedLoad("refresh", nil)
		if err := saveBlockedFetchTime(ctx, e.kv, now); err != nil {
			e.logger.Warn("failed to persist blocked users fetch time", "error", err)
		}
	}
	if snapshot != nil {
		e.snapshots.Save(ctx, mode, filter, snapshot, now)
	}

	e.logger.Debug("feed page applied",
		"mode", mode.String(),
		"merge", merge.String(),
		"page", state.Page,
		"received", len(page.Posts),
		"total", len(state.Posts),
		"has_next", state.HasNext)
	e.notify(state)
}

// fail records a fetch error. The current list is left untouched.
func (e *Engine) fail(op string, mode AuthMode, err error) error {
	fetchErr := NewFetchError(op, mode, err)

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return fetchErr
	}
	e.lastErr = fetchErr
	state := e.stateLocked()
	e.mu.Unlock()

	e.logger.Error("feed fetch failed",
		"op", op,
		"mode", mode.String(),
		"error", err)
	e.notify(state)
	return fetchErr
}

func (e *Engine) nextReplaceLocked() uint64 {
	e.replaceSeq++
	return e.replaceSeq
}

// endReplace clears the refreshing flag unless a newer replace owns it
func (e *Engine) endReplace(seq uint64) {
	e.mu.Lock()
	if e.replaceSeq == seq {
		e.refreshing = false
	}
	state := e.stateLocked()
	disposed := e.disposed
	e.mu.Unlock()

	if !disposed {
		e.notify(state)
	}
}

func (e *Engine) endLoadMore() {
	e.mu.Lock()
	e.loadingMore = false
	state := e.stateLocked()
	disposed := e.disposed
	e.mu.Unlock()

	if !disposed {
		e.notify(state)
	}
}

func (e *Engine) notify(state State) {
	if e.onChange != nil {
		e.onChange(state)
	}
}

func (e *Engine) stateLocked() State {
	s := State{
		Err:               e.lastErr,
		Posts:             copyPosts(e.posts),
		SelectedFilter:    e.filter.TeamIDs(),
		Page:              e.paging.page,
		Mode:              e.mode,
		FilterInitialized: e.filterReady,
		IsRefreshing:      e.refreshing,
		IsLoadingMore:     e.loadingMore,
		HasNext:           e.paging.hasNext,
		BlockedLoaded:     e.blockedState == loaderLoaded,
	}
	if e.paging.cursor != nil {
		cursor := *e.paging.cursor
		s.Cursor = &cursor
	}
	if e.myTeams != nil {
		s.MyTeams = make([]teamfilter.Follow, len(e.myTeams))
		copy(s.MyTeams, e.myTeams)
	}
	return s
}

func copyPosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	copy(out, posts)
	return out
}
