package feed

import (
	"Sideline/internal/metrics"
)

// loaderState tracks the deferred blocked-user load
type loaderState int

const (
	loaderIdle loaderState = iota
	loaderScheduled
	loaderLoaded
)

// scheduleBlockedLoadLocked starts the one-shot timer. The load never runs
// before the filter is ready and never runs twice for one schedule.
func (e *Engine) scheduleBlockedLoadLocked() {
	if e.disposed || e.blockedState == loaderScheduled {
		return
	}
	e.blockedGen++
	gen := e.blockedGen
	e.blockedState = loaderScheduled
	e.blockedTimer = e.clock.AfterFunc(e.opts.BlockedLoadDelay, func() {
		e.runBlockedLoad(gen)
	})
}

func (e *Engine) cancelBlockedLoadLocked() {
	if e.blockedTimer != nil {
		e.blockedTimer.Stop()
		e.blockedTimer = nil
	}
	e.blockedGen++
	e.blockedState = loaderIdle
}

// runBlockedLoad fetches the blocked set and removes blocked authors from the
// posts already on screen. A failed load goes back to idle and is scheduled
// again by the next refresh.
func (e *Engine) runBlockedLoad(gen uint64) {
	e.mu.Lock()
	if e.disposed || gen != e.blockedGen || e.mode != Authenticated {
		e.mu.Unlock()
		return
	}
	e.blockedTimer = nil
	e.mu.Unlock()

	if e.router.Mode() != Authenticated {
		e.resetBlockedLoad(gen)
		e.logger.Debug("skipping blocked users load, session is no longer valid")
		return
	}

	ids, err := e.repo.GetBlockedUsers(e.ctx)
	metrics.IncBlockedLoad("deferred", err)
	if err != nil {
		e.resetBlockedLoad(gen)
		e.logger.Warn("failed to load blocked users", "error", err)
		return
	}

	now := e.clock.Now()

	e.mu.Lock()
	if e.disposed || gen != e.blockedGen {
		e.mu.Unlock()
		return
	}
	e.replaceBlockedLocked(ids)
	e.lastBlockedFetch = now
	e.blockedState = loaderLoaded
	before := len(e.posts)
	e.posts = FilterBlocked(e.posts, e.blocked)
	removed := before - len(e.posts)
	state := e.stateLocked()
	e.mu.Unlock()

	if err := saveBlockedFetchTime(e.ctx, e.kv, now); err != nil {
		e.logger.Warn("failed to persist blocked users fetch time", "error", err)
	}

	e.logger.Debug("blocked users loaded",
		"blocked", len(ids),
		"removed_posts", removed)
	e.notify(state)
}

// replaceBlockedLocked installs the server's blocked list. Authors blocked
// locally this session stay blocked whatever the server returns.
func (e *Engine) replaceBlockedLocked(ids []string) {
	blocked := NewBlockedSet(ids)
	for id := range e.localBlocked {
		blocked[id] = struct{}{}
	}
	e.blocked = blocked
}

func (e *Engine) resetBlockedLoad(gen uint64) {
	e.mu.Lock()
	if gen == e.blockedGen && e.blockedState == loaderScheduled {
		e.blockedState = loaderIdle
	}
	e.mu.Unlock()
}
