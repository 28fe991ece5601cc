package feed

import (
	"context"
	"strconv"
	"time"

	"Sideline/internal/core/storage"
)

// BlockedLastFetchKey stores the epoch millis of the last blocked-user fetch
const BlockedLastFetchKey = "blocked_users_last_fetch"

// DefaultBlockedRefreshMax caps the blocked-user refresh interval
const DefaultBlockedRefreshMax = 5 * time.Minute

// BlockedRefreshInterval returns min(half the remaining token lifetime, ceiling).
// Without expiry information the interval is ceiling.
func BlockedRefreshInterval(now time.Time, expiresAt *time.Time, ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		ceiling = DefaultBlockedRefreshMax
	}
	if expiresAt == nil {
		return ceiling
	}
	half := expiresAt.Sub(now) / 2
	if half < 0 {
		half = 0
	}
	if half < ceiling {
		return half
	}
	return ceiling
}

// ShouldRefetchBlocked decides whether a refresh also re-fetches blocked users.
// It never fires before the deferred load has completed once.
func ShouldRefetchBlocked(now time.Time, expiresAt *time.Time, lastFetch time.Time, loadedOnce bool, ceiling time.Duration) bool {
	if !loadedOnce {
		return false
	}
	return now.Sub(lastFetch) > BlockedRefreshInterval(now, expiresAt, ceiling)
}

// loadBlockedFetchTime reads the persisted fetch time; zero when absent or unreadable
func loadBlockedFetchTime(ctx context.Context, kv storage.Store) time.Time {
	raw, err := kv.Get(ctx, BlockedLastFetchKey)
	if err != nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func saveBlockedFetchTime(ctx context.Context, kv storage.Store, at time.Time) error {
	return kv.Set(ctx, BlockedLastFetchKey, strconv.FormatInt(at.UnixMilli(), 10))
}
