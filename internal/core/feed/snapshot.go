package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"Sideline/internal/core/storage"
	"Sideline/internal/core/teamfilter"
	"Sideline/internal/metrics"
)

const snapshotKeyPrefix = "feed_snapshot_v1"

// SnapshotKey returns the storage key for mode and filter
func SnapshotKey(mode AuthMode, f teamfilter.Filter) string {
	return fmt.Sprintf("%s:%s:%s", snapshotKeyPrefix, mode, f.Key())
}

type snapshotRecord struct {
	Posts []Post `json:"posts"`
	TS    int64  `json:"ts"`
}

// SnapshotCache keeps the last successful first page per mode and filter
type SnapshotCache struct {
	kv     storage.Store
	logger *slog.Logger
	maxAge time.Duration
}

// NewSnapshotCache creates a snapshot cache. A maxAge of zero keeps snapshots forever.
func NewSnapshotCache(kv storage.Store, maxAge time.Duration, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{kv: kv, maxAge: maxAge, logger: logger}
}

// Load returns the cached first page for mode and filter
func (c *SnapshotCache) Load(ctx context.Context, mode AuthMode, f teamfilter.Filter, now time.Time) ([]Post, bool) {
	key := SnapshotKey(mode, f)
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			metrics.SnapshotLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.SnapshotLookups.WithLabelValues("error").Inc()
			c.logger.Warn("failed to read feed snapshot", "key", key, "error", err)
		}
		return nil, false
	}

	var rec snapshotRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		metrics.SnapshotLookups.WithLabelValues("error").Inc()
		c.logger.Warn("malformed feed snapshot, dropping", "key", key, "error", err)
		c.evict(ctx, mode, f)
		return nil, false
	}

	if c.maxAge > 0 && now.Sub(time.UnixMilli(rec.TS)) > c.maxAge {
		metrics.SnapshotLookups.WithLabelValues("stale").Inc()
		c.evict(ctx, mode, f)
		return nil, false
	}

	metrics.SnapshotLookups.WithLabelValues("hit").Inc()
	return MergePage(nil, rec.Posts, Replace), true
}

// Save stores posts as the first page for mode and filter. Failures are logged
// and dropped.
func (c *SnapshotCache) Save(ctx context.Context, mode AuthMode, f teamfilter.Filter, posts []Post, now time.Time) {
	key := SnapshotKey(mode, f)
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.Marshal(snapshotRecord{Posts: posts, TS: now.UnixMilli()})
	if err == nil {
		err = c.kv.Set(ctx, key, string(data))
	}
	if err != nil {
		metrics.SnapshotWriteErrors.Inc()
		c.logger.Warn("failed to write feed snapshot", "key", key, "error", err)
	}
}

// Remove drops the snapshot for mode and filter
func (c *SnapshotCache) Remove(ctx context.Context, mode AuthMode, f teamfilter.Filter) error {
	return c.kv.Remove(ctx, SnapshotKey(mode, f))
}

func (c *SnapshotCache) evict(ctx context.Context, mode AuthMode, f teamfilter.Filter) {
	if err := c.Remove(ctx, mode, f); err != nil {
		c.logger.Warn("failed to drop feed snapshot", "key", SnapshotKey(mode, f), "error", err)
	}
}
