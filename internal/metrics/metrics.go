// Package metrics holds the Prometheus collectors of the feed engine and its API client
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sideline_feed_fetch_duration_seconds",
		Help:    "Duration of feed page fetches issued by the engine",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "mode", "status"})

	FeedFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_feed_fetch_total",
		Help: "Feed page fetches issued by the engine",
	}, []string{"op", "mode", "status"})

	FeedSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_feed_skipped_total",
		Help: "Feed operations that returned early on a guard",
	}, []string{"op", "reason"})

	MergedPostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_merged_posts_total",
		Help: "Posts received by the merge engine",
	}, []string{"merge"})

	BlockedPostsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sideline_blocked_posts_dropped_total",
		Help: "Posts removed because their author is blocked",
	})

	BlockedUserLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_blocked_user_loads_total",
		Help: "Blocked-user set loads by source and status",
	}, []string{"source", "status"})

	SnapshotLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_snapshot_lookups_total",
		Help: "Snapshot cache lookups by result",
	}, []string{"result"})

	SnapshotWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sideline_snapshot_write_errors_total",
		Help: "Snapshot cache writes that failed and were skipped",
	})

	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sideline_api_request_duration_seconds",
		Help:    "Duration of GraphQL requests to the feed API",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "status"})

	APIRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_api_request_total",
		Help: "GraphQL requests to the feed API",
	}, []string{"operation", "status"})
)

// MustRegister registers every collector on registerer
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedFetchDuration,
		FeedFetchTotal,
		FeedSkippedTotal,
		MergedPostsTotal,
		BlockedPostsDropped,
		BlockedUserLoads,
		SnapshotLookups,
		SnapshotWriteErrors,
		APIRequestDuration,
		APIRequestTotal,
	)
}

// Handler serves the metrics gathered by gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveFetch records one engine-level feed fetch
func ObserveFetch(op, mode string, start time.Time, err error) {
	s := status(err)
	FeedFetchDuration.WithLabelValues(op, mode, s).Observe(time.Since(start).Seconds())
	FeedFetchTotal.WithLabelValues(op, mode, s).Inc()
}

// ObserveAPIRequest records one GraphQL round trip
func ObserveAPIRequest(operation string, start time.Time, err error) {
	if operation == "" {
		operation = "unknown"
	}
	s := status(err)
	APIRequestDuration.WithLabelValues(operation, s).Observe(time.Since(start).Seconds())
	APIRequestTotal.WithLabelValues(operation, s).Inc()
}

// IncSkipped counts an operation that returned early
func IncSkipped(op, reason string) {
	FeedSkippedTotal.WithLabelValues(op, reason).Inc()
}

// IncBlockedLoad counts a blocked-user set load
func IncBlockedLoad(source string, err error) {
	BlockedUserLoads.WithLabelValues(source, status(err)).Inc()
}
