package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"Sideline/internal/config"
	"Sideline/internal/core/feed"
	"Sideline/internal/core/session"
	"Sideline/internal/core/storage"
	"Sideline/internal/db/memory"
	"Sideline/internal/db/postgres"
	"Sideline/internal/db/redis"
	"Sideline/internal/db/sqlite"
	"Sideline/internal/feedapi"
)

// app holds the wired components shared by the commands
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	kv      storage.Store
	session *session.TokenSession
	client  *feedapi.Client
	engine  *feed.Engine
	closeKV func() error
}

// newLogger builds the process logger
func newLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openStore opens the configured key-value backend
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		kv, err := memory.NewKVStore(cfg.Storage.MemoryCapacity)
		if err != nil {
			return nil, nil, err
		}
		return kv, noop, nil

	case config.BackendSQLite:
		kv, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewKVStore(db, logger), db.Close, nil

	case config.BackendRedis:
		kv, err := redis.NewKVStore(ctx, cfg.Storage.RedisURL, cfg.Storage.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Storage.Backend)
}

// newApp wires storage, session, API client and engine from cfg
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, onChange func(feed.State)) (*app, error) {
	kv, closeKV, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	sess, err := session.NewTokenSession(cfg.Feed.AccessToken)
	if err != nil {
		_ = closeKV()
		return nil, fmt.Errorf("invalid FEED_ACCESS_TOKEN: %w", err)
	}

	client, err := feedapi.NewClient(feedapi.Config{
		Endpoint:          cfg.Feed.APIURL,
		Tokens:            sess,
		Logger:            logger,
		Timeout:           cfg.Feed.APITimeout,
		RequestsPerSecond: cfg.Feed.APIRequestsPerSec,
		Burst:             2,
	})
	if err != nil {
		_ = closeKV()
		return nil, err
	}

	engine := feed.NewEngine(client, sess, kv, feed.Options{
		Logger:            logger,
		OnChange:          onChange,
		PageLimit:         cfg.Feed.PageLimit,
		BlockedLoadDelay:  cfg.Feed.BlockedLoadDelay,
		BlockedRefreshMax: cfg.Feed.BlockedRefreshMax,
		SnapshotMaxAge:    cfg.Feed.SnapshotMaxAge,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		session: sess,
		client:  client,
		engine:  engine,
		closeKV: closeKV,
	}, nil
}

func (a *app) Close() error {
	a.engine.Dispose()
	return a.closeKV()
}
