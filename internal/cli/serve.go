package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	feedhandlers "Sideline/internal/api/handlers/feed"
	"Sideline/internal/api/routes"
	"Sideline/internal/config"
	"Sideline/internal/metrics"
	"Sideline/internal/scheduler"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port      int
	RateLimit float64
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind a local HTTP bridge",
		Long: `Mount the feed engine and expose it over HTTP for a UI shell.

Routes: GET /feed, POST /feed/refresh, POST /feed/more, PUT|DELETE /feed/filter,
POST /feed/block, PUT|DELETE /session, GET /metrics, GET /health.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides HTTP_PORT)")
	cmd.Flags().Float64Var(&opts.RateLimit, "rate-limit", 20, "requests per second per client, 0 disables")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Port > 0 {
		cfg.HTTP.Port = opts.Port
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, opts.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("failed to close storage", "error", closeErr)
		}
	}()

	// A failed first fetch is kept in state and surfaced by GET /feed
	if err := a.engine.Mount(ctx); err != nil {
		logger.Warn("initial feed fetch failed", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	sched := scheduler.New(logger, cfg.Feed.APITimeout*2)
	if cfg.RefreshCron != "" {
		if err := sched.AddJob("refresh", cfg.RefreshCron, a.engine.Refresh); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		for _, job := range sched.ListJobs() {
			logger.Info("background job scheduled", "job", job.Name, "next_run", job.NextRun)
		}
	}

	router := routes.NewRouter(routes.RouterOptions{
		Feed:              feedhandlers.NewHandler(a.engine, cfg.Feed.APITimeout*2),
		Session:           feedhandlers.NewSessionHandler(a.session),
		Metrics:           metrics.Handler(registry),
		RequestsPerSecond: opts.RateLimit,
		Burst:             int(opts.RateLimit) * 2,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("sideline bridge listening", "port", cfg.HTTP.Port, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("sideline bridge stopped")
	return nil
}
