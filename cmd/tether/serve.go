package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tether-go/tether/internal/config"
	"github.com/tether-go/tether/pkg/live"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
		host       string
		backend    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server",
		Long: `Run a live server hosting the built-in demo component.

The demo is a counter wired through a shared store and, when a
durable backend is configured, a persisted counter that survives
restarts. It exists to exercise the full stack: stores, the
UseStore binding, the live session loop, and persistence.

Examples:
  tether serve
  tether serve --port=8080
  tether serve --backend=sql --config=./tether.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, port, host, backend)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to tether.json (default: search upward from cwd)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from tether.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from tether.json)")
	cmd.Flags().StringVarP(&backend, "persist", "b", "", "Persistence backend override (memory, file, sql, redis, s3)")

	return cmd
}

func runServe(configPath string, port int, host string, backend string) error {
	// .env is optional; absence is the normal case.
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if backend != "" {
		cfg.Persist.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	demo, closeDemo, err := newDemo(cfg, logger)
	if err != nil {
		warn("persistence unavailable, demo state is in-memory only")
		logger.Warn("persistence unavailable", "error", err)
		demo, closeDemo = newMemoryDemo(), func() {}
	}
	defer closeDemo()

	title := cfg.Name
	if title == "" {
		title = "Tether Demo"
	}
	srv := live.NewServer(demo,
		live.WithLogger(logger),
		live.WithMetrics(live.NewMetrics()),
		live.WithTracing(),
		live.WithTitle(title),
		live.WithSessionConfig(sessionConfig(cfg.Session)),
	)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Handle("/*", srv)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mr := chi.NewRouter()
		mr.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mr,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	printBanner()
	success("serving on http://%s", cfg.Addr())
	if cfg.Server.MetricsAddr != "" {
		info("metrics on http://%s/metrics", cfg.Server.MetricsAddr)
	}
	info("press Ctrl+C to stop")

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		errorMsg("server failed: %v", err)
		return err
	case <-sigCh:
	}

	info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("session shutdown incomplete", "error", err)
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	success("stopped")
	return nil
}

// newLogger builds the process logger from the log config.
func newLogger(lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// sessionConfig translates the duration strings from tether.json into
// live session tuning. Unparseable durations keep the default.
func sessionConfig(sc config.SessionConfig) *live.SessionConfig {
	out := &live.SessionConfig{
		MaxEventQueue: sc.EventQueue,
	}
	if d, err := time.ParseDuration(sc.Heartbeat); err == nil && d > 0 {
		out.HeartbeatInterval = d
	}
	if d, err := time.ParseDuration(sc.ReadTimeout); err == nil && d > 0 {
		out.ReadTimeout = d
	}
	return out
}
