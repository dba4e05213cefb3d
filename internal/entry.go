// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/decisionrecords/internal/api"
	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/mcpserver"
	"github.com/starford/decisionrecords/internal/metrics"
	"github.com/starford/decisionrecords/internal/recordservice"
	"github.com/starford/decisionrecords/internal/sse"
	"github.com/starford/decisionrecords/internal/storage"
	"github.com/starford/decisionrecords/internal/workspace"
)

var errConfigRequired = errors.New("config is required")

// NewLogger builds the process logger. Long-running modes log JSON; one-shot
// commands log text.
func NewLogger(level slog.Level, w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Services bundles the components built from one workspace.
type Services struct {
	Settings *workspace.Settings
	Store    *storage.FS
	Records  *recordservice.Service
	Metrics  *metrics.Metrics
}

// NewServices opens the record directory of settings and wires the record
// service. reg may be nil when metrics are not exported.
func NewServices(settings *workspace.Settings, logger *slog.Logger, reg prometheus.Registerer) (*Services, error) {
	store, err := storage.NewFS(settings.RecordDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	records := recordservice.NewService(store, recordservice.Config{
		Format:        settings.Format,
		Template:      settings.Template,
		Translations:  settings.Translations,
		DefaultStatus: settings.DefaultStatus,
	}, recordservice.WithLogger(logger), recordservice.WithMetrics(m))
	return &Services{Settings: settings, Store: store, Records: records, Metrics: m}, nil
}

// openIndex opens the relation index and runs the initial sync.
func openIndex(cfg *Config, svc *Services, logger *slog.Logger) (*index.DB, error) {
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.Sync(db, svc.Store, svc.Records.Phrases(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return db, nil
}

// Run starts the HTTP server, the index watcher and the event stream and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	if err := app.resolve(opts); err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(cfg.App.LogLevel, os.Stdout, true)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("record_dir", app.settings.RecordDir),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := NewServices(app.settings, logger, reg)
	if err != nil {
		return err
	}
	db, err := openIndex(cfg, svc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(api.NewService(svc.Records, db), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health and metrics endpoints are unauthenticated.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return index.Watch(gCtx, db, svc.Store, svc.Records.Phrases(), logger, broker.PublishRecordEvent)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been shut down so the
// watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio until the client disconnects. Logs go
// to stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	if err := app.resolve(opts); err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(cfg.App.LogLevel, os.Stderr, true)
	slog.SetDefault(logger)

	svc, err := NewServices(app.settings, logger, nil)
	if err != nil {
		return err
	}
	db, err := openIndex(cfg, svc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := index.Watch(watchCtx, db, svc.Store, svc.Records.Phrases(), logger, nil); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting", slog.String("record_dir", app.settings.RecordDir))
	return mcpserver.New(svc.Records, svc.Store, db, logger).ServeStdio()
}
