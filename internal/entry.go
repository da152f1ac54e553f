// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/records"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/transfer"
	"github.com/starford/raido/internal/vault"
	"github.com/starford/raido/internal/watch"
)

// recordsPath returns the configured transfer log location, or the
// per-user default. The log deliberately lives outside the vault so it
// survives vault deletion and reinstalls.
func recordsPath(cfg *Config) (string, error) {
	if cfg.Transfers.RecordsPath != "" {
		return cfg.Transfers.RecordsPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".raido", "records.json"), nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. In MCP mode stdout carries the
	// protocol, so logs go to stderr.
	logOut := os.Stdout
	if app.mcpMode {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	v, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Durable transfer log.
	logPath, err := recordsPath(cfg)
	if err != nil {
		return err
	}
	recStore := records.NewStore(logPath)

	// Optional SQLite record index, rebuilt from the log at startup.
	var idx *index.DB
	if cfg.SQLite.Path != "" {
		idx, err = index.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init record index: %w", err)
		}
		defer idx.Close()
		if err := index.Rebuild(idx, recStore, logger); err != nil {
			logger.Warn("record index rebuild failed", slog.String("error", err.Error()))
		}
	}

	// SSE broker.
	broker := sse.NewBroker(100 * time.Millisecond)
	defer broker.Close()

	orch := transfer.New(v, recStore, idx, cfg.Snapshot, cfg.Transfers.DownloadDir, logger)
	eng := engine.New(v, orch, func() string { return cfg.Store.CustomDomain }, logger,
		engine.WithEvents(broker.PublishEngineEvent))
	defer eng.Close()

	if app.document != "" {
		eng.SetDocument(app.document)
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher feeding passive change notifications.
	g.Go(func() error {
		if err := watch.Watch(gCtx, cfg.Vault.Path, logger, eng.ContentChanged); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if app.mcpMode {
		// MCP stdio mode: no HTTP surface.
		g.Go(func() error {
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(eng, recStore).ServeStdio()
		})
		return g.Wait()
	}

	// Build API router.
	apiRouter := api.NewRouter(eng, recStore, idx, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
