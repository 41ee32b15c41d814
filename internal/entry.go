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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/capes/internal/api"
	"github.com/starford/capes/internal/mcpserver"
	"github.com/starford/capes/internal/parser"
	"github.com/starford/capes/internal/sse"
)

const (
	shutdownTimeout    = 10 * time.Second
	invalidateThrottle = 2 * time.Second
	sseKeepAlive       = 25 * time.Second
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errNoConfig
	}
	app.logLevel = new(slog.LevelVar)
	app.logLevel.Set(app.config.App.LogLevel)
	return app, nil
}

func (a *application) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.logLevel,
	}))
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("records_driver", cfg.Records.Driver),
		slog.String("media_driver", cfg.Media.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(invalidateThrottle, sseKeepAlive)
	defer broker.Close()

	cat, err := openCatalog(ctx, cfg, broker, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(cat, cfg, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if app.configPath != "" {
		g.Go(func() error {
			if err := WatchConfig(gCtx, app.configPath, app.logLevel, logger); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Open SSE streams would otherwise hold Shutdown until the deadline.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

// errShutdown cancels the group so the config watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the catalog tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}

	logger := app.logger()
	slog.SetDefault(logger)

	cat, err := openCatalog(ctx, app.config, nil, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	logger.Info("MCP server starting",
		slog.String("records_driver", app.config.Records.Driver),
		slog.String("media_driver", app.config.Media.Driver))

	return mcpserver.New(cat.svc, app.config.App.HTTP.MaxImageBytes).ServeStdio()
}

// newHandler builds the root router: middleware, health probes and the
// catalog routes.
func newHandler(cat *catalog, cfg *Config, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

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

	r.Mount("/", api.NewRouter(cat.svc, api.RouterConfig{
		Limits: parser.Limits{
			MaxImages:     cfg.Catalog.MaxImagesPerBatch,
			MaxImageBytes: cfg.App.HTTP.MaxImageBytes,
		},
		MaxBodyBytes:   cfg.App.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.App.HTTP.AllowedOrigins,
		Media:          cat.localMedia,
		Events:         events,
	}))

	return r
}
