package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/s1natex/category-tasks-api/internal/config"
	"github.com/s1natex/category-tasks-api/internal/middleware"
	"github.com/s1natex/category-tasks-api/internal/tasks"
	"github.com/s1natex/category-tasks-api/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional config file (yaml, json or toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tasks-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	logger := newLogger(os.Stdout, level, cfg.Server.Environment)
	slog.SetDefault(logger) // for third-party packages that use slog

	if cfg.Server.Workers > 0 {
		prev := runtime.GOMAXPROCS(cfg.Server.Workers)
		logger.Info("gomaxprocs_set", slog.Int("workers", cfg.Server.Workers), slog.Int("previous", prev))
	}
	if cfg.Server.Reload {
		watching := loader.Watch(func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("config_reload_failed", slog.String("error", err.Error()))
				return
			}
			level.Set(next.Log.SlogLevel())
			logger.Info("config_reloaded", slog.String("log_level", next.Log.Level))
		})
		if !watching {
			logger.Warn("config_reload_disabled", slog.String("reason", "no config file"))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Server.Environment, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing_shutdown_error", slog.String("error", err.Error()))
		}
	}()

	repo, closeRepo, err := newRepository(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logger.Error("store_close_error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("store_ready", slog.String("driver", cfg.Store.Driver))

	svc := tasks.NewService(repo, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newRouter(svc, logger, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", slog.String("error", err.Error()))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newRepository picks the storage backend. The returned close func is never nil.
func newRepository(ctx context.Context, cfg config.StoreConfig) (tasks.Repository, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn, err := sqliteDSN(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo, err := tasks.NewSQLiteRepo(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.ApplyMigrations(ctx); err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case "", "memory":
		return tasks.NewInMemoryRepo(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// sqliteDSN passes URIs ("file:...") and ":memory:" through and turns a plain
// filesystem path into a file DSN, creating its directory.
func sqliteDSN(raw string) (string, error) {
	if strings.HasPrefix(raw, "file:") || strings.Contains(raw, ":memory:") {
		return raw, nil
	}
	dsn, err := tasks.SQLiteFileDSN(raw)
	if err != nil {
		return "", fmt.Errorf("sqlite path %q: %w", raw, err)
	}
	return dsn, nil
}

// newRouter wires the health endpoint, task routes, and middleware stack
func newRouter(svc *tasks.Service, logger *slog.Logger, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(middleware.RequestID)

	// /tasks/ and /tasks resolve to the same route
	r.Use(chimw.StripSlashes)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.MetricsMiddleware)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", "traceparent"},
		ExposedHeaders:   []string{"X-Request-Id", middleware.TraceIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))

	// Our structured request logger (includes req_id).
	r.Use(middleware.RequestLogger(logger))

	// ---- Routes ----

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	tasks.RegisterRoutes(r, svc,
		tasks.WithDeleteMessage(cfg.Messages.DeleteSuccess),
		tasks.WithLogger(logger),
	)

	return r
}

func newLogger(w io.Writer, level slog.Leveler, environment string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("env", environment))
}
