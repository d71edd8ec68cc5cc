package main

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/mealboard/internal/config"
	"github.com/mmynk/mealboard/internal/middleware"
	"github.com/mmynk/mealboard/internal/schedule"
	"github.com/mmynk/mealboard/internal/service"
	"github.com/mmynk/mealboard/internal/storage/memory"
	"github.com/mmynk/mealboard/internal/storage/mongostore"
	"github.com/mmynk/mealboard/internal/storage/sqlite"
	"github.com/mmynk/mealboard/pkg/logging"
)

const (
	heartbeatInterval = 15 * time.Second
	connectTimeout    = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(reg)

	model, err := schedule.New(ctx, backend, schedule.WithObserver(metrics.ObserveOp))
	if err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}
	defer model.Close()

	events := service.NewEventHub(model, heartbeatInterval)
	defer events.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger, middleware.CORS, metrics.Handler)

	r.Mount("/api", service.Routes(
		service.NewGroupService(model),
		service.NewMealService(model),
		events,
	))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := model.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	if cfg.StaticPath != "" {
		staticDir, err := filepath.Abs(cfg.StaticPath)
		if err != nil {
			return fmt.Errorf("failed to resolve static path: %w", err)
		}
		slog.Info("Serving static files", "path", staticDir)
		r.Handle("/*", staticHandler(staticDir))
	}

	// Wrap with h2c for HTTP/2 without TLS
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting",
			"address", cfg.Addr,
			"backend", model.Backend(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.Shutdown())
	events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// openBackend connects the storage selected by cfg and wraps it in the
// matching persistence strategy.
func openBackend(ctx context.Context, cfg *config.Config) (schedule.Backend, func(), error) {
	kind, err := cfg.Backend()
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case config.BackendRemote:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		store, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		slog.Info("Storage initialized", "backend", kind, "database", cfg.MongoDatabase)
		return schedule.NewRemoteBackend(store), closer(store.Close), nil

	case config.BackendMemory:
		store := memory.New()
		slog.Warn("Using in-memory storage; state is lost on restart")
		return schedule.NewRemoteBackend(store), closer(store.Close), nil

	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "backend", kind, "database", cfg.DBPath)
		return schedule.NewLocalBackend(store), closer(store.Close), nil
	}
}

func closer(fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			slog.Warn("Failed to close storage", "error", err)
		}
	}
}

// staticHandler serves files from dir, falling back to index.html for
// paths that do not exist.
func staticHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(dir, filepath.Clean(urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}

		http.ServeFile(w, r, filePath)
	})
}
