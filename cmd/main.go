// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/config"
	"github.com/Shivanand-hulikatti/room-calendar/internal/database"
	"github.com/Shivanand-hulikatti/room-calendar/internal/handler"
	"github.com/Shivanand-hulikatti/room-calendar/internal/logging"
	"github.com/Shivanand-hulikatti/room-calendar/internal/repository"
	"github.com/Shivanand-hulikatti/room-calendar/internal/reservation"
	"github.com/Shivanand-hulikatti/room-calendar/internal/selection"
	"github.com/Shivanand-hulikatti/room-calendar/internal/service"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
	"github.com/Shivanand-hulikatti/room-calendar/internal/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Load configuration and logging ─────────────────────────────────
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	tp, err := tracing.Setup(cfg.JaegerEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	// ── 2. Connect to the store backend ───────────────────────────────────
	backend, closeBackend, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.StoreBackend).Fatal("store")
	}
	defer closeBackend()
	logger.WithField("backend", cfg.StoreBackend).Info("✓ Connected to store")

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	rooms, err := catalog.Parse(cfg.Rooms)
	if err != nil {
		logger.WithError(err).Fatal("room catalog")
	}
	cal := service.New(store.WithBreaker(backend, logger), rooms, logger,
		service.WithTracer(tp.Tracer()),
		service.WithDragPolicy(selection.ParsePolicy(cfg.DragPolicy)),
		service.WithResubscribeDelay(cfg.ResubscribeDelay),
		service.WithWriterOptions(reservation.WithMaxAttempts(cfg.WriteAttempts)),
	)
	sessions := service.NewSessions(cal)
	calendarHandler := handler.NewCalendarHandler(cal, sessions, logger)

	go func() {
		if err := cal.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("calendar listener stopped")
		}
	}()

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(logger))  // structured access log
	r.Use(handler.CORS)            // customer view is embedded cross-origin

	r.Get("/health", handler.HealthCheck)
	calendarHandler.Routes(r)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		logger.Infof("✓ Server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	<-ctx.Done()

	logger.Info("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		return
	}
	logger.Info("server stopped")
}

// openStore connects the configured backend and returns it with its cleanup.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool, logger), pool.Close, nil
	case config.BackendRedis:
		rdb, err := database.NewRedis(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisStore(rdb, cfg.RedisPrefix, logger), func() { _ = rdb.Close() }, nil
	default:
		logger.Warn("using the in-memory store; data is lost on exit")
		return store.NewMemory(), func() {}, nil
	}
}
