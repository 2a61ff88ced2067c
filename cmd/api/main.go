// Package main is the entry point for the action API server.
//
// The server carries the two synchronous endpoints a reminder message links
// to: skip today and remind me later. Everything else in the engine runs in
// the sweeper Lambda; this process exists so a button tap in the chat client
// gets an immediate, classified answer.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

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

	"github.com/go-playground/validator/v10"

	"habitpulse/internal/actions"
	"habitpulse/internal/api"
	"habitpulse/internal/config"
	"habitpulse/internal/db"
	"habitpulse/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("action API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	pool := db.NewPoolManager(cfg.Database, logger)
	defer pool.Close()

	ledger := db.NewFollowUpStatusRepository(pool)
	habits := db.NewHabitRepository(pool)
	prefs := db.NewPreferencesRepository(pool)

	classifier := notify.NewErrorClassifier(pool, logger)

	svc := actions.NewService(actions.ServiceConfig{
		Ledger:     ledger,
		Habits:     habits,
		Prefs:      prefs,
		Classifier: classifier,
		Logger:     logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Actions: api.NewActionHandler(svc, validator.New(), logger),
		Probes:  []api.HealthProbe{dbProbe{pool: pool}},
		Logger:  logger,
	})

	return serve(router, cfg, logger)
}

// dbProbe reports database reachability through the managed pool. Acquire
// validates the live handle and recreates it when the probe fails, so a
// passing health check means the pool is actually usable.
type dbProbe struct {
	pool *db.PoolManager
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	_, err := p.pool.Acquire(ctx)
	return err
}

// serve runs the HTTP server until a shutdown signal or server error.
func serve(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given level string.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
