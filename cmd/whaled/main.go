// Package main runs the dashboard as a headless HTTP server. It serves the
// same routes and handlers as the desktop app, without the window.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"whale-futures/config"
	"whale-futures/internal/api"
	"whale-futures/internal/app"
	"whale-futures/observability"
)

func main() {
	if err := godotenv.Load(); err != nil {
		observability.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("failed to load configuration", "error", err)
	}

	observability.InitLoggerWithLevel(cfg.Log.Production, observability.ParseLevel(cfg.Log.Level))
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.BuildDependencies(ctx, cfg)
	if err != nil {
		observability.Fatal("failed to initialize dependencies", "error", err)
	}

	application := app.New(cfg, deps)
	router := api.NewRouter(api.NewHandler(application, cfg), cfg)

	// WriteTimeout stays zero so the row stream is not cut off; the
	// router's Timeout middleware bounds every other route.
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	observability.Info("starting whale-futures",
		"addr", cfg.HTTP.Addr,
		"poll_ms", cfg.Polling.PollIntervalMs,
		"summary_provider", cfg.Summary.Provider)

	if err := application.Run(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
		observability.Error("server stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Shutdown(shutdownCtx)
	observability.Info("whale-futures stopped")
}
