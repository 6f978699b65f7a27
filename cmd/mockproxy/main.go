// Package main serves the fake backend proxy from e2e/mocks on a local
// port, so the dashboard and browser tests can run without the real
// upstream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whale-futures/e2e/mocks"
	"whale-futures/observability"
)

func main() {
	observability.InitLogger(false)

	port := os.Getenv("MOCK_PROXY_PORT")
	if port == "" {
		port = "9090"
	}

	mock := mocks.New()
	if key := os.Getenv("MOCK_PROXY_API_KEY"); key != "" {
		mock.RequireAPIKey(key)
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mock,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		observability.Info("starting mock proxy", "port", port, "url", "http://localhost:"+port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down mock proxy...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}
	observability.Info("mock proxy stopped")
}
