package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"familygallery/internal/app"
	"familygallery/internal/config"
	"familygallery/internal/handlers"
	"familygallery/internal/logging"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	startup := handlers.NewStartup("Database connection", "Services", "HTTP routes")

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start")
	}
	defer a.Close()
	startup.CompleteStep("Database connection")
	startup.CompleteStep("Services")

	handler, err := a.Router(startup)
	if err != nil {
		logger.WithError(err).Fatal("failed to build routes")
	}
	startup.CompleteStep("HTTP routes")

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DeletionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()
	startup.MarkReady()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.DeletionTimeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
