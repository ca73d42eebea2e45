package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/api"
	"github.com/pds-match-service/internal/app"
	"github.com/pds-match-service/internal/config"
	"github.com/pds-match-service/internal/logging"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise services")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	// Concurrent deploys race on compare-and-swap, so at most one bump wins per hash change.
	state, err := application.Tracker.StoreOrIncrement(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to record algorithm version")
	}

	logger.WithFields(logrus.Fields{
		"host":              cfg.Server.Host,
		"port":              cfg.Server.Port,
		"algorithm_version": state.Version,
		"environment":       cfg.Environment,
	}).Info("Starting PDS match service")

	checks := make(map[string]api.HealthCheck)
	for name, check := range application.HealthChecks() {
		checks[name] = check
	}

	deps := api.Dependencies{
		Matcher:    application.Orchestrator,
		Reconciler: application.Reconciler,
		Versions:   application.Tracker,
		Gatherer:   application.Registry,
		Checks:     checks,
	}
	if application.Repository != nil {
		deps.Repository = application.Repository
	}

	// Create server
	server := api.NewServer(configManager, deps, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
