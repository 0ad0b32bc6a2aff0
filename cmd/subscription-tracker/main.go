package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/httpapi"
	"github.com/mikey/subscription-tracker/internal/adapters/mailbox"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/di"
	"github.com/mikey/subscription-tracker/internal/ports"
	"github.com/mikey/subscription-tracker/internal/worker"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Store     core.Store
	Backend   core.ModelBackend
	Cache     core.ScoreCache
	Seeder    *core.PatternSeeder
	Spool     *mailbox.SMTPSpool
	Scheduler *worker.FeedbackScheduler
	Server    *httpapi.Server
}

// run is the main application function that gets all dependencies injected
func run(d deps) error {
	logger := d.Logger
	defer logger.Sync()

	if d.Config.GetPatterns().SeedOnStart {
		inserted, err := d.Seeder.Seed(context.Background())
		if err != nil {
			return fmt.Errorf("failed to seed pattern catalog: %w", err)
		}
		if inserted > 0 {
			logger.Info("Installed pattern catalog", zap.Int("inserted", inserted))
		}
	}

	services := []ports.Service{d.Server, d.Scheduler}
	if d.Spool != nil {
		services = append(services, d.Spool)
	}

	started := make([]ports.Service, 0, len(services))
	for _, svc := range services {
		if err := svc.Start(); err != nil {
			stopAll(logger, started)
			return fmt.Errorf("failed to start service: %w", err)
		}
		started = append(started, svc)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	stopAll(logger, started)

	// Close any resources that need closing
	if closer, ok := d.Backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close model backend", zap.Error(err))
		}
	}

	// Stop the cache if needed
	if stopper, ok := d.Cache.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	if err := d.Store.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

// stopAll stops services in reverse start order
func stopAll(logger *zap.Logger, services []ports.Service) {
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.Error(err))
		}
	}
}
