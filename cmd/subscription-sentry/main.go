package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/subscription-sentry/internal/adapters/smtpd"
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/di"
	"go.uber.org/zap"
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

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	listener *smtpd.Listener,
	modelClient core.ModelClient,
	resultStore core.ResultStore,
) error {
	defer logger.Sync()

	// Start the ingest listener
	if err := listener.Start(); err != nil {
		logger.Fatal("Failed to start ingest listener", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the listener
	if err := listener.Stop(); err != nil {
		logger.Error("Failed to stop ingest listener", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := modelClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close model client", zap.Error(err))
		}
	}

	// Stop the store's background cleanup if needed
	if stopper, ok := resultStore.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
