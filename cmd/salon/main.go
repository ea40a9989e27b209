package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/ai-hair-salon-go/internal/app"
	"github.com/kapu/ai-hair-salon-go/internal/config"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/internal/util"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("AI Hair Salon starting...",
		zap.String("version", "1.0.0"),
		zap.String("provider", cfg.AI.Provider),
		zap.String("log_level", cfg.Logging.Level),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := container.Server.Start(); err != nil {
			errCh <- err
		}
	}()
	go container.RunPruner(ctx)

	logger.Info("Server started, waiting for signals...", zap.String("port", cfg.Server.Port))

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ServerConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
