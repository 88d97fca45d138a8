package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/api"
	"github.com/quietwire/quietwire/pkg/config"
	"github.com/quietwire/quietwire/pkg/relay/registry"
	"github.com/quietwire/quietwire/pkg/relay/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the QuietWire relay server",
	Long: `Start the relay server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/quietwire/config.yaml. When no file
exists, environment variables and defaults apply.

Examples:
  # Start with default config location
  quietwire start

  # Start with custom config file
  quietwire start --config /etc/quietwire/config.yaml

  # Override config with environment variables
  QUIETWIRE_LOGGING_LEVEL=DEBUG quietwire start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	relayStore, err := cfg.CreateStore()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := relayStore.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("Database connected", "type", cfg.Database.Type)

	tokens, err := auth.NewTokenService(cfg.API.TokenConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	blobs, err := cfg.CreateBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	if blobs != nil {
		logger.Info("Blob store enabled", "bucket", cfg.Blob.S3.Bucket)
	} else {
		logger.Info("Blob store disabled")
	}

	sessions := registry.New()

	sched := scheduler.New(relayStore)
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(cfg.API, api.Deps{
		Store:           relayStore,
		Tokens:          tokens,
		Registry:        sessions,
		Blobs:           blobs,
		LowKeyThreshold: cfg.API.LowKeyThreshold,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Relay is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded
// from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if _, err := os.Stat(config.GetDefaultConfigPath()); err == nil {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
