// Package commands implements the CLI commands for the QuietWire relay.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quietwire",
	Short: "QuietWire - end-to-end encrypted messaging relay",
	Long: `QuietWire is the server-side relay and key directory of an end-to-end
encrypted messaging service. It authenticates devices with Ed25519
challenge-response, serves pre-key bundles for X3DH session setup, and
relays ciphertext to online recipients or queues it for offline delivery.
The server never sees plaintext.

Use "quietwire [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/quietwire/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
