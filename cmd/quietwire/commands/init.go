package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quietwire/quietwire/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample QuietWire configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/quietwire/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  quietwire init

  # Initialize with custom path
  quietwire init --config /etc/quietwire/config.yaml

  # Force overwrite existing config
  quietwire init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set api.jwt_secret to a random value of at least 32 characters")
	fmt.Println("  2. Point database at PostgreSQL for production, or keep SQLite")
	fmt.Println("  3. Start the relay with: quietwire start")
	return nil
}
