package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DIG-Network/dig-propagation-server/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample propagationd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/propagationd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  propagationd init

  # Initialize with custom path
  propagationd init --config /etc/propagationd/config.yaml

  # Force overwrite existing config
  propagationd init --force`,
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

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: propagationd start")
	fmt.Printf("  3. Or specify custom config: propagationd start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  No admin password is set by default, so creating new stores is disabled.")
	fmt.Println("  Set one in the config file or via an environment variable:")
	fmt.Println("    export DIGNODE_ADMIN_PASSWORD=$(openssl rand -hex 16)")

	return nil
}
