package commands

import (
	"fmt"

	"github.com/quarryfs/quarry/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample quarry configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/quarry/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  quarry init

  # Initialize with custom path
  quarry init --config /etc/quarry/config.yaml

  # Force overwrite existing config
  quarry init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set origin.s3.bucket to the bucket the cache should front")
	fmt.Println("  2. Start the daemon with: quarry start")
	fmt.Printf("  3. Or specify custom config: quarry start --config %s\n", configPath)

	return nil
}
