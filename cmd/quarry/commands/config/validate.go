package config

import (
	"fmt"

	"github.com/quarryfs/quarry/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the quarry configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  quarry config validate

  # Validate specific config file
  quarry config validate --config /etc/quarry/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check origin bucket is configured
	if cfg.Origin.Type == "s3" && cfg.Origin.S3.Bucket == "" {
		warnings = append(warnings, "S3 bucket not configured - the daemon will refuse to start (set origin.s3.bucket)")
	}

	// Check quota is configured
	if cfg.Quota.Mode == "none" {
		warnings = append(warnings, "No quota configured - the cache will grow without bound")
	}

	// Check metrics endpoint is reachable
	if cfg.Metrics.Enabled && !cfg.API.IsEnabled() {
		warnings = append(warnings, "Metrics enabled but API server disabled - /metrics will not be served")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Origin type:     %s\n", cfg.Origin.Type)
	fmt.Printf("  Cache root:      %s\n", cfg.Cache.Root)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
