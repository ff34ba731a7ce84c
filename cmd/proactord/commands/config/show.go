package config

import (
	"fmt"

	"github.com/marmos91/proactor/internal/cli/output"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective proactord configuration: file values merged with
PROACTOR_* environment overrides and defaults.

Examples:
  # Show config as YAML
  proactord config show

  # Show as JSON
  proactord config show --output json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		return fmt.Errorf("table output is not supported for config, use yaml or json")
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(cfg)
}
