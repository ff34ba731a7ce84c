package config

import (
	"fmt"
	"os"

	"github.com/marmos91/proactor/internal/cli/output"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the proactord configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  proactord config validate

  # Validate specific config file
  proactord config validate --config /etc/proactor/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.Chat.Enabled && !cfg.Files.Enabled {
		warnings = append(warnings, "Both chat and files are disabled - 'proactord start' will refuse to run")
	}
	if cfg.Files.Enabled {
		if fi, err := os.Stat(cfg.Files.Root); err == nil && !fi.IsDir() {
			warnings = append(warnings, fmt.Sprintf("files.root %s is not a directory", cfg.Files.Root))
		}
	}
	if cfg.Chat.Enabled && cfg.Files.Enabled && cfg.Chat.Port == cfg.Files.Port && cfg.Chat.Port != 0 {
		warnings = append(warnings, fmt.Sprintf("chat and files both use port %d", cfg.Chat.Port))
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.KeyValues(out, [][2]string{
		{"Log level", cfg.Logging.Level},
		{"Chat", listenerSummary(cfg.Chat.ListenerConfig)},
		{"Files", listenerSummary(cfg.Files.ListenerConfig)},
		{"Files root", cfg.Files.Root},
		{"Max workers", fmt.Sprintf("%d", cfg.Dispatcher.MaxWorkers)},
	})
}

func listenerSummary(lc config.ListenerConfig) string {
	if !lc.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s:%d", lc.BindAddress, lc.Port)
}
