package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/proactor/internal/cli/prompt"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initYes   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample proactord configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/proactor/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  proactord init

  # Initialize with custom path
  proactord init --config /etc/proactor/config.yaml

  # Overwrite an existing config without asking
  proactord init --force --yes`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Do not ask before overwriting")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && initForce && !initYes {
		ok, err := prompt.Confirm(fmt.Sprintf("Overwrite %s", configPath), false)
		if errors.Is(err, prompt.ErrAborted) || (err == nil && !ok) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := config.InitConfigToPath(configPath, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file (files.root, ports, dispatcher.max_workers)")
	_, _ = fmt.Fprintln(out, "  2. Start the servers with: proactord start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: proactord start --config %s\n", configPath)
	return nil
}
