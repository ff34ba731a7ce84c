package commands

import (
	"fmt"
	"runtime"

	"github.com/marmos91/proactor/internal/cli/output"
	"github.com/spf13/cobra"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "proactord %s\n", Version)
		return output.KeyValues(cmd.OutOrStdout(), [][2]string{
			{"Commit", Commit},
			{"Built", Date},
			{"Go version", runtime.Version()},
			{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		})
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}
