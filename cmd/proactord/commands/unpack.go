package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/proactor/internal/bytesize"
	"github.com/marmos91/proactor/internal/cli/prompt"
	"github.com/marmos91/proactor/internal/unpack"
	"github.com/spf13/cobra"
)

var (
	unpackDest    string
	unpackVerbose bool
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive>",
	Short: "Extract a .tar.gz archive, decrypting it first if needed",
	Long: `Extract a gzip-compressed tar archive. Archives encrypted with a
passphrase (gpg --symmetric, binary or armored) are detected and the
passphrase is asked for interactively. PROACTOR_UNPACK_PASSPHRASE is used
instead when set. "-" reads the archive from stdin.

Entries that would land outside the destination are rejected. Symlinks,
hard links and devices are skipped.

Examples:
  proactord unpack backup.tar.gz -d ./restore
  proactord unpack backup.tar.gz.gpg -v`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpack,
}

func init() {
	unpackCmd.Flags().StringVarP(&unpackDest, "dest", "d", ".", "destination directory")
	unpackCmd.Flags().BoolVarP(&unpackVerbose, "verbose", "v", false, "list extracted entries")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	interactive := false
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
		interactive = true
	}

	opts := unpack.Options{
		Passphrase: func() ([]byte, error) {
			if p := os.Getenv("PROACTOR_UNPACK_PASSPHRASE"); p != "" {
				return []byte(p), nil
			}
			if !interactive {
				return nil, unpack.ErrPassphraseRequired
			}
			p, err := prompt.Passphrase("Passphrase")
			if err != nil {
				return nil, err
			}
			return []byte(p), nil
		},
	}
	if unpackVerbose {
		opts.Listing = cmd.OutOrStdout()
	}

	res, err := unpack.Extract(cmd.Context(), in, unpackDest, opts)
	if err != nil {
		return err
	}

	encrypted := ""
	if res.Encrypted {
		encrypted = ", decrypted"
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d files, %d directories (%s%s) extracted to %s\n",
		res.Files, res.Dirs, bytesize.ByteSize(res.Bytes).Human(), encrypted, unpackDest)
	if res.Skipped > 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d entries skipped\n", res.Skipped)
	}
	return nil
}
