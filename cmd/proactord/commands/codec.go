package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/proactor/internal/codec"
	"github.com/spf13/cobra"
)

var (
	codecKey    string
	codecOutput string
)

var encodeCmd = &cobra.Command{
	Use:   "encode [file]",
	Short: "Encode text with the substitution cipher",
	Long: `Replace every letter and digit using the substitution key. Other bytes
pass through unchanged. Reads stdin when no file is given.

Examples:
  echo "Hello" | proactord encode
  proactord encode notes.txt -o notes.enc --key <62-symbol permutation>`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodec(cmd, args, codec.ModeEncode)
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode text produced by encode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodec(cmd, args, codec.ModeDecode)
	},
}

func init() {
	for _, c := range []*cobra.Command{encodeCmd, decodeCmd} {
		c.Flags().StringVar(&codecKey, "key", codec.DefaultKey, "substitution key, a permutation of "+codec.Alphabet)
		c.Flags().StringVarP(&codecOutput, "output", "o", "", "output file (default: stdout)")
	}
}

func runCodec(cmd *cobra.Command, args []string, mode codec.Mode) error {
	c, err := codec.New(codecKey)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	var out io.Writer = cmd.OutOrStdout()
	if codecOutput != "" {
		f, err := os.Create(codecOutput)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	copied, substituted, err := c.Copy(out, in, mode)
	if err != nil {
		return err
	}
	if codecOutput != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d bytes written, %d substituted\n", copied, substituted)
	}
	return nil
}
