package commands

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/marmos91/proactor/internal/bytesize"
	"github.com/marmos91/proactor/internal/cli/output"
	"github.com/marmos91/proactor/internal/filexfer"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/spf13/cobra"
)

var (
	xferAddr          string
	xferBase64        bool
	xferTimeout       time.Duration
	xferChunkDecoding bool
	fetchDest         string
	fetchConcurrency  int
)

var getCmd = &cobra.Command{
	Use:   "get <remote-path> [local-path]",
	Short: "Download a file from a files server",
	Long: `Download one file. Without local-path the file is written to the current
directory under its remote base name; "-" writes to stdout.

Examples:
  proactord get docs/report.pdf
  proactord get --base64 docs/report.pdf /tmp/report.pdf
  proactord get notes.txt - --addr files.example.com:8080`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var postCmd = &cobra.Command{
	Use:   "post <local-path> [remote-path]",
	Short: "Upload a file to a files server",
	Long: `Upload one file, replacing the remote file. Without remote-path the local
base name is used.

Examples:
  proactord post report.pdf docs/report.pdf
  proactord post --base64 image.png`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPost,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <list-file>",
	Short: "Download every file named in a list",
	Long: `Download the remote paths listed in list-file, one per line, concurrently.
Blank lines and lines starting with # are ignored. Files keep their
relative layout under --dest.

Examples:
  proactord fetch wanted.txt --dest ./downloads -j 8`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, postCmd, fetchCmd} {
		c.Flags().StringVar(&xferAddr, "addr", "", "files server address (default: from config)")
		c.Flags().BoolVar(&xferBase64, "base64", false, "transfer the body base64 encoded")
		c.Flags().DurationVar(&xferTimeout, "timeout", 0, "per-request timeout (0 = none)")
	}
	for _, c := range []*cobra.Command{getCmd, fetchCmd} {
		c.Flags().BoolVar(&xferChunkDecoding, "chunk-decoding", false, "decode base64 read by read (legacy servers)")
	}
	fetchCmd.Flags().StringVarP(&fetchDest, "dest", "d", ".", "destination directory")
	fetchCmd.Flags().IntVarP(&fetchConcurrency, "jobs", "j", filexfer.DefaultConcurrency, "concurrent downloads")
}

func newFileClient() (*filexfer.Client, error) {
	addr := xferAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = dialAddr(cfg.Files.ListenerConfig)
	}
	return filexfer.NewClient(addr,
		filexfer.WithBase64(xferBase64),
		filexfer.WithTimeout(xferTimeout),
		filexfer.WithChunkDecoding(xferChunkDecoding),
	), nil
}

// dialAddr turns a listener config into an address clients can dial.
func dialAddr(lc config.ListenerConfig) string {
	host := lc.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(lc.Port))
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := newFileClient()
	if err != nil {
		return err
	}

	remote := args[0]
	local := path.Base(remote)
	if len(args) == 2 {
		local = args[1]
	}

	start := time.Now()
	var n int64
	if local == "-" {
		n, err = client.Get(cmd.Context(), remote, cmd.OutOrStdout())
	} else {
		n, err = client.GetFile(cmd.Context(), remote, local)
	}
	if errors.Is(err, filexfer.ErrFileNotFound) {
		return fmt.Errorf("%s: file not found on server", remote)
	}
	if err != nil {
		return err
	}

	if local != "-" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%s in %s)\n",
			remote, local, bytesize.ByteSize(n).Human(), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	client, err := newFileClient()
	if err != nil {
		return err
	}

	local := args[0]
	remote := path.Base(local)
	if len(args) == 2 {
		remote = args[1]
	}

	fi, err := os.Stat(local)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := client.PostFile(cmd.Context(), local, remote); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%s in %s)\n",
		local, remote, bytesize.ByteSize(fi.Size()).Human(), time.Since(start).Round(time.Millisecond))
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	client, err := newFileClient()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	paths, err := filexfer.ReadList(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to read list: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%s lists no files", args[0])
	}

	fetchErr := client.GetMany(cmd.Context(), paths, fetchDest, fetchConcurrency)

	failed := make(map[string]string)
	if joined, ok := fetchErr.(interface{ Unwrap() []error }); ok {
		for _, err := range joined.Unwrap() {
			var pe *filexfer.PathError
			if errors.As(err, &pe) {
				failed[pe.Path] = pe.Err.Error()
			}
		}
	}

	rows := output.NewRows("Path", "Result")
	for _, p := range paths {
		result := "ok"
		if msg, ok := failed[p]; ok {
			result = msg
		}
		rows.Add(p, result)
	}
	if err := output.Table(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	if fetchErr != nil {
		return fmt.Errorf("%d of %d downloads failed", len(failed), len(paths))
	}
	return nil
}
