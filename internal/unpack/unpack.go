// Package unpack extracts .tar.gz archives that may be wrapped in an
// OpenPGP symmetrically encrypted message (binary or ASCII armored).
//
// The pipeline is decrypt, gunzip, untar. Each stage is detected from the
// leading bytes, so a plain .tar.gz or an encrypted .tar.gz.gpg both work.
package unpack

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/openpgp"       //nolint:staticcheck // symmetric decryption only
	"golang.org/x/crypto/openpgp/armor" //nolint:staticcheck // symmetric decryption only

	"github.com/marmos91/proactor/internal/logger"
)

var (
	ErrPassphraseRequired = errors.New("unpack: archive is encrypted and no passphrase was given")
	ErrWrongPassphrase    = errors.New("unpack: wrong passphrase")
	ErrUnsafePath         = errors.New("unpack: entry escapes destination")
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	armorMagic = []byte("-----BEGIN PGP")
)

// PassphraseFunc supplies the passphrase for an encrypted archive. It is
// called at most once.
type PassphraseFunc func() ([]byte, error)

// Options configures Extract.
type Options struct {
	// Passphrase is asked for only when the archive turns out to be encrypted.
	Passphrase PassphraseFunc

	// Listing, when set, receives one line per extracted entry.
	Listing io.Writer
}

// Result summarises an extraction.
type Result struct {
	Encrypted bool
	Files     int
	Dirs      int
	Skipped   int
	Bytes     int64
}

// Extract unpacks r into dest, creating dest if needed. Entries are written
// through an os.Root, so neither ".." nor symlinks can place files outside
// dest. Symlinks, hard links and device entries are skipped.
func Extract(ctx context.Context, r io.Reader, dest string, opts Options) (Result, error) {
	var res Result

	plain, encrypted, err := decrypt(bufio.NewReader(r), opts.Passphrase)
	if err != nil {
		return res, err
	}
	res.Encrypted = encrypted

	zr, err := gzip.NewReader(plain)
	if err != nil {
		return res, fmt.Errorf("unpack: gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return res, fmt.Errorf("unpack: create destination: %w", err)
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return res, fmt.Errorf("unpack: open destination: %w", err)
	}
	defer func() { _ = root.Close() }()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("unpack: tar: %w", err)
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return res, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, dirMode(hdr)); err != nil {
				return res, fmt.Errorf("unpack: %s: %w", name, err)
			}
			res.Dirs++

		case tar.TypeReg:
			n, err := writeFile(root, name, hdr, tr)
			res.Bytes += n
			if err != nil {
				return res, fmt.Errorf("unpack: %s: %w", name, err)
			}
			res.Files++

		default:
			logger.Warn("Skipping unsupported archive entry", "path", name, "type", string(hdr.Typeflag))
			res.Skipped++
			continue
		}

		if opts.Listing != nil {
			_, _ = fmt.Fprintln(opts.Listing, hdr.Name)
		}
	}
}

// decrypt returns the plaintext stream. Non-gzip input is treated as an
// OpenPGP message.
func decrypt(br *bufio.Reader, passphrase PassphraseFunc) (io.Reader, bool, error) {
	head, _ := br.Peek(len(armorMagic))
	if bytes.HasPrefix(head, gzipMagic) {
		return br, false, nil
	}

	var in io.Reader = br
	if bytes.HasPrefix(head, armorMagic) {
		block, err := armor.Decode(br)
		if err != nil {
			return nil, true, fmt.Errorf("unpack: armor: %w", err)
		}
		in = block.Body
	}

	if passphrase == nil {
		return nil, true, ErrPassphraseRequired
	}

	// openpgp retries the prompt on a wrong key; answer only once.
	asked := false
	prompt := func(_ []openpgp.Key, symmetric bool) ([]byte, error) {
		if !symmetric {
			return nil, errors.New("unpack: only symmetric encryption is supported")
		}
		if asked {
			return nil, ErrWrongPassphrase
		}
		asked = true
		return passphrase()
	}

	md, err := openpgp.ReadMessage(in, nil, prompt, nil)
	if err != nil {
		if errors.Is(err, ErrWrongPassphrase) {
			return nil, true, ErrWrongPassphrase
		}
		return nil, true, fmt.Errorf("unpack: decrypt: %w", err)
	}
	return md.UnverifiedBody, true, nil
}

// entryName converts a tar entry name into a clean root-relative path.
func entryName(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if strings.HasPrefix(path.Clean(name), "..") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		rel = "."
	}
	return rel, nil
}

func writeFile(root *os.Root, name string, hdr *tar.Header, r io.Reader) (int64, error) {
	if dir := path.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	mode := fs.FileMode(hdr.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func dirMode(hdr *tar.Header) fs.FileMode {
	if m := fs.FileMode(hdr.Mode).Perm(); m != 0 {
		return m | 0o700
	}
	return 0o755
}
