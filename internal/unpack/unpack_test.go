package unpack

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"       //nolint:staticcheck
	"golang.org/x/crypto/openpgp/armor" //nolint:staticcheck
)

type entry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func buildTarGz(t *testing.T, entries []entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Linkname: e.linkname, Mode: 0o644}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.body != "" {
			_, err := io.WriteString(tw, e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func encrypt(t *testing.T, plain []byte, passphrase string, armored bool) []byte {
	t.Helper()

	var buf bytes.Buffer
	var out io.WriteCloser = nopCloser{&buf}
	if armored {
		aw, err := armor.Encode(&buf, "PGP MESSAGE", nil)
		require.NoError(t, err)
		out = aw
	}

	w, err := openpgp.SymmetricallyEncrypt(out, []byte(passphrase), nil, nil)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	return buf.Bytes()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func fixedPassphrase(p string) PassphraseFunc {
	return func() ([]byte, error) { return []byte(p), nil }
}

var sample = []entry{
	{name: "docs/", typeflag: tar.TypeDir},
	{name: "docs/readme.txt", body: "read me", typeflag: tar.TypeReg},
	{name: "top.txt", body: "top", typeflag: tar.TypeReg},
	{name: "nested/deeper/file.bin", body: "xyz", typeflag: tar.TypeReg},
	{name: "link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
}

func assertSampleExtracted(t *testing.T, dest string, res Result) {
	t.Helper()

	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 1, res.Dirs)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(len("read me")+len("top")+len("xyz")), res.Bytes)

	got, err := os.ReadFile(filepath.Join(dest, "docs", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "read me", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "nested", "deeper", "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(got))

	_, err = os.Lstat(filepath.Join(dest, "link"))
	assert.True(t, os.IsNotExist(err), "symlinks are not extracted")
}

func TestExtractPlain(t *testing.T) {
	dest := t.TempDir()
	var listing bytes.Buffer

	res, err := Extract(context.Background(), bytes.NewReader(buildTarGz(t, sample)), dest, Options{Listing: &listing})
	require.NoError(t, err)
	assert.False(t, res.Encrypted)
	assertSampleExtracted(t, dest, res)
	assert.Equal(t, "docs/\ndocs/readme.txt\ntop.txt\nnested/deeper/file.bin\n", listing.String())
}

func TestExtractEncrypted(t *testing.T) {
	for _, armored := range []bool{false, true} {
		name := "Binary"
		if armored {
			name = "Armored"
		}
		t.Run(name, func(t *testing.T) {
			archive := encrypt(t, buildTarGz(t, sample), "s3cret", armored)
			dest := t.TempDir()

			res, err := Extract(context.Background(), bytes.NewReader(archive), dest, Options{Passphrase: fixedPassphrase("s3cret")})
			require.NoError(t, err)
			assert.True(t, res.Encrypted)
			assertSampleExtracted(t, dest, res)
		})
	}
}

func TestExtractWrongPassphrase(t *testing.T) {
	archive := encrypt(t, buildTarGz(t, sample), "right", false)

	_, err := Extract(context.Background(), bytes.NewReader(archive), t.TempDir(), Options{Passphrase: fixedPassphrase("wrong")})
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestExtractNeedsPassphrase(t *testing.T) {
	archive := encrypt(t, buildTarGz(t, sample), "right", false)

	_, err := Extract(context.Background(), bytes.NewReader(archive), t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestExtractRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "out")

	archive := buildTarGz(t, []entry{{name: "../evil.txt", body: "x", typeflag: tar.TypeReg}})
	_, err := Extract(context.Background(), bytes.NewReader(archive), dest, Options{})

	assert.ErrorIs(t, err, ErrUnsafePath)
	_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractNotAnArchive(t *testing.T) {
	_, err := Extract(context.Background(), strings.NewReader("\x1f\x8bgarbage"), t.TempDir(), Options{})
	assert.Error(t, err)
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.txt", want: "a/b.txt"},
		{in: "./a/b.txt", want: "a/b.txt"},
		{in: "/abs/path", want: "abs/path"},
		{in: "a/../b", want: "b"},
		{in: "./", want: "."},
		{in: "../x", wantErr: true},
		{in: "a/../../x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := entryName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsafePath, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
