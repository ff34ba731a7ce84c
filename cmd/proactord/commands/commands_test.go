package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/proactor/internal/codec"
	"github.com/marmos91/proactor/internal/filexfer"
	"github.com/marmos91/proactor/pkg/config"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { cfgFile = "" })

	var out bytes.Buffer
	root := GetRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = execute(t, "", "version", "--short=false")
	require.NoError(t, err)
	assert.Contains(t, out, "proactord "+Version)
	assert.Contains(t, out, "Go version")
}

func TestEncodeDecodeCommands(t *testing.T) {
	out, err := execute(t, "Hello, World 2024!", "encode", "-o", "")
	require.NoError(t, err)
	assert.Equal(t, "Jgnnq, Yqtnf 4b46!", out)

	dir := t.TempDir()
	in := filepath.Join(dir, "cipher.txt")
	require.NoError(t, os.WriteFile(in, []byte(out), 0o644))
	plain := filepath.Join(dir, "plain.txt")

	_, err = execute(t, "", "decode", in, "-o", plain)
	require.NoError(t, err)
	got, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World 2024!", string(got))
}

func TestEncodeRejectsBadKey(t *testing.T) {
	t.Cleanup(func() { codecKey = codec.DefaultKey })
	_, err := execute(t, "x", "encode", "-o", "", "--key", "abc")
	require.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "", "init", "--config", path)
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = execute(t, "", "init", "--config", path)
	require.Error(t, err, "existing file is kept without --force")

	out, err := execute(t, "", "config", "show", "-o", "json", "--config", path)
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "Chat")

	out, err = execute(t, "", "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")

	out, err = execute(t, "", "config", "schema", "-o", "")
	require.NoError(t, err)
	assert.Contains(t, out, `"shutdown_timeout"`)
}

func TestFetchCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chat.Enabled = false
	s, cancel, done := startStack(t, cfg)
	defer stopStack(t, cancel, done)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Files.Root, "a.txt"), []byte("A"), 0o644))

	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(list, []byte("# wanted\n/a.txt\n/nope.txt\n"), 0o644))
	dest := filepath.Join(dir, "out")

	out, err := execute(t, "", "fetch", list, "--addr", s.addr(filexfer.ProtocolName),
		"--dest", dest, "--base64=false", "--chunk-decoding=false", "--timeout", "5s", "-j", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "/a.txt")
	assert.Contains(t, out, "ok")

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n3\n4\n5\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, tailLines(&buf, path, 2))
	assert.Equal(t, "4\n5\n", buf.String())

	buf.Reset()
	require.NoError(t, tailLines(&buf, path, 10))
	assert.Equal(t, "1\n2\n3\n4\n5\n", buf.String())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- followFile(ctx, &out, path) }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	// The watcher may not be registered yet, so keep appending.
	require.Eventually(t, func() bool {
		_, _ = f.WriteString("new\n")
		return strings.Contains(out.String(), "new\n")
	}, 5*time.Second, 50*time.Millisecond)
	assert.NotContains(t, out.String(), "old")

	cancel()
	require.NoError(t, <-done)
}

func TestGetConfigSource(t *testing.T) {
	assert.Equal(t, "/etc/proactor.yaml", getConfigSource("/etc/proactor.yaml"))
	if !config.DefaultConfigExists() {
		assert.Equal(t, "defaults", getConfigSource(""))
	}
}
