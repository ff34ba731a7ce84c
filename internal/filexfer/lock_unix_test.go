//go:build unix

package filexfer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	a, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, tryLockExclusive(a))
	assert.ErrorIs(t, tryLockExclusive(b), ErrFileBusy)

	require.NoError(t, unlock(a))
	require.NoError(t, tryLockExclusive(b))
	require.NoError(t, unlock(b))
}

func TestPostToLockedFileFails(t *testing.T) {
	addr, dir := startServer(t)

	path := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, lockShared(f))

	err = NewClient(addr).Post(context.Background(), "/locked.txt", strings.NewReader("new"), 3)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusInternalError, se.Status)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got), "a rejected upload must not truncate")
}
