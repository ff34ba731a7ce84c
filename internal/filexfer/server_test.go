package filexfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/proactor/pkg/adapter"
	"github.com/marmos91/proactor/pkg/proactor"
)

// ============================================================================
// Helpers
// ============================================================================

type requestLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *requestLog) RecordRequest(method, status string, _ int64, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, method+" "+status)
}

func (l *requestLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// startServer serves a fresh temp root and returns its address and path.
func startServer(t *testing.T, opts ...ServerOption) (string, string) {
	t.Helper()

	dir := t.TempDir()
	srv, err := NewServer(dir, opts...)
	require.NoError(t, err)

	d := proactor.New(nil)
	a, err := adapter.New(adapter.BaseConfig{BindAddress: "127.0.0.1", ShutdownTimeout: time.Second}, srv, d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = a.Stop(context.Background())
		_ = d.Shutdown(context.Background())
		_ = srv.Close()
	})

	addr := a.Addr()
	require.NotEmpty(t, addr)
	return addr, dir
}

func rawExchange(t *testing.T, addr, request string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, request)
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

// ============================================================================
// Raw protocol
// ============================================================================

func TestServerRawGet(t *testing.T) {
	addr, dir := startServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi there"), 0o644))

	assert.Equal(t, "200 OK\r\n\r\nhi there", rawExchange(t, addr, "GET /hello.txt\r\n\r\n"))
	assert.Equal(t, "404 FILE NOT FOUND\r\n\r\n", rawExchange(t, addr, "GET /missing.txt\r\n\r\n"))
	assert.Equal(t, "400 BAD REQUEST\r\n\r\n", rawExchange(t, addr, "DELETE /hello.txt\r\n\r\n"))
	assert.Equal(t, "400 BAD REQUEST\r\n\r\n", rawExchange(t, addr, "GET /\r\n\r\n"))
}

func TestServerRawPost(t *testing.T) {
	addr, dir := startServer(t)

	resp := rawExchange(t, addr, "POST /up/new.txt\r\nContent-Length: 5\r\n\r\nhello")
	assert.Equal(t, "200 OK\r\n\r\n", resp)

	got, err := os.ReadFile(filepath.Join(dir, "up", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestServerGetDirectory(t *testing.T) {
	addr, dir := startServer(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	assert.Equal(t, "404 FILE NOT FOUND\r\n\r\n", rawExchange(t, addr, "GET /sub\r\n\r\n"))
}

// ============================================================================
// Client round trips
// ============================================================================

func TestClientRoundTrip(t *testing.T) {
	payload := randomBytes(t, 10000)

	tests := []struct {
		name  string
		b64   bool
		sized bool
	}{
		{name: "RawSized", sized: true},
		{name: "RawHalfClose"},
		{name: "Base64Sized", b64: true, sized: true},
		{name: "Base64Terminated", b64: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, dir := startServer(t)
			c := NewClient(addr, WithBase64(tt.b64), WithTimeout(5*time.Second))

			size := int64(-1)
			if tt.sized {
				size = int64(len(payload))
			}
			require.NoError(t, c.Post(context.Background(), "/data/blob.bin", bytes.NewReader(payload), size))

			stored, err := os.ReadFile(filepath.Join(dir, "data", "blob.bin"))
			require.NoError(t, err)
			assert.Equal(t, payload, stored)

			var got bytes.Buffer
			n, err := c.Get(context.Background(), "/data/blob.bin", &got)
			require.NoError(t, err)
			assert.Equal(t, int64(len(payload)), n)
			assert.Equal(t, payload, got.Bytes())
		})
	}
}

func TestPostTruncatesExistingFile(t *testing.T) {
	addr, dir := startServer(t)
	c := NewClient(addr)
	ctx := context.Background()

	require.NoError(t, c.Post(ctx, "/f.txt", strings.NewReader("a much longer first version"), 27))
	require.NoError(t, c.Post(ctx, "/f.txt", strings.NewReader("short"), 5))

	got, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

// halfClosedExchange sends request, half-closes the connection and returns
// the full response.
func halfClosedExchange(t *testing.T, addr, request string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, request)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

func TestFailedPostKeepsExistingFile(t *testing.T) {
	tests := []struct {
		name    string
		request string
	}{
		{"oversized unsized body", "POST /a.txt\r\n\r\nNEWDATA-TOO-LONG"},
		{"oversized sized body", "POST /a.txt\r\nContent-Length: 16\r\n\r\nNEWDATA-TOO-LONG"},
		{"short body", "POST /a.txt\r\nContent-Length: 10\r\n\r\nabc"},
		{"corrupt base64", "POST /a.txt\r\nEncoding: base64\r\n\r\nQUJD!!!!\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, dir := startServer(t, WithMaxBodySize(12))
			target := filepath.Join(dir, "a.txt")
			require.NoError(t, os.WriteFile(target, []byte("ORIGINAL"), 0o644))

			assert.Equal(t, "400 BAD REQUEST\r\n\r\n", halfClosedExchange(t, addr, tt.request))

			got, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, "ORIGINAL", string(got))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no staging file left behind")
		})
	}
}

func TestFailedPostCreatesNothing(t *testing.T) {
	addr, dir := startServer(t)

	resp := halfClosedExchange(t, addr, "POST /sub/new.txt\r\nContent-Length: 10\r\n\r\nabc")
	assert.Equal(t, "400 BAD REQUEST\r\n\r\n", resp)

	_, err := os.Stat(filepath.Join(dir, "sub", "new.txt"))
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPathsStayInsideRoot(t *testing.T) {
	addr, dir := startServer(t)
	c := NewClient(addr)

	require.NoError(t, c.Post(context.Background(), "/../../escape.txt", strings.NewReader("x"), 1))

	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(filepath.Dir(dir)), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSymlinkEscapeRejected(t *testing.T) {
	addr, dir := startServer(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, err := NewClient(addr).Get(context.Background(), "/link/secret", io.Discard)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.NotEqual(t, StatusOK, se.Status)
}

func TestGetMissingFile(t *testing.T) {
	addr, _ := startServer(t)

	_, err := NewClient(addr).Get(context.Background(), "/nope", io.Discard)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestBodyTooLarge(t *testing.T) {
	addr, dir := startServer(t, WithMaxBodySize(8))
	c := NewClient(addr)

	for _, size := range []int64{16, -1} {
		err := c.Post(context.Background(), "/big", strings.NewReader(strings.Repeat("x", 16)), size)
		var se *StatusError
		require.ErrorAs(t, err, &se, "size %d", size)
		assert.Equal(t, StatusBadRequest, se.Status)
	}

	_ = dir
}

func TestCorruptBase64Body(t *testing.T) {
	addr, _ := startServer(t)

	resp := rawExchange(t, addr, "POST /b\r\nEncoding: base64\r\n\r\n!!!!\r\n\r\n")
	assert.Equal(t, "400 BAD REQUEST\r\n\r\n", resp)
}

func TestMetricsRecorded(t *testing.T) {
	log := &requestLog{}
	addr, _ := startServer(t, WithServerMetrics(log))
	c := NewClient(addr)

	require.NoError(t, c.Post(context.Background(), "/m", strings.NewReader("m"), 1))
	_, err := c.Get(context.Background(), "/m", io.Discard)
	require.NoError(t, err)
	_, _ = c.Get(context.Background(), "/absent", io.Discard)

	assert.Eventually(t, func() bool { return len(log.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"POST 200 OK", "GET 200 OK", "GET 404 FILE NOT FOUND"}, log.snapshot())
}

// ============================================================================
// GetMany
// ============================================================================

func TestReadList(t *testing.T) {
	paths, err := ReadList(strings.NewReader("# files\n/a.txt\n\n  /b/c.txt  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/b/c.txt"}, paths)
}

func TestGetMany(t *testing.T) {
	addr, dir := startServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "c.txt"), []byte("C"), 0o644))

	dest := t.TempDir()
	err := NewClient(addr).GetMany(context.Background(), []string{"/a.txt", "/b/c.txt", "/missing"}, dest, 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Contains(t, err.Error(), "/missing")
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/missing", pe.Path)

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "C", string(got))

	_, err = os.Stat(filepath.Join(dest, "missing"))
	assert.True(t, os.IsNotExist(err), "failed downloads leave no file behind")
}

func TestClientContextCancel(t *testing.T) {
	// A listener that accepts and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer func() { _ = conn.Close() }()
			_, _ = io.Copy(io.Discard, bufio.NewReader(conn))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = NewClient(ln.Addr().String()).Get(ctx, "/x", io.Discard)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFileNotFound))
}
