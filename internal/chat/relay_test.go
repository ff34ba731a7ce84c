package chat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
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
// Test doubles
// ============================================================================

// bufHandle records writes and optionally fails them.
type bufHandle struct {
	id   proactor.HandleID
	mu   sync.Mutex
	buf  bytes.Buffer
	fail bool
}

func (h *bufHandle) ID() proactor.HandleID    { return h.id }
func (h *bufHandle) Read([]byte) (int, error) { return 0, io.EOF }
func (h *bufHandle) Close() error             { return nil }
func (h *bufHandle) String() string           { h.mu.Lock(); defer h.mu.Unlock(); return h.buf.String() }
func (h *bufHandle) Write(p []byte) (int, error) {
	if h.fail {
		return 0, errors.New("broken pipe")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.Write(p)
}

type countingMetrics struct {
	mu                              sync.Mutex
	joins, leaves, messages, failed int
	members                         int
}

func (m *countingMetrics) RecordJoin()            { m.mu.Lock(); m.joins++; m.mu.Unlock() }
func (m *countingMetrics) RecordLeave()           { m.mu.Lock(); m.leaves++; m.mu.Unlock() }
func (m *countingMetrics) RecordMessage(int)      { m.mu.Lock(); m.messages++; m.mu.Unlock() }
func (m *countingMetrics) RecordDeliveryFailure() { m.mu.Lock(); m.failed++; m.mu.Unlock() }
func (m *countingMetrics) SetMembers(n int)       { m.mu.Lock(); m.members = n; m.mu.Unlock() }

// ============================================================================
// Formatting
// ============================================================================

func TestMessages(t *testing.T) {
	assert.Equal(t, "Client 4: hi there\n", string(FormatMessage(4, []byte("hi there"))))
	assert.Equal(t, "Client 4 left the chat\n", string(LeaveMessage(4)))
}

func TestTrimLineEnding(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\n", "hello"},
		{"hello\r\n", "hello"},
		{"hello", "hello"},
		{"\n", ""},
		{"a\nb\n", "a\nb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(trimLineEnding([]byte(tt.in))), "input %q", tt.in)
	}
}

// ============================================================================
// Membership and broadcast
// ============================================================================

func TestJoinLeave(t *testing.T) {
	m := &countingMetrics{}
	r := NewRelay(WithMetrics(m))

	a, b := &bufHandle{id: 2}, &bufHandle{id: 1}
	r.Join(a)
	r.Join(b)
	r.Join(a)

	assert.Equal(t, []proactor.HandleID{1, 2}, r.Members())
	assert.True(t, r.Leave(2))
	assert.False(t, r.Leave(2))
	assert.Equal(t, []proactor.HandleID{1}, r.Members())

	assert.Equal(t, 2, m.joins)
	assert.Equal(t, 1, m.leaves)
	assert.Equal(t, 1, m.members)
}

func TestBroadcastSkipsSenderAndFailures(t *testing.T) {
	m := &countingMetrics{}
	r := NewRelay(WithMetrics(m))

	sender := &bufHandle{id: 1}
	ok := &bufHandle{id: 2}
	broken := &bufHandle{id: 3, fail: true}
	for _, h := range []*bufHandle{sender, ok, broken} {
		r.Join(h)
	}

	n := r.Broadcast(context.Background(), 1, FormatMessage(1, []byte("yo")))

	assert.Equal(t, 1, n)
	assert.Empty(t, sender.String())
	assert.Equal(t, "Client 1: yo\n", ok.String())
	assert.Equal(t, 1, m.failed)
	assert.Len(t, r.Members(), 3, "failed deliveries do not evict")
}

func TestWithBufferSize(t *testing.T) {
	assert.Equal(t, DefaultBufferSize, NewRelay(WithBufferSize(0)).bufferSize)
	assert.Equal(t, 16, NewRelay(WithBufferSize(16)).bufferSize)
}

// ============================================================================
// End to end over the dispatcher
// ============================================================================

func startRelay(t *testing.T, r *Relay) string {
	t.Helper()

	d := proactor.New(nil)
	a, err := adapter.New(adapter.BaseConfig{BindAddress: "127.0.0.1", ShutdownTimeout: time.Second}, r, d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = a.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = a.Stop(context.Background())
		_ = d.Shutdown(context.Background())
	})

	addr := a.Addr()
	require.NotEmpty(t, addr)
	return addr
}

func dialLines(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func TestRelayEndToEnd(t *testing.T) {
	r := NewRelay()
	addr := startRelay(t, r)

	alice, aliceIn := dialLines(t, addr)
	bob, bobIn := dialLines(t, addr)

	require.Eventually(t, func() bool { return len(r.Members()) == 2 },
		2*time.Second, 5*time.Millisecond)

	_, err := alice.Write([]byte("hello bob\r\n"))
	require.NoError(t, err)

	line, err := bobIn.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "Client "), line)
	assert.True(t, strings.HasSuffix(line, ": hello bob\n"), line)

	_, err = alice.Write([]byte("SIGNOUT\n"))
	require.NoError(t, err)

	line, err = bobIn.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(line, " left the chat\n"), line)

	// The worker closes alice's connection after the callback returns.
	_, err = aliceIn.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	assert.Eventually(t, func() bool { return len(r.Members()) == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, bob.Close())
	assert.Eventually(t, func() bool { return len(r.Members()) == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestSignOutIsCaseSensitive(t *testing.T) {
	r := NewRelay()
	addr := startRelay(t, r)

	alice, _ := dialLines(t, addr)
	_, bobIn := dialLines(t, addr)

	require.Eventually(t, func() bool { return len(r.Members()) == 2 },
		2*time.Second, 5*time.Millisecond)

	_, err := alice.Write([]byte("signout\n"))
	require.NoError(t, err)

	line, err := bobIn.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(line, ": signout\n"), line)
	assert.Len(t, r.Members(), 2)
}

// ============================================================================
// Client
// ============================================================================

func TestClientRunStopsAfterSignOut(t *testing.T) {
	local, remote := net.Pipe()
	c := &Client{conn: local}

	received := make(chan []string, 1)
	go func() {
		var got []string
		sc := bufio.NewScanner(remote)
		for sc.Scan() {
			got = append(got, sc.Text())
		}
		received <- got
	}()

	var out bytes.Buffer
	err := c.Run(context.Background(), strings.NewReader("hello\nSIGNOUT\nnever sent\n"), &out)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, []string{"hello", "SIGNOUT"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server side never saw EOF")
	}
}

func TestClientRunServerClose(t *testing.T) {
	local, remote := net.Pipe()
	c := &Client{conn: local}

	go func() {
		_, _ = remote.Write([]byte("Client 7: hi\n"))
		_ = remote.Close()
	}()

	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	var out bytes.Buffer
	err := c.Run(context.Background(), pr, &out)
	require.NoError(t, err)
	assert.Equal(t, "Client 7: hi\n", out.String())
}
