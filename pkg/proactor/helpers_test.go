package proactor

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeHandle is a Handle whose Close calls are counted.
type fakeHandle struct {
	id     HandleID
	mu     sync.Mutex
	in     bytes.Buffer
	out    bytes.Buffer
	closes atomic.Int32
	closed chan struct{}
}

func newFakeHandle(id HandleID) *fakeHandle {
	return &fakeHandle{id: id, closed: make(chan struct{})}
}

func (f *fakeHandle) ID() HandleID { return f.id }

func (f *fakeHandle) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in.Read(p)
}

func (f *fakeHandle) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *fakeHandle) Close() error {
	if f.closes.Add(1) == 1 {
		close(f.closed)
	}
	return nil
}

func (f *fakeHandle) Closes() int { return int(f.closes.Load()) }

// waitClosed fails the test if h is not closed within timeout.
func waitClosed(t *testing.T, h *fakeHandle, timeout time.Duration) {
	t.Helper()
	select {
	case <-h.closed:
	case <-time.After(timeout):
		require.FailNow(t, "handle not closed in time", "handle %d", h.id)
	}
}

// transitionLog records lifecycle transitions per handle.
type transitionLog struct {
	mu     sync.Mutex
	states map[HandleID][]State
}

func newTransitionLog() *transitionLog {
	return &transitionLog{states: make(map[HandleID][]State)}
}

func (l *transitionLog) hook(id HandleID, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[id] = append(l.states[id], s)
}

func (l *transitionLog) get(id HandleID) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states[id]...)
}

var failingSpawner = SpawnerFunc(func(func()) error {
	return ErrResourceExhausted
})
