package proactor

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
)

// HandleID identifies an open connection. IDs are unique among live handles.
type HandleID uint64

func (id HandleID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Handle is an open bidirectional byte stream owned by the dispatcher.
//
// Ownership moves from the registry to the worker that claims it; the worker
// closes it once the callback returns. Callbacks read and write through the
// handle but must not close it or keep it after returning.
type Handle interface {
	io.ReadWriteCloser
	ID() HandleID
}

// Event is the typed task parameter handed to a Callback.
type Event struct {
	// Handle is the connection being served.
	Handle Handle

	// Data is the payload attached at registration, or nil. The callback
	// owns it; len(Data) is the payload length.
	Data []byte
}

// Callback is the completion handler run by a worker. It has no return
// value: status is reported through the connection itself.
type Callback func(ctx context.Context, ev Event)

// OnHandle adapts a callback that only needs the connection.
func OnHandle(fn func(ctx context.Context, h Handle)) Callback {
	return func(ctx context.Context, ev Event) {
		fn(ctx, ev.Handle)
	}
}

// connHandle adapts a net.Conn to Handle.
type connHandle struct {
	net.Conn
	id        HandleID
	closeOnce sync.Once
	closeErr  error
}

// NewHandle wraps conn as a Handle with the given ID. Close is idempotent.
func NewHandle(id HandleID, conn net.Conn) Handle {
	return &connHandle{Conn: conn, id: id}
}

func (c *connHandle) ID() HandleID { return c.id }

func (c *connHandle) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

func (c *connHandle) NetConn() net.Conn { return c.Conn }

// Conn returns the net.Conn behind h, if any. Wrapping handles expose it by
// implementing NetConn() net.Conn.
func Conn(h Handle) (net.Conn, bool) {
	nc, ok := h.(interface{ NetConn() net.Conn })
	if !ok {
		return nil, false
	}
	return nc.NetConn(), true
}
