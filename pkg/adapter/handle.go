package adapter

import (
	"net"
	"sync"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/pkg/proactor"
)

// trackedHandle is the handle registered for each accepted connection.
// Closing it removes the connection from the adapter's active set exactly
// once, whichever path closes it (worker, rollback or force close).
type trackedHandle struct {
	proactor.Handle
	connID  string
	conn    net.Conn
	once    sync.Once
	onClose func(*trackedHandle)
}

func (t *trackedHandle) Close() error {
	err := t.Handle.Close()
	t.once.Do(func() {
		if t.onClose != nil {
			t.onClose(t)
		}
	})
	return err
}

func (t *trackedHandle) NetConn() net.Conn { return t.conn }

func (t *trackedHandle) ConnID() string { return t.connID }

// ConnID returns the log correlation ID the adapter assigned to h, or ""
// when h was not produced by an adapter.
func ConnID(h proactor.Handle) string {
	if c, ok := h.(interface{ ConnID() string }); ok {
		return c.ConnID()
	}
	return ""
}

// LogContext builds the connection-scoped logging fields for h.
func LogContext(protocol string, h proactor.Handle) *logger.LogContext {
	var addr string
	if c, ok := proactor.Conn(h); ok && c.RemoteAddr() != nil {
		addr = c.RemoteAddr().String()
	}
	lc := logger.NewLogContext(protocol, addr, uint64(h.ID()))
	lc.ConnID = ConnID(h)
	return lc
}
