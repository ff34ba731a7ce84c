package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/pkg/proactor"
)

// DefaultShutdownTimeout is used when BaseConfig.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 30 * time.Second

// BaseConfig holds the listener settings shared by all adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// ReusePort sets SO_REUSEPORT so several processes can share the port.
	// Ignored on platforms without it.
	ReusePort bool

	// ShutdownTimeout bounds how long Serve waits for open connections
	// before force-closing them.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is the interval at which connection counts are
	// logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration
}

// MetricsRecorder records connection lifecycle events. A nil recorder
// disables collection.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	// RecordConnectionRejected counts connections the dispatcher refused.
	RecordConnectionRejected()
	SetActiveConnections(count int32)
}

// handleIDs is process-wide so adapters sharing a dispatcher never collide.
var handleIDs atomic.Uint64

// BaseAdapter accepts TCP connections and registers each one with a
// dispatcher. The dispatcher's worker runs the protocol callback and closes
// the connection when it returns.
//
// Thread safety:
// All exported methods are safe for concurrent use. Shutdown is guarded by
// sync.Once so Stop may be called any number of times.
type BaseAdapter struct {
	// Config holds the listener settings.
	Config BaseConfig

	// Metrics is an optional recorder for connection lifecycle metrics.
	Metrics MetricsRecorder

	protocol   Protocol
	callback   proactor.Callback
	dispatcher *proactor.Dispatcher

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once Serve has bound its listener (or failed to).
	ListenerReady chan struct{}
	readyOnce     sync.Once

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// mu orders conns.Add against the Wait in shutdown.
	mu       sync.RWMutex
	stopping bool

	// conns counts tracked handles; Done runs when a handle is closed.
	conns     sync.WaitGroup
	connCount atomic.Int32

	// active maps HandleID to *trackedHandle for forced closure.
	active sync.Map
}

// New creates a stopped adapter. Call Serve to start it.
func New(cfg BaseConfig, p Protocol, d *proactor.Dispatcher) (*BaseAdapter, error) {
	if p == nil {
		return nil, ErrNilProtocol
	}
	if d == nil {
		return nil, ErrNilDispatcher
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &BaseAdapter{
		Config:        cfg,
		protocol:      p,
		callback:      p.Callback(),
		dispatcher:    d,
		ListenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
	}, nil
}

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocol.Name()
}

func (b *BaseAdapter) listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{}
	if b.Config.ReusePort {
		if reusePortSupported {
			lc.Control = reusePortControl
		} else {
			logger.Warn("SO_REUSEPORT not supported on this platform, ignoring", "protocol", b.Protocol())
		}
	}

	addr := net.JoinHostPort(b.Config.BindAddress, fmt.Sprint(b.Config.Port))
	return lc.Listen(ctx, "tcp", addr)
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be created or connections were force-closed
func (b *BaseAdapter) Serve(ctx context.Context) error {
	name := b.Protocol()

	listener, err := b.listen(ctx)
	if err != nil {
		b.readyOnce.Do(func() { close(b.ListenerReady) })
		return fmt.Errorf("failed to create %s listener on port %d: %w", name, b.Config.Port, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.readyOnce.Do(func() { close(b.ListenerReady) })

	logger.Info(name+" server listening", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(name+" shutdown signal received", "error", ctx.Err())
			b.initiateShutdown()
		case <-b.shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-b.shutdown:
				return b.gracefulShutdown()
			default:
			}

			// Transient errors (EMFILE and friends) would spin the loop.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			logger.Debug("Error accepting "+name+" connection", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		b.dispatch(conn)
	}
}

// dispatch tracks conn and hands it to the dispatcher.
func (b *BaseAdapter) dispatch(conn net.Conn) {
	name := b.Protocol()

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logger.Debug("Failed to set TCP_NODELAY", "error", err)
		}
	}

	id := proactor.HandleID(handleIDs.Add(1))
	h := &trackedHandle{
		Handle:  proactor.NewHandle(id, conn),
		connID:  uuid.NewString(),
		conn:    conn,
		onClose: b.untrack,
	}

	b.mu.RLock()
	if b.stopping {
		b.mu.RUnlock()
		_ = conn.Close()
		return
	}
	b.conns.Add(1)
	current := b.connCount.Add(1)
	b.active.Store(id, h)
	b.mu.RUnlock()

	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(current)
	}

	logger.Debug(name+" connection accepted",
		"address", conn.RemoteAddr().String(),
		"conn_id", h.connID,
		"handle", uint64(id),
		"active", current)

	if err := b.dispatcher.Register(h, b.callback); err != nil {
		// On a worker start failure the dispatcher has already closed h.
		if !errors.Is(err, proactor.ErrWorkerStart) {
			_ = h.Close()
		}
		if b.Metrics != nil {
			b.Metrics.RecordConnectionRejected()
		}
		logger.Warn(name+" connection rejected",
			"address", conn.RemoteAddr().String(),
			"conn_id", h.connID,
			"error", err)
	}
}

// untrack runs once per handle, from whichever goroutine closes it.
func (b *BaseAdapter) untrack(h *trackedHandle) {
	b.active.Delete(h.ID())
	remaining := b.connCount.Add(-1)
	b.conns.Done()

	if b.Metrics != nil {
		b.Metrics.RecordConnectionClosed()
		b.Metrics.SetActiveConnections(remaining)
	}

	logger.Debug(b.Protocol()+" connection closed",
		"address", h.conn.RemoteAddr().String(),
		"conn_id", h.connID,
		"active", remaining)
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Interrupt blocking reads on all active connections
//
// Safe to call multiple times and from multiple goroutines.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.Protocol() + " shutdown initiated")

		b.mu.Lock()
		b.stopping = true
		b.mu.Unlock()

		close(b.shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.Protocol()+" listener", "error", err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
	})
}

// interruptBlockingReads sets a short deadline on all active connections so
// callbacks parked in Read observe an error and return.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.active.Range(func(_, value any) bool {
		h := value.(*trackedHandle)
		if err := h.conn.SetReadDeadline(deadline); err != nil {
			logger.Debug("Error setting shutdown deadline on connection",
				"conn_id", h.connID, "error", err)
		}
		return true
	})
}

// waitConns returns a channel closed once every tracked handle is closed.
func (b *BaseAdapter) waitConns() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.conns.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits for open connections up to ShutdownTimeout, then
// force-closes the rest.
func (b *BaseAdapter) gracefulShutdown() error {
	name := b.Protocol()
	logger.Info(name+" graceful shutdown: waiting for active connections",
		"active", b.connCount.Load(), "timeout", b.Config.ShutdownTimeout)

	timer := time.NewTimer(b.Config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-b.waitConns():
		logger.Info(name + " graceful shutdown complete: all connections closed")
		return nil

	case <-timer.C:
		remaining := b.connCount.Load()
		logger.Warn(name+" shutdown timeout exceeded - forcing closure",
			"active", remaining, "timeout", b.Config.ShutdownTimeout)

		b.forceCloseConnections()

		return fmt.Errorf("%w: %s: %d connections force-closed", ErrShutdownTimeout, name, remaining)
	}
}

// forceCloseConnections closes the sockets of all tracked handles. The
// handles stay tracked until their workers observe the error and close them.
func (b *BaseAdapter) forceCloseConnections() int {
	closed := 0
	b.active.Range(func(_, value any) bool {
		h := value.(*trackedHandle)
		if err := h.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "conn_id", h.connID, "error", err)
			return true
		}
		closed++
		if b.Metrics != nil {
			b.Metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed "+b.Protocol()+" connections", "count", closed)
	}
	return closed
}

// Stop initiates shutdown and waits for tracked connections. When ctx
// expires first the remaining connections are force-closed and ctx's error
// is returned.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	select {
	case <-b.waitConns():
		return nil
	case <-ctx.Done():
		logger.Warn(b.Protocol()+" shutdown context cancelled",
			"active", b.connCount.Load(), "error", ctx.Err())
		b.forceCloseConnections()
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdown:
			return
		case <-ticker.C:
			logger.Info(b.Protocol()+" metrics", "active_connections", b.connCount.Load())
		}
	}
}

// ActiveConnections returns the number of tracked connections.
func (b *BaseAdapter) ActiveConnections() int32 {
	return b.connCount.Load()
}

// Addr returns the listener address. It blocks until Serve has bound the
// listener and returns "" if binding failed.
func (b *BaseAdapter) Addr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}
