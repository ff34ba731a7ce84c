// Package chat implements a broadcast chat relay served over the dispatcher.
//
// Every connection is a member identified by its handle ID. Text received
// from one member is prefixed with "Client N: " and written to every other
// member. A member leaves by sending SIGNOUT or by closing the connection.
package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/internal/telemetry"
	"github.com/marmos91/proactor/pkg/adapter"
	"github.com/marmos91/proactor/pkg/bufpool"
	"github.com/marmos91/proactor/pkg/proactor"
)

const (
	// ProtocolName is used for logs and metrics labels.
	ProtocolName = "chat"

	// DefaultBufferSize is the read size for one fragment.
	DefaultBufferSize = 1024

	// SignOut, when it starts a fragment, makes the sender leave.
	SignOut = "SIGNOUT"
)

// Metrics records relay activity. A nil Metrics disables collection.
type Metrics interface {
	RecordJoin()
	RecordLeave()
	RecordMessage(bytes int)
	RecordDeliveryFailure()
	SetMembers(n int)
}

// Option configures a Relay.
type Option func(*Relay)

// WithBufferSize sets the per-read buffer size. Values <= 0 are ignored.
func WithBufferSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// member serialises writes so concurrent broadcasts never interleave bytes
// on one connection.
type member struct {
	id proactor.HandleID
	mu sync.Mutex
	w  io.Writer
}

func (m *member) write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.w.Write(p)
	return err
}

// Relay is the chat membership set. It implements adapter.Protocol.
type Relay struct {
	mu      sync.RWMutex
	members map[proactor.HandleID]*member

	bufferSize int
	metrics    Metrics
}

var _ adapter.Protocol = (*Relay)(nil)

// NewRelay creates an empty relay.
func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		members:    make(map[proactor.HandleID]*member),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Name() string { return ProtocolName }

func (r *Relay) Callback() proactor.Callback { return proactor.OnHandle(r.Serve) }

// Join adds h to the membership set. Joining twice is a no-op.
func (r *Relay) Join(h proactor.Handle) {
	r.mu.Lock()
	if _, ok := r.members[h.ID()]; ok {
		r.mu.Unlock()
		return
	}
	r.members[h.ID()] = &member{id: h.ID(), w: h}
	n := len(r.members)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordJoin()
		r.metrics.SetMembers(n)
	}
}

// Leave removes id and reports whether it was a member.
func (r *Relay) Leave(id proactor.HandleID) bool {
	r.mu.Lock()
	_, ok := r.members[id]
	delete(r.members, id)
	n := len(r.members)
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.RecordLeave()
		r.metrics.SetMembers(n)
	}
	return ok
}

// Members returns the current member IDs in ascending order.
func (r *Relay) Members() []proactor.HandleID {
	r.mu.RLock()
	ids := make([]proactor.HandleID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Broadcast writes msg to every member except from and returns the number
// of successful deliveries. Failed writes are logged and skipped.
func (r *Relay) Broadcast(ctx context.Context, from proactor.HandleID, msg []byte) int {
	r.mu.RLock()
	targets := make([]*member, 0, len(r.members))
	for id, m := range r.members {
		if id != from {
			targets = append(targets, m)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if err := m.write(msg); err != nil {
			logger.DebugCtx(ctx, "Chat delivery failed", "to", uint64(m.id), "error", err)
			if r.metrics != nil {
				r.metrics.RecordDeliveryFailure()
			}
			continue
		}
		delivered++
	}

	telemetry.AddEvent(ctx, telemetry.SpanChatBroadcast,
		telemetry.ChatClient(uint64(from)), telemetry.Bytes(int64(len(msg))))
	return delivered
}

// Serve runs one member's session until it signs out or disconnects.
func (r *Relay) Serve(ctx context.Context, h proactor.Handle) {
	id := h.ID()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanChatSession,
		trace.WithAttributes(telemetry.ChatClient(uint64(id)), telemetry.ConnID(adapter.ConnID(h))))
	defer span.End()

	lc := adapter.LogContext(ProtocolName, h).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	r.Join(h)
	logger.InfoCtx(ctx, "Chat client joined", "members", len(r.Members()))

	buf := bufpool.Get(r.bufferSize)
	defer bufpool.Put(buf)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			fragment := trimLineEnding(buf[:n])

			if bytes.HasPrefix(fragment, []byte(SignOut)) {
				r.Leave(id)
				r.Broadcast(ctx, id, LeaveMessage(id))
				logger.InfoCtx(ctx, "Chat client signed out", "duration_ms", lc.DurationMs())
				return
			}

			if len(fragment) > 0 {
				if r.metrics != nil {
					r.metrics.RecordMessage(len(fragment))
				}
				r.Broadcast(ctx, id, FormatMessage(id, fragment))
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.DebugCtx(ctx, "Chat read failed", "error", err)
			}
			r.Leave(id)
			logger.InfoCtx(ctx, "Chat client disconnected", "duration_ms", lc.DurationMs())
			return
		}
	}
}

// FormatMessage renders a relayed message.
func FormatMessage(id proactor.HandleID, msg []byte) []byte {
	return fmt.Appendf(nil, "Client %d: %s\n", uint64(id), msg)
}

// LeaveMessage renders the notice sent when id signs out.
func LeaveMessage(id proactor.HandleID) []byte {
	return fmt.Appendf(nil, "Client %d left the chat\n", uint64(id))
}

func trimLineEnding(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
