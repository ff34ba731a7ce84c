package proactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/proactor/internal/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSpawner replaces the default GoSpawner.
func WithSpawner(s Spawner) Option {
	return func(d *Dispatcher) { d.spawner = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRecoverPanics makes workers recover callback panics and log them
// instead of crashing the process. The handle is closed either way.
func WithRecoverPanics(enabled bool) Option {
	return func(d *Dispatcher) { d.recoverPanics = enabled }
}

// WithContext sets the base context passed to callbacks. The dispatcher
// never cancels it.
func WithContext(ctx context.Context) Option {
	return func(d *Dispatcher) { d.baseCtx = ctx }
}

// WithTransitionHook registers an observer for lifecycle transitions.
func WithTransitionHook(hook TransitionHook) Option {
	return func(d *Dispatcher) { d.hook = hook }
}

// Dispatcher registers connections and starts one worker per connection.
//
// Thread safety:
// All exported methods are safe for concurrent use.
type Dispatcher struct {
	registry      *Registry
	spawner       Spawner
	metrics       Metrics
	hook          TransitionHook
	recoverPanics bool
	baseCtx       context.Context

	// mu orders workers.Add against Shutdown's Wait.
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
	active  atomic.Int64
}

// New creates a dispatcher backed by reg. A nil reg gets a fresh Registry.
func New(reg *Registry, opts ...Option) *Dispatcher {
	if reg == nil {
		reg = NewRegistry()
	}
	d := &Dispatcher{
		registry: reg,
		spawner:  GoSpawner,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.spawner == nil {
		d.spawner = GoSpawner
	}
	if d.baseCtx == nil {
		d.baseCtx = context.Background()
	}
	return d
}

// Register dispatches h to cb. See RegisterWithData.
func (d *Dispatcher) Register(h Handle, cb Callback) error {
	return d.RegisterWithData(h, nil, cb)
}

// RegisterWithData records h with cb and an attached payload, then starts a
// worker for it without waiting.
//
// If the worker cannot be started, the entry is removed, h is closed and
// the returned error wraps ErrWorkerStart. The same holds after Shutdown,
// with ErrClosed. For ErrNilHandle, ErrNilCallback and ErrAlreadyRegistered
// nothing was recorded and the caller still owns h.
func (d *Dispatcher) RegisterWithData(h Handle, data []byte, cb Callback) error {
	if h == nil {
		return ErrNilHandle
	}
	if cb == nil {
		return ErrNilCallback
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.closeHandle(h)
		d.transition(h.ID(), StateClosed)
		if d.metrics != nil {
			d.metrics.RecordStartFailure("closed")
		}
		logger.Warn("Dispatch refused, dispatcher closed", "handle", h.ID())
		return fmt.Errorf("%w: %w", ErrWorkerStart, ErrClosed)
	}

	if err := d.registry.Insert(h, cb, data); err != nil {
		return err
	}
	d.transition(h.ID(), StateRegistered)
	if d.metrics != nil {
		d.metrics.RecordRegistered()
		d.metrics.SetPending(d.registry.Len())
	}

	d.workers.Add(1)
	if err := d.spawner.Spawn(func() { d.work(h) }); err != nil {
		d.workers.Done()
		d.rollback(h, err)
		return fmt.Errorf("%w: %w", ErrWorkerStart, err)
	}

	logger.Debug("Connection dispatched", "handle", h.ID(), "data_len", len(data))
	return nil
}

// rollback undoes a registration whose worker never started.
func (d *Dispatcher) rollback(h Handle, cause error) {
	if _, ok := d.registry.TakeAndRemove(h.ID()); !ok {
		logger.Warn("Rollback found no registry entry", "handle", h.ID())
	}
	d.closeHandle(h)
	d.transition(h.ID(), StateClosed)

	reason := "error"
	if errors.Is(cause, ErrResourceExhausted) {
		reason = "exhausted"
	}
	if d.metrics != nil {
		d.metrics.RecordStartFailure(reason)
		d.metrics.SetPending(d.registry.Len())
	}

	logger.Error("Failed to start worker, connection closed", "handle", h.ID(), "error", cause)
}

// Shutdown refuses further registrations and waits for running workers to
// finish. Workers are not interrupted; if ctx ends first Shutdown returns
// ctx.Err() and the workers keep running.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Debug("Dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		logger.Warn("Dispatcher shutdown interrupted", "active", d.active.Load(), "error", ctx.Err())
		return ctx.Err()
	}
}

// Active returns the number of running workers.
func (d *Dispatcher) Active() int64 {
	return d.active.Load()
}

// Registry returns the registry backing d.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

func (d *Dispatcher) closeHandle(h Handle) {
	if err := h.Close(); err != nil {
		logger.Debug("Error closing connection", "handle", h.ID(), "error", err)
	}
}

func (d *Dispatcher) transition(id HandleID, s State) {
	if d.hook != nil {
		d.hook(id, s)
	}
}
