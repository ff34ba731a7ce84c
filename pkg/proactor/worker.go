package proactor

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// work is the body of a worker goroutine: claim, run, close.
func (d *Dispatcher) work(h Handle) {
	defer d.workers.Done()

	d.setActive(d.active.Add(1))
	defer func() { d.setActive(d.active.Add(-1)) }()

	// Runs on every path, including a callback panic.
	defer func() {
		d.closeHandle(h)
		d.transition(h.ID(), StateClosed)
	}()

	entry, ok := d.registry.TakeAndRemove(h.ID())
	if !ok {
		logger.Debug("No registry entry for connection, closing", "handle", h.ID())
		if d.metrics != nil {
			d.metrics.RecordOrphan()
		}
		return
	}

	d.transition(h.ID(), StateClaimed)
	if d.metrics != nil {
		d.metrics.RecordClaimed(time.Since(entry.RegisteredAt))
		d.metrics.SetPending(d.registry.Len())
	}

	d.run(h, entry)
}

func (d *Dispatcher) run(h Handle, entry Entry) {
	ctx, span := telemetry.StartSpan(d.baseCtx, telemetry.SpanCallback,
		trace.WithAttributes(
			attribute.Int64(telemetry.AttrHandleID, int64(h.ID())),
			attribute.Int(telemetry.AttrDataLen, len(entry.Data)),
		))
	defer span.End()

	start := time.Now()
	completed := false
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordCallback(time.Since(start), !completed)
		}
		if completed || !d.recoverPanics {
			return
		}
		if r := recover(); r != nil {
			err := fmt.Errorf("callback panic: %v", r)
			telemetry.RecordError(ctx, err)
			logger.ErrorCtx(ctx, "Callback panicked", "handle", h.ID(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	d.transition(h.ID(), StateInCallback)
	entry.Callback(ctx, Event{Handle: h, Data: entry.Data})
	completed = true
}

func (d *Dispatcher) setActive(n int64) {
	if d.metrics != nil {
		d.metrics.SetActiveWorkers(n)
	}
}
