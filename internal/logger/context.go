package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection-scoped logging fields
type LogContext struct {
	TraceID    string
	SpanID     string
	Protocol   string // chat, files
	ConnID     string
	ClientAddr string
	HandleID   uint64
	StartTime  time.Time
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection
func NewLogContext(protocol, clientAddr string, handleID uint64) *LogContext {
	return &LogContext{
		Protocol:   protocol,
		ClientAddr: clientAddr,
		HandleID:   handleID,
		StartTime:  time.Now(),
	}
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	clone.TraceID = traceID
	clone.SpanID = spanID
	return &clone
}

// DurationMs returns the time since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

// args flattens lc into key/value pairs, omitting empty fields.
func (lc *LogContext) args() []any {
	out := make([]any, 0, 12)
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	if lc.Protocol != "" {
		out = append(out, KeyProtocol, lc.Protocol)
	}
	if lc.ConnID != "" {
		out = append(out, KeyConnID, lc.ConnID)
	}
	if lc.ClientAddr != "" {
		out = append(out, KeyClientAddr, lc.ClientAddr)
	}
	if lc.HandleID != 0 {
		out = append(out, KeyHandle, lc.HandleID)
	}
	return out
}
