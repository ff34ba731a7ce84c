package logger

import "log/slog"

// Standard field keys, shared by text and JSON output.
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyProtocol   = "protocol"
	KeyConnID     = "conn_id"
	KeyClientAddr = "address"
	KeyHandle     = "handle"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyBytes      = "bytes"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

func Handle(id uint64) slog.Attr {
	return slog.Uint64(KeyHandle, id)
}

func ConnID(id string) slog.Attr {
	return slog.String(KeyConnID, id)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Err returns an error attribute; a nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
