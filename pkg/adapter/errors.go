package adapter

import "errors"

var (
	// ErrNilDispatcher is returned by New when no dispatcher is supplied.
	ErrNilDispatcher = errors.New("adapter: dispatcher is required")

	// ErrNilProtocol is returned by New when no protocol is supplied.
	ErrNilProtocol = errors.New("adapter: protocol is required")

	// ErrShutdownTimeout reports that connections were force-closed.
	ErrShutdownTimeout = errors.New("adapter: shutdown timeout exceeded")
)
