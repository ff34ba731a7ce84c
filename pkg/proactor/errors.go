package proactor

import "errors"

var (
	// ErrAlreadyRegistered is returned by Registry.Insert when an entry for
	// the handle is still pending dispatch.
	ErrAlreadyRegistered = errors.New("proactor: handle already registered")

	// ErrWorkerStart wraps the reason a worker could not be started. When a
	// Register call returns it, the handle has already been closed.
	ErrWorkerStart = errors.New("proactor: failed to start worker")

	// ErrResourceExhausted is returned by a Spawner that has no capacity left.
	ErrResourceExhausted = errors.New("proactor: worker limit reached")

	// ErrClosed is returned when registering on a dispatcher that has been shut down.
	ErrClosed = errors.New("proactor: dispatcher closed")

	ErrNilHandle   = errors.New("proactor: nil handle")
	ErrNilCallback = errors.New("proactor: nil callback")
)
