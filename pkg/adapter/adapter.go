package adapter

import (
	"context"

	"github.com/marmos91/proactor/pkg/proactor"
)

// Adapter is a TCP server whose connections are handed to a dispatcher.
//
// Lifecycle:
//  1. Creation: the adapter is built with a Protocol and a Dispatcher
//  2. Startup: Serve() binds the listener and blocks until shutdown
//  3. Shutdown: Stop() stops accepting and waits for open connections
//
// Thread safety:
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve accepts connections until ctx is cancelled or Stop is called.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if the listener fails or connections had to be force-closed
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for tracked connections, bounded by ctx.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name used in logs and metrics.
	Protocol() string

	// Addr blocks until the listener is bound and returns its address.
	Addr() string
}

// Protocol supplies the per-connection behaviour of an adapter.
//
// The callback runs on a dispatcher worker and owns nothing: the handle is
// closed by the worker once the callback returns.
type Protocol interface {
	Name() string
	Callback() proactor.Callback
}
