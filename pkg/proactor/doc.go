// Package proactor hands accepted connections to independent workers.
//
// A caller registers an open Handle together with a Callback. The
// Dispatcher records the pair in a Registry and starts a worker goroutine.
// The worker claims its entry (atomically removing it), runs the callback
// synchronously, and closes the handle when the callback returns:
//
//	Registered -> Claimed -> InCallback -> Closed
//
// If the worker cannot be started the Dispatcher removes the entry and
// closes the handle itself (Registered -> Closed), so a failed dispatch
// never leaks a connection or leaves a dangling entry.
//
// Callbacks report nothing back to the dispatcher. A callback that needs to
// signal success or failure does so on the connection itself, for example
// by writing a status line before returning.
//
// The dispatcher does not multiplex I/O: callbacks perform blocking reads
// and writes for the whole lifetime of the connection, and there is one
// goroutine per registered connection.
package proactor
