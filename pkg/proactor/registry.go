package proactor

import (
	"sync"
	"time"
)

// Entry is a connection waiting for its worker.
type Entry struct {
	Handle       Handle
	Callback     Callback
	Data         []byte
	RegisteredAt time.Time
}

// Registry maps pending connections to their callbacks.
//
// An entry exists for a handle iff a dispatch was requested and no worker
// has claimed it yet. The lock only guards map mutation; callbacks never
// run while it is held.
type Registry struct {
	mu      sync.Mutex
	entries map[HandleID]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[HandleID]Entry),
	}
}

// Insert records a pending dispatch for h. It fails with
// ErrAlreadyRegistered if h already has a pending entry.
func (r *Registry) Insert(h Handle, cb Callback, data []byte) error {
	if h == nil {
		return ErrNilHandle
	}
	if cb == nil {
		return ErrNilCallback
	}

	entry := Entry{
		Handle:       h,
		Callback:     cb,
		Data:         data,
		RegisteredAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[h.ID()]; exists {
		return ErrAlreadyRegistered
	}
	r.entries[h.ID()] = entry
	return nil
}

// TakeAndRemove atomically detaches and returns the entry for id. The
// second result is false if there is none (never inserted or already
// claimed). This is the only way entries leave the registry.
func (r *Registry) TakeAndRemove(id HandleID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, id)
	return entry, true
}

// Len returns the number of entries pending dispatch.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
