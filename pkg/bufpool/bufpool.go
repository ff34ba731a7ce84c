// Package bufpool recycles the byte slices used by connection workers.
//
// Two size classes are kept: message buffers for chat reads and copy
// buffers for file bodies. Larger requests are allocated directly and
// dropped on Put.
//
// Usage:
//
//	buf := bufpool.Get(n)
//	defer bufpool.Put(buf)
package bufpool

import (
	"io"
	"sync"
)

const (
	// DefaultMessageSize covers one chat read.
	DefaultMessageSize = 4 << 10

	// DefaultCopySize is the buffer for streaming file bodies.
	DefaultCopySize = 64 << 10
)

// Pool hands out slices from two size classes.
//
// Thread safety:
// All methods are safe for concurrent use.
type Pool struct {
	message     sync.Pool
	copy        sync.Pool
	messageSize int
	copySize    int
}

// NewPool creates a pool. Sizes <= 0 take the defaults; copySize is raised
// to messageSize when smaller.
func NewPool(messageSize, copySize int) *Pool {
	if messageSize <= 0 {
		messageSize = DefaultMessageSize
	}
	if copySize <= 0 {
		copySize = DefaultCopySize
	}
	if copySize < messageSize {
		copySize = messageSize
	}

	p := &Pool{messageSize: messageSize, copySize: copySize}
	p.message.New = func() any {
		b := make([]byte, p.messageSize)
		return &b
	}
	p.copy.New = func() any {
		b := make([]byte, p.copySize)
		return &b
	}
	return p
}

// Get returns a slice of length size. Its capacity may be larger.
func (p *Pool) Get(size int) []byte {
	var bp *[]byte
	switch {
	case size <= p.messageSize:
		bp = p.message.Get().(*[]byte)
	case size <= p.copySize:
		bp = p.copy.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bp)[:size]
}

// Put returns buf to its size class. Slices that did not come from the
// pool are ignored.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	buf = buf[:cap(buf)]
	switch cap(buf) {
	case p.messageSize:
		p.message.Put(&buf)
	case p.copySize:
		p.copy.Put(&buf)
	}
}

// Copy is io.CopyBuffer with a pooled copy buffer.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get(p.copySize)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var defaultPool = NewPool(DefaultMessageSize, DefaultCopySize)

// Get returns a slice of length size from the default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns buf to the default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// Copy streams src to dst through a buffer from the default pool.
func Copy(dst io.Writer, src io.Reader) (int64, error) { return defaultPool.Copy(dst, src) }
