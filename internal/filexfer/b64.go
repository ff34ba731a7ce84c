package filexfer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the raw size of one base64 chunk. It is a multiple of
// 3 so every encoded chunk is a whole number of 4-byte groups.
const DefaultChunkSize = 1023

// ErrMisalignedChunk is returned by ChunkDecoder when a read does not end on
// a 4-byte group boundary.
var ErrMisalignedChunk = errors.New("base64 chunk not aligned to a 4-byte group")

// Encoder base64-encodes everything written to it in fixed-size chunks.
// Concatenated chunks form one valid base64 stream; only the final chunk,
// emitted by Close, may carry padding.
type Encoder struct {
	w     io.Writer
	buf   []byte
	n     int
	out   []byte
	total int64
}

// NewEncoder returns an Encoder writing to w. chunkSize is rounded down to a
// multiple of 3; values below 3 select DefaultChunkSize.
func NewEncoder(w io.Writer, chunkSize int) *Encoder {
	chunkSize -= chunkSize % 3
	if chunkSize < 3 {
		chunkSize = DefaultChunkSize
	}
	return &Encoder{
		w:   w,
		buf: make([]byte, chunkSize),
		out: make([]byte, base64.StdEncoding.EncodedLen(chunkSize)),
	}
}

func (e *Encoder) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		c := copy(e.buf[e.n:], p)
		e.n += c
		p = p[c:]
		written += c

		if e.n == len(e.buf) {
			if err := e.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close emits the final partial chunk. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if e.n == 0 {
		return nil
	}
	return e.flush()
}

// Written returns the number of encoded bytes emitted so far.
func (e *Encoder) Written() int64 { return e.total }

func (e *Encoder) flush() error {
	enc := e.out[:base64.StdEncoding.EncodedLen(e.n)]
	base64.StdEncoding.Encode(enc, e.buf[:e.n])
	e.n = 0

	n, err := e.w.Write(enc)
	e.total += int64(n)
	return err
}

// ChunkDecoder decodes every read from the underlying reader on its own,
// as legacy bulk-transfer clients do. It is correct only while
// each read returns whole 4-byte groups, which a stream transport does not
// promise; a split group surfaces as ErrMisalignedChunk. Prefer
// NewStreamDecoder.
type ChunkDecoder struct {
	r       io.Reader
	in      []byte
	pending []byte
	err     error
}

// NewChunkDecoder reads up to readSize encoded bytes per chunk.
func NewChunkDecoder(r io.Reader, readSize int) *ChunkDecoder {
	if readSize < 4 {
		readSize = base64.StdEncoding.EncodedLen(DefaultChunkSize)
	}
	return &ChunkDecoder{r: r, in: make([]byte, readSize)}
}

func (d *ChunkDecoder) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return 0, d.err
		}

		n, err := d.r.Read(d.in)
		d.err = err
		if n == 0 {
			continue
		}

		chunk := bytes.TrimRight(d.in[:n], "\r\n")
		if len(chunk)%4 != 0 {
			d.err = fmt.Errorf("%w: read of %d bytes", ErrMisalignedChunk, len(chunk))
			return 0, d.err
		}
		out := make([]byte, base64.StdEncoding.DecodedLen(len(chunk)))
		m, decErr := base64.StdEncoding.Decode(out, chunk)
		if decErr != nil {
			d.err = fmt.Errorf("%w: %w", ErrMisalignedChunk, decErr)
			return 0, d.err
		}
		d.pending = out[:m]
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// NewStreamDecoder decodes a base64 stream regardless of how it was split
// into reads. Partial groups are buffered until completed.
func NewStreamDecoder(r io.Reader) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, r)
}

// terminatedReader returns io.EOF once it has consumed Terminator. Bytes
// before the terminator are passed through; the terminator itself is not.
type terminatedReader struct {
	r    io.ByteReader
	held []byte
	done bool
}

func newTerminatedReader(r io.ByteReader) *terminatedReader {
	return &terminatedReader{r: r}
}

func (t *terminatedReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if t.done {
			break
		}

		// held is a prefix of Terminator; release it once it stops matching.
		if len(t.held) > 0 && !bytes.HasPrefix([]byte(Terminator), t.held) {
			p[n] = t.held[0]
			t.held = t.held[1:]
			n++
			continue
		}

		// Do not block for more input once something can be returned.
		if n > 0 {
			if br, ok := t.r.(interface{ Buffered() int }); ok && br.Buffered() == 0 {
				break
			}
		}

		b, err := t.r.ReadByte()
		if err != nil {
			if n == 0 && len(t.held) > 0 {
				n = copy(p, t.held)
				t.held = t.held[n:]
				if len(t.held) > 0 {
					return n, nil
				}
			}
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		t.held = append(t.held, b)
		if string(t.held) == Terminator {
			t.held = nil
			t.done = true
		}
	}

	if n == 0 && t.done {
		return 0, io.EOF
	}
	return n, nil
}

func isCorruptBase64(err error) bool {
	var ce base64.CorruptInputError
	return errors.As(err, &ce)
}
