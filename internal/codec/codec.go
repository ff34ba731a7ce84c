// Package codec implements a substitution cipher over the 62 ASCII letters
// and digits. Bytes outside the alphabet pass through unchanged.
package codec

import (
	"errors"
	"fmt"
	"io"
)

// Alphabet is the ordered set of substitutable symbols.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// DefaultKey shifts every symbol two places along Alphabet.
const DefaultKey = "cdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890ab"

var (
	ErrKeyLength    = errors.New("codec: key must contain exactly 62 symbols")
	ErrKeyDuplicate = errors.New("codec: duplicate symbol in key")
	ErrKeySymbol    = errors.New("codec: key symbol outside alphabet")
)

// Codec maps Alphabet onto a key permutation and back.
// It is immutable and safe for concurrent use.
type Codec struct {
	enc, dec [256]byte
	mapped   [256]bool
}

// New builds a codec from key, a permutation of Alphabet.
func New(key string) (*Codec, error) {
	if len(key) != len(Alphabet) {
		return nil, fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}

	var c Codec
	var inAlphabet, seen [256]bool
	for i := 0; i < len(Alphabet); i++ {
		inAlphabet[Alphabet[i]] = true
	}

	for i := 0; i < len(key); i++ {
		k := key[i]
		if !inAlphabet[k] {
			return nil, fmt.Errorf("%w: %q at %d", ErrKeySymbol, k, i)
		}
		if seen[k] {
			return nil, fmt.Errorf("%w: %q at %d", ErrKeyDuplicate, k, i)
		}
		seen[k] = true

		a := Alphabet[i]
		c.enc[a] = k
		c.dec[k] = a
		c.mapped[a] = true
	}
	return &c, nil
}

// Default returns the codec for DefaultKey.
func Default() *Codec {
	c, err := New(DefaultKey)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode writes the substitution of src into dst and returns the number of
// substituted bytes. dst must be at least len(src) long; it may alias src.
func (c *Codec) Encode(dst, src []byte) int {
	return c.apply(&c.enc, dst, src)
}

// Decode reverses Encode.
func (c *Codec) Decode(dst, src []byte) int {
	return c.apply(&c.dec, dst, src)
}

func (c *Codec) apply(table *[256]byte, dst, src []byte) int {
	_ = dst[:len(src)]

	count := 0
	for i, b := range src {
		if c.mapped[b] {
			dst[i] = table[b]
			count++
		} else {
			dst[i] = b
		}
	}
	return count
}

// Mode selects the direction of a stream transform.
type Mode int

const (
	ModeEncode Mode = iota
	ModeDecode
)

// Copy transforms everything read from r into w and returns the number of
// bytes copied and substituted.
func (c *Codec) Copy(w io.Writer, r io.Reader, mode Mode) (copied, substituted int64, err error) {
	table := &c.enc
	if mode == ModeDecode {
		table = &c.dec
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			substituted += int64(c.apply(table, buf[:n], buf[:n]))
			wn, werr := w.Write(buf[:n])
			copied += int64(wn)
			if werr != nil {
				return copied, substituted, werr
			}
		}
		if rerr == io.EOF {
			return copied, substituted, nil
		}
		if rerr != nil {
			return copied, substituted, rerr
		}
	}
}
