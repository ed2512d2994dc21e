// Package bytebuf provides a bounded cursor over an owned byte slice with the
// explicit-width big-endian (and the single little-endian) integer codecs the
// RTMP wire format uses. Reads fail with a protocol error when insufficient
// bytes remain; writes append.
package bytebuf

import (
	"encoding/binary"
	"fmt"
	"math"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
)

// Buffer is a read/write cursor over an owned byte vector. The read position
// only advances on successful reads; writes always append at the end. Not safe
// for concurrent use.
type Buffer struct {
	data []byte
	pos  int
}

// New wraps data in a Buffer positioned at the start. The buffer takes
// ownership of the slice.
func New(data []byte) *Buffer { return &Buffer{data: data} }

// NewSize returns an empty Buffer with the given capacity hint for writes.
func NewSize(capacity int) *Buffer { return &Buffer{data: make([]byte, 0, capacity)} }

// Bytes returns the underlying byte vector (written or wrapped).
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the total length of the underlying vector.
func (b *Buffer) Len() int { return len(b.data) }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Pos returns the current read offset.
func (b *Buffer) Pos() int { return b.pos }

// need verifies n unread bytes exist, returning a protocol-layer bounded read
// error otherwise.
func (b *Buffer) need(op string, n int) error {
	if b.Remaining() < n {
		return protoerr.NewProtocolError(op, fmt.Errorf("need %d bytes, have %d", n, b.Remaining()))
	}
	return nil
}

// ReadU8 reads one byte.
func (b *Buffer) ReadU8() (uint8, error) {
	if err := b.need("bytebuf.read_u8", 1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// ReadU16BE reads a 16-bit big-endian unsigned integer.
func (b *Buffer) ReadU16BE() (uint16, error) {
	if err := b.need("bytebuf.read_u16", 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// ReadI16BE reads a 16-bit big-endian signed integer.
func (b *Buffer) ReadI16BE() (int16, error) {
	v, err := b.ReadU16BE()
	return int16(v), err
}

// ReadU24BE reads a 24-bit big-endian unsigned integer into a uint32.
func (b *Buffer) ReadU24BE() (uint32, error) {
	if err := b.need("bytebuf.read_u24", 3); err != nil {
		return 0, err
	}
	v := uint32(b.data[b.pos])<<16 | uint32(b.data[b.pos+1])<<8 | uint32(b.data[b.pos+2])
	b.pos += 3
	return v, nil
}

// ReadU32BE reads a 32-bit big-endian unsigned integer.
func (b *Buffer) ReadU32BE() (uint32, error) {
	if err := b.need("bytebuf.read_u32", 4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// ReadU32LE reads a 32-bit little-endian unsigned integer (message stream id
// wire order).
func (b *Buffer) ReadU32LE() (uint32, error) {
	if err := b.need("bytebuf.read_u32le", 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// ReadF64BE reads an IEEE754 double in big-endian byte order (AMF0 Number).
func (b *Buffer) ReadF64BE() (float64, error) {
	if err := b.need("bytebuf.read_f64", 8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(b.data[b.pos:]))
	b.pos += 8
	return v, nil
}

// ReadBytes reads exactly n bytes, returning a copy.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, protoerr.NewProtocolError("bytebuf.read_bytes", fmt.Errorf("negative length %d", n))
	}
	if err := b.need("bytebuf.read_bytes", n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// Skip advances the read position by n bytes.
func (b *Buffer) Skip(n int) error {
	if err := b.need("bytebuf.skip", n); err != nil {
		return err
	}
	b.pos += n
	return nil
}

// WriteU8 appends one byte.
func (b *Buffer) WriteU8(v uint8) { b.data = append(b.data, v) }

// WriteU16BE appends a 16-bit big-endian unsigned integer.
func (b *Buffer) WriteU16BE(v uint16) {
	b.data = append(b.data, byte(v>>8), byte(v))
}

// WriteI16BE appends a 16-bit big-endian signed integer.
func (b *Buffer) WriteI16BE(v int16) { b.WriteU16BE(uint16(v)) }

// WriteU24BE appends the low 24 bits of v in big-endian order.
func (b *Buffer) WriteU24BE(v uint32) {
	b.data = append(b.data, byte(v>>16), byte(v>>8), byte(v))
}

// WriteU32BE appends a 32-bit big-endian unsigned integer.
func (b *Buffer) WriteU32BE(v uint32) {
	b.data = append(b.data, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteU32LE appends a 32-bit little-endian unsigned integer.
func (b *Buffer) WriteU32LE(v uint32) {
	b.data = append(b.data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteF64BE appends an IEEE754 double in big-endian byte order.
func (b *Buffer) WriteF64BE(v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.data = append(b.data, tmp[:]...)
}

// WriteBytes appends raw bytes.
func (b *Buffer) WriteBytes(p []byte) { b.data = append(b.data, p...) }
