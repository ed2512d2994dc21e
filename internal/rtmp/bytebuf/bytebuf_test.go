package bytebuf

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := NewSize(32)
	b.WriteU8(0x7F)
	b.WriteU16BE(0xBEEF)
	b.WriteI16BE(-2)
	b.WriteU24BE(0x00112233 & 0xFFFFFF)
	b.WriteU32BE(0xDEADBEEF)
	b.WriteU32LE(1)
	b.WriteF64BE(1234.5)
	b.WriteBytes([]byte{1, 2, 3})

	r := New(b.Bytes())
	if v, err := r.ReadU8(); err != nil || v != 0x7F {
		t.Fatalf("u8: %v %v", v, err)
	}
	if v, err := r.ReadU16BE(); err != nil || v != 0xBEEF {
		t.Fatalf("u16: %v %v", v, err)
	}
	if v, err := r.ReadI16BE(); err != nil || v != -2 {
		t.Fatalf("i16: %v %v", v, err)
	}
	if v, err := r.ReadU24BE(); err != nil || v != 0x112233 {
		t.Fatalf("u24: %06x %v", v, err)
	}
	if v, err := r.ReadU32BE(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("u32: %08x %v", v, err)
	}
	if v, err := r.ReadU32LE(); err != nil || v != 1 {
		t.Fatalf("u32le: %v %v", v, err)
	}
	if v, err := r.ReadF64BE(); err != nil || v != 1234.5 {
		t.Fatalf("f64: %v %v", v, err)
	}
	p, err := r.ReadBytes(3)
	if err != nil || !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Fatalf("bytes: %x %v", p, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d left", r.Remaining())
	}
}

func TestLittleEndianStreamID(t *testing.T) {
	// Message stream id 1 serializes as 01 00 00 00 on the wire.
	b := NewSize(4)
	b.WriteU32LE(1)
	if !bytes.Equal(b.Bytes(), []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected LE encoding: %x", b.Bytes())
	}
}

func TestBoundedReads(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		read func(*Buffer) error
	}{
		{"u8_empty", nil, func(b *Buffer) error { _, err := b.ReadU8(); return err }},
		{"u16_short", []byte{1}, func(b *Buffer) error { _, err := b.ReadU16BE(); return err }},
		{"u24_short", []byte{1, 2}, func(b *Buffer) error { _, err := b.ReadU24BE(); return err }},
		{"u32_short", []byte{1, 2, 3}, func(b *Buffer) error { _, err := b.ReadU32BE(); return err }},
		{"f64_short", []byte{1, 2, 3, 4, 5, 6, 7}, func(b *Buffer) error { _, err := b.ReadF64BE(); return err }},
		{"bytes_short", []byte{1}, func(b *Buffer) error { _, err := b.ReadBytes(2); return err }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := New(c.data)
			if err := c.read(b); err == nil {
				t.Fatalf("expected end-of-input error")
			}
			if b.Pos() != 0 {
				t.Fatalf("failed read must not advance position, pos=%d", b.Pos())
			}
		})
	}
}

func TestSkip(t *testing.T) {
	b := New([]byte{0, 0, 0, 9})
	if err := b.Skip(3); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if v, _ := b.ReadU8(); v != 9 {
		t.Fatalf("expected 9 after skip, got %d", v)
	}
	if err := b.Skip(1); err == nil {
		t.Fatalf("expected skip past end to fail")
	}
}
