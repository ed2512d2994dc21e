package amf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeNumber writes an AMF0 Number (marker 0x00 + 8-byte IEEE754 double,
// big-endian) to the provided writer. Always writes exactly 9 bytes on success.
func EncodeNumber(w io.Writer, v float64) error {
	var buf [1 + 8]byte
	buf[0] = markerNumber
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v))
	if _, err := w.Write(buf[:]); err != nil {
		return amferrors.NewAMFError("encode.number.write", err)
	}
	return nil
}

// DecodeNumber reads an AMF0 Number (marker 0x00 followed by an 8-byte
// big-endian IEEE754 double) from r and returns the float64.
func DecodeNumber(r io.Reader) (float64, error) {
	if err := expectMarker(r, markerNumber, "decode.number"); err != nil {
		return 0, err
	}
	return decodeNumberBody(r)
}

func decodeNumberBody(r io.Reader) (float64, error) {
	var num [8]byte
	if _, err := io.ReadFull(r, num[:]); err != nil {
		return 0, amferrors.NewAMFError("decode.number.read", err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(num[:])), nil
}

// expectMarker consumes one byte from r and verifies it matches want.
func expectMarker(r io.Reader, want byte, op string) error {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return amferrors.NewAMFError(op+".marker.read", err)
	}
	if m[0] != want {
		return amferrors.NewAMFError(op+".marker", fmt.Errorf("expected 0x%02x got 0x%02x", want, m[0]))
	}
	return nil
}
