package amf

import (
	"io"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeBoolean writes an AMF0 Boolean value to w.
// Wire format: marker 0x01 followed by a single byte 0x00 (false) or 0x01 (true).
func EncodeBoolean(w io.Writer, v bool) error {
	var buf [2]byte
	buf[0] = markerBoolean
	if v {
		buf[1] = 0x01
	}
	if _, err := w.Write(buf[:]); err != nil {
		return amferrors.NewAMFError("encode.boolean.write", err)
	}
	return nil
}

// DecodeBoolean reads an AMF0 Boolean from r. Any non-zero data byte decodes
// as true (liberal read per spec).
func DecodeBoolean(r io.Reader) (bool, error) {
	if err := expectMarker(r, markerBoolean, "decode.boolean"); err != nil {
		return false, err
	}
	return decodeBooleanBody(r)
}

func decodeBooleanBody(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, amferrors.NewAMFError("decode.boolean.read", err)
	}
	return b[0] != 0x00, nil
}
