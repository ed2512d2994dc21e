package amf

import (
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeStrictArray encodes an AMF0 Strict Array (marker 0x0A) comprised of a
// fixed count of values. Wire format:
//
//	0x0A | 4-byte big-endian count | repeated AMF0 values (each with its own marker)
//
// Nested arrays and objects are handled recursively by the generic dispatcher.
func EncodeStrictArray(w io.Writer, arr []interface{}) error {
	var hdr [1 + 4]byte
	hdr[0] = markerStrictArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(arr)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.array.header.write", err)
	}
	for i, v := range arr {
		if err := encodeAny(w, v); err != nil {
			return amferrors.NewAMFError("encode.array.element", fmt.Errorf("index %d: %w", i, err))
		}
	}
	return nil
}

// EncodeEcmaArray encodes an AMF0 ECMA Array (marker 0x08): a u32 member count
// followed by Object-shaped properties and the object end marker. The count is
// advisory on the wire; we emit the real member count.
func EncodeEcmaArray(w io.Writer, m EcmaArray) error {
	var hdr [1 + 4]byte
	hdr[0] = markerEcmaArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(m)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.ecma.header.write", err)
	}
	if err := encodeProperties(w, map[string]interface{}(m)); err != nil {
		return err
	}
	return writeObjectEnd(w)
}

// DecodeStrictArray decodes an AMF0 Strict Array from r returning a slice of
// interface{} values.
func DecodeStrictArray(r io.Reader) ([]interface{}, error) {
	if err := expectMarker(r, markerStrictArray, "decode.array"); err != nil {
		return nil, err
	}
	return decodeStrictArrayBody(r)
}

func decodeStrictArrayBody(r io.Reader) ([]interface{}, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.array.count.read", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	out := make([]interface{}, 0, int(min(count, 1024))) // cap pre-allocation against hostile counts
	for i := uint32(0); i < count; i++ {
		var elemMarker [1]byte
		if _, err := io.ReadFull(r, elemMarker[:]); err != nil {
			return nil, amferrors.NewAMFError("decode.array.element.marker.read", err)
		}
		val, err := decodeValueWithMarker(elemMarker[0], r)
		if err != nil {
			return nil, amferrors.NewAMFError("decode.array.element", fmt.Errorf("index %d: %w", i, err))
		}
		out = append(out, val)
	}
	return out, nil
}

// DecodeEcmaArray decodes an AMF0 ECMA Array (marker 0x08) from r.
func DecodeEcmaArray(r io.Reader) (EcmaArray, error) {
	if err := expectMarker(r, markerEcmaArray, "decode.ecma"); err != nil {
		return nil, err
	}
	return decodeEcmaArrayBody(r)
}

// decodeEcmaArrayBody reads the advisory count then decodes properties until
// the object terminator, regardless of the count value.
func decodeEcmaArrayBody(r io.Reader) (EcmaArray, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.ecma.count.read", err)
	}
	m, err := decodeProperties(r)
	if err != nil {
		return nil, err
	}
	return EcmaArray(m), nil
}
