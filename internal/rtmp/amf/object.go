package amf

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeObject encodes an AMF0 Object value (map[string]interface{}).
// Wire format:
//
//	0x03 | repeated { 2-byte key length | UTF-8 key bytes | AMF0 value } | 0x00 0x00 0x09
//
// Keys are emitted in lexicographic order for deterministic output. Property
// order is not semantically significant for objects, so stable ordering is the
// interop-safe choice.
func EncodeObject(w io.Writer, m map[string]interface{}) error {
	if _, err := w.Write([]byte{markerObject}); err != nil {
		return amferrors.NewAMFError("encode.object.marker.write", err)
	}
	if err := encodeProperties(w, m); err != nil {
		return err
	}
	return writeObjectEnd(w)
}

// EncodeTypedObject encodes an AMF0 Typed Object:
//
//	0x10 | 2-byte class-name length | class-name bytes | properties | end marker
func EncodeTypedObject(w io.Writer, o TypedObject) error {
	if len(o.ClassName) > shortStringMax {
		return amferrors.NewAMFError("encode.typedobject.classname", fmt.Errorf("class name length %d exceeds 65535", len(o.ClassName)))
	}
	var hdr [1 + 2]byte
	hdr[0] = markerTypedObject
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(o.ClassName)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.typedobject.header.write", err)
	}
	if len(o.ClassName) > 0 {
		if _, err := io.WriteString(w, o.ClassName); err != nil {
			return amferrors.NewAMFError("encode.typedobject.classname.write", err)
		}
	}
	if err := encodeProperties(w, o.Fields); err != nil {
		return err
	}
	return writeObjectEnd(w)
}

// encodeProperties emits the shared { key, value }* body of Object, Typed
// Object and ECMA Array. A nil map encodes as an empty property list.
func encodeProperties(w io.Writer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hdr [2]byte
	for _, k := range keys {
		if len(k) > shortStringMax {
			return amferrors.NewAMFError("encode.object.key.length", fmt.Errorf("key %q length %d exceeds 65535", k, len(k)))
		}
		binary.BigEndian.PutUint16(hdr[:], uint16(len(k)))
		if _, err := w.Write(hdr[:]); err != nil {
			return amferrors.NewAMFError("encode.object.key.length.write", err)
		}
		if len(k) > 0 {
			if _, err := io.WriteString(w, k); err != nil {
				return amferrors.NewAMFError("encode.object.key.write", err)
			}
		}
		if err := encodeAny(w, m[k]); err != nil {
			return amferrors.NewAMFError("encode.object.value", fmt.Errorf("key %q: %w", k, err))
		}
	}
	return nil
}

// writeObjectEnd emits the terminator: empty key (0x00 0x00) + 0x09.
func writeObjectEnd(w io.Writer) error {
	if _, err := w.Write([]byte{0x00, 0x00, markerObjectEnd}); err != nil {
		return amferrors.NewAMFError("encode.object.end.write", err)
	}
	return nil
}

// DecodeObject decodes an AMF0 Object into a map[string]interface{}.
// It expects the marker 0x03 at the current reader position.
func DecodeObject(r io.Reader) (map[string]interface{}, error) {
	if err := expectMarker(r, markerObject, "decode.object"); err != nil {
		return nil, err
	}
	return decodeObjectBody(r)
}

func decodeObjectBody(r io.Reader) (map[string]interface{}, error) {
	return decodeProperties(r)
}

// decodeProperties reads { key, value }* until the 0x00 0x00 0x09 terminator.
func decodeProperties(r io.Reader) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for {
		var klenBuf [2]byte
		if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
			return nil, amferrors.NewAMFError("decode.object.key.length.read", err)
		}
		klen := binary.BigEndian.Uint16(klenBuf[:])
		if klen == 0 { // potential end marker
			var end [1]byte
			if _, err := io.ReadFull(r, end[:]); err != nil {
				return nil, amferrors.NewAMFError("decode.object.end.read", err)
			}
			if end[0] != markerObjectEnd {
				return nil, amferrors.NewAMFError("decode.object.end.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerObjectEnd, end[0]))
			}
			break
		}
		keyBytes := make([]byte, klen)
		if _, err := io.ReadFull(r, keyBytes); err != nil {
			return nil, amferrors.NewAMFError("decode.object.key.read", err)
		}
		key := string(keyBytes)

		var valMarker [1]byte
		if _, err := io.ReadFull(r, valMarker[:]); err != nil {
			return nil, amferrors.NewAMFError("decode.object.value.marker.read", err)
		}
		val, err := decodeValueWithMarker(valMarker[0], r)
		if err != nil {
			return nil, amferrors.NewAMFError("decode.object.value", fmt.Errorf("key %q: %w", key, err))
		}
		out[key] = val
	}
	return out, nil
}

func decodeTypedObjectBody(r io.Reader) (TypedObject, error) {
	name, err := decodeStringBody(r)
	if err != nil {
		return TypedObject{}, amferrors.NewAMFError("decode.typedobject.classname", err)
	}
	fields, err := decodeProperties(r)
	if err != nil {
		return TypedObject{}, err
	}
	return TypedObject{ClassName: name, Fields: fields}, nil
}
