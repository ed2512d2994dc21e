package amf

import (
	"io"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeNull writes an AMF0 Null value (single marker byte 0x05) to w.
func EncodeNull(w io.Writer) error {
	if _, err := w.Write([]byte{markerNull}); err != nil {
		return amferrors.NewAMFError("encode.null.write", err)
	}
	return nil
}

// EncodeUndefined writes an AMF0 Undefined value (single marker byte 0x06).
func EncodeUndefined(w io.Writer) error {
	if _, err := w.Write([]byte{markerUndefined}); err != nil {
		return amferrors.NewAMFError("encode.undefined.write", err)
	}
	return nil
}

// EncodeUnsupported writes an AMF0 Unsupported value (single marker byte 0x0D).
func EncodeUnsupported(w io.Writer) error {
	if _, err := w.Write([]byte{markerUnsupported}); err != nil {
		return amferrors.NewAMFError("encode.unsupported.write", err)
	}
	return nil
}

// DecodeNull reads an AMF0 Null value from r and returns (nil, nil) on success.
func DecodeNull(r io.Reader) (interface{}, error) {
	if err := expectMarker(r, markerNull, "decode.null"); err != nil {
		return nil, err
	}
	return nil, nil
}
