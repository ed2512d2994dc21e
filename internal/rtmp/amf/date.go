package amf

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	amferrors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// EncodeDate writes an AMF0 Date (marker 0x0B): milliseconds since the Unix
// epoch as an IEEE754 double, followed by a 16-bit timezone field that is
// reserved and always written as zero.
func EncodeDate(w io.Writer, t time.Time) error {
	var buf [1 + 8 + 2]byte
	buf[0] = markerDate
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(float64(t.UnixMilli())))
	// buf[9:11] timezone, always 0x0000
	if _, err := w.Write(buf[:]); err != nil {
		return amferrors.NewAMFError("encode.date.write", err)
	}
	return nil
}

// DecodeDate reads an AMF0 Date from r, returning the timestamp in UTC. The
// timezone field is read and discarded.
func DecodeDate(r io.Reader) (time.Time, error) {
	if err := expectMarker(r, markerDate, "decode.date"); err != nil {
		return time.Time{}, err
	}
	return decodeDateBody(r)
}

func decodeDateBody(r io.Reader) (time.Time, error) {
	var buf [8 + 2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return time.Time{}, amferrors.NewAMFError("decode.date.read", err)
	}
	ms := math.Float64frombits(binary.BigEndian.Uint64(buf[:8]))
	return time.UnixMilli(int64(ms)).UTC(), nil
}
