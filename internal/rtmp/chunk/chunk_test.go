package chunk

import (
	"bytes"
	"testing"
)

func TestEncodeChunkHeaderFMT0(t *testing.T) {
	h := &ChunkHeader{FMT: 0, CSID: 6, Timestamp: 1000, MessageLength: 5000, MessageTypeID: 9, MessageStreamID: 1}
	got, err := EncodeChunkHeader(h, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{
		0x06,             // fmt0, csid 6
		0x00, 0x03, 0xE8, // timestamp 1000
		0x00, 0x13, 0x88, // length 5000
		0x09,                   // video
		0x01, 0x00, 0x00, 0x00, // stream id 1 (LE)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("mismatch\n got: %x\nwant: %x", got, want)
	}
}

func TestEncodeChunkHeaderExtendedTimestamp(t *testing.T) {
	h := &ChunkHeader{FMT: 0, CSID: 4, Timestamp: 0x01000000, MessageLength: 64, MessageTypeID: 8, MessageStreamID: 1}
	got, err := EncodeChunkHeader(h, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{
		0x04,
		0xFF, 0xFF, 0xFF, // marker
		0x00, 0x00, 0x40,
		0x08,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00, // extended timestamp 0x01000000
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("mismatch\n got: %x\nwant: %x", got, want)
	}
}

func TestBasicHeaderCSIDEncodings(t *testing.T) {
	cases := []struct {
		csid uint32
		fmt  uint8
		want []byte
	}{
		{63, 0, []byte{0x3F}},
		{64, 0, []byte{0x00, 0x00}},
		{319, 0, []byte{0x00, 0xFF}},
		{320, 1, []byte{0x41, 0x00, 0x01}},
		{65599, 3, []byte{0xC1, 0xFF, 0xFF}},
	}
	for _, c := range cases {
		var prev *ChunkHeader
		if c.fmt == 3 {
			prev = &ChunkHeader{FMT: 0, CSID: c.csid, MessageLength: 1, MessageTypeID: 9, MessageStreamID: 1}
		}
		b, err := EncodeChunkHeader(&ChunkHeader{FMT: c.fmt, CSID: c.csid}, prev)
		if err != nil {
			t.Fatalf("csid %d: %v", c.csid, err)
		}
		if !bytes.HasPrefix(b, c.want) {
			t.Fatalf("csid %d expected prefix %x got %x", c.csid, c.want, b)
		}
	}
}

func TestEncodeChunkHeaderErrors(t *testing.T) {
	if _, err := EncodeChunkHeader(nil, nil); err == nil {
		t.Fatalf("expected nil header error")
	}
	if _, err := EncodeChunkHeader(&ChunkHeader{FMT: 4, CSID: 2}, nil); err == nil {
		t.Fatalf("expected invalid fmt error")
	}
	if _, err := EncodeChunkHeader(&ChunkHeader{FMT: 0, CSID: 1}, nil); err == nil {
		t.Fatalf("expected reserved csid error")
	}
	if _, err := EncodeChunkHeader(&ChunkHeader{FMT: 3, CSID: 7}, nil); err == nil {
		t.Fatalf("expected FMT3 without prev error")
	}
}

// Spec scenario: 5000-byte video payload at chunk size 4096 fragments into a
// FMT0 chunk carrying 4096 bytes and a 0xC6 FMT3 continuation with the rest.
func TestWriterFragmentsIntoType0PlusType3(t *testing.T) {
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	var buf bytes.Buffer
	w := NewWriter(&buf, 4096)
	msg := &Message{CSID: 6, Timestamp: 1000, TypeID: 9, MessageStreamID: 1, Payload: payload}
	if err := w.WriteMessage(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.Bytes()
	wantFirst := []byte{0x06, 0x00, 0x03, 0xE8, 0x00, 0x13, 0x88, 0x09, 0x01, 0x00, 0x00, 0x00}
	if !bytes.HasPrefix(out, wantFirst) {
		t.Fatalf("first header mismatch: %x", out[:12])
	}
	if got := len(out); got != 12+4096+1+904 {
		t.Fatalf("unexpected total size %d", got)
	}
	if out[12+4096] != 0xC6 {
		t.Fatalf("expected FMT3 basic header 0xC6, got 0x%02x", out[12+4096])
	}
	if !bytes.Equal(out[12:12+4096], payload[:4096]) || !bytes.Equal(out[12+4096+1:], payload[4096:]) {
		t.Fatalf("payload bytes corrupted across fragmentation")
	}
}

func TestWriterPicksTightestFmt(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 4096)
	base := &Message{CSID: 4, Timestamp: 100, TypeID: 8, MessageStreamID: 1, Payload: []byte{1, 2}}
	if err := w.WriteMessage(base); err != nil {
		t.Fatalf("write base: %v", err)
	}
	start := buf.Len()

	// Same everything except timestamp -> FMT2 (basic header 0x84).
	m2 := &Message{CSID: 4, Timestamp: 120, TypeID: 8, MessageStreamID: 1, Payload: []byte{3, 4}}
	if err := w.WriteMessage(m2); err != nil {
		t.Fatalf("write m2: %v", err)
	}
	if b := buf.Bytes()[start]; b>>6 != 2 {
		t.Fatalf("expected FMT2, got fmt %d", b>>6)
	}
	start = buf.Len()

	// Different length -> FMT1.
	m3 := &Message{CSID: 4, Timestamp: 140, TypeID: 8, MessageStreamID: 1, Payload: []byte{5, 6, 7}}
	if err := w.WriteMessage(m3); err != nil {
		t.Fatalf("write m3: %v", err)
	}
	if b := buf.Bytes()[start]; b>>6 != 1 {
		t.Fatalf("expected FMT1, got fmt %d", b>>6)
	}
	start = buf.Len()

	// Identical header incl. timestamp -> FMT3.
	m4 := &Message{CSID: 4, Timestamp: 140, TypeID: 8, MessageStreamID: 1, Payload: []byte{8, 9, 10}}
	if err := w.WriteMessage(m4); err != nil {
		t.Fatalf("write m4: %v", err)
	}
	if b := buf.Bytes()[start]; b>>6 != 3 {
		t.Fatalf("expected FMT3, got fmt %d", b>>6)
	}
	start = buf.Len()

	// Different stream id -> back to FMT0.
	m5 := &Message{CSID: 4, Timestamp: 150, TypeID: 8, MessageStreamID: 2, Payload: []byte{11, 12, 13}}
	if err := w.WriteMessage(m5); err != nil {
		t.Fatalf("write m5: %v", err)
	}
	if b := buf.Bytes()[start]; b>>6 != 0 {
		t.Fatalf("expected FMT0, got fmt %d", b>>6)
	}
}

// Round-trip property: serialize at chunk size C, read back at C, expect an
// identical packet for boundary payload lengths.
func TestRoundTripAcrossChunkSizes(t *testing.T) {
	for _, c := range []uint32{128, 4096, 65536} {
		lengths := []uint32{1, c - 1, c, c + 1, 2 * c}
		for _, l := range lengths {
			payload := make([]byte, l)
			for i := range payload {
				payload[i] = byte(i * 7)
			}
			var buf bytes.Buffer
			w := NewWriter(&buf, c)
			in := &Message{CSID: 6, Timestamp: 1000, TypeID: 9, MessageStreamID: 1, Payload: payload}
			if err := w.WriteMessage(in); err != nil {
				t.Fatalf("C=%d L=%d write: %v", c, l, err)
			}
			r := NewReader(&buf, c)
			out, err := r.ReadMessage()
			if err != nil {
				t.Fatalf("C=%d L=%d read: %v", c, l, err)
			}
			assertEqualMessage(t, in, out)
		}
	}
}

// 24-bit length boundary: the largest representable message lengths survive a
// round trip.
func TestRoundTripMaxMessageLength(t *testing.T) {
	for _, l := range []uint32{0xFFFFFE, 0xFFFFFF} {
		payload := make([]byte, l)
		payload[0], payload[l-1] = 0xAB, 0xCD
		var buf bytes.Buffer
		w := NewWriter(&buf, 65536)
		in := &Message{CSID: 6, Timestamp: 42, TypeID: 9, MessageStreamID: 1, Payload: payload}
		if err := w.WriteMessage(in); err != nil {
			t.Fatalf("L=%d write: %v", l, err)
		}
		out, err := NewReader(&buf, 65536).ReadMessage()
		if err != nil {
			t.Fatalf("L=%d read: %v", l, err)
		}
		assertEqualMessage(t, in, out)
	}
}

// One byte past the 24-bit boundary cannot be framed; the writer must reject
// it instead of truncating the length field to zero.
func TestWriterRejectsOversizeMessage(t *testing.T) {
	payload := make([]byte, 0x1000000)
	var buf bytes.Buffer
	w := NewWriter(&buf, 65536)
	in := &Message{CSID: 6, Timestamp: 1, TypeID: 9, MessageStreamID: 1, Payload: payload}
	if err := w.WriteMessage(in); err == nil {
		t.Fatalf("expected oversize message to be rejected")
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing may reach the wire on rejection, wrote %d bytes", buf.Len())
	}
	if _, err := EncodeChunkHeader(&ChunkHeader{FMT: 0, CSID: 6, MessageLength: MaxMessageLength + 1, MessageTypeID: 9, MessageStreamID: 1}, nil); err == nil {
		t.Fatalf("EncodeChunkHeader must reject a length beyond the 24-bit field")
	}
}

// Extended timestamp boundary: timestamps at and above 0xFFFFFF round-trip,
// including the multi-chunk case where FMT3 continuations repeat the field.
func TestRoundTripExtendedTimestamp(t *testing.T) {
	for _, ts := range []uint32{0xFFFFFE, 0xFFFFFF, 0x01000000} {
		payload := make([]byte, 300)
		var buf bytes.Buffer
		w := NewWriter(&buf, 128)
		in := &Message{CSID: 6, Timestamp: ts, TypeID: 9, MessageStreamID: 1, Payload: payload}
		if err := w.WriteMessage(in); err != nil {
			t.Fatalf("ts=%#x write: %v", ts, err)
		}
		out, err := NewReader(&buf, 128).ReadMessage()
		if err != nil {
			t.Fatalf("ts=%#x read: %v", ts, err)
		}
		assertEqualMessage(t, in, out)
	}
}

// A reader must also accept FMT3 continuations that omit the repeated
// extended-timestamp field (encoders disagree).
func TestReaderAcceptsOmittedFmt3ExtendedTimestamp(t *testing.T) {
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	var buf bytes.Buffer
	// First chunk: FMT0 with extended timestamp, 128 bytes of payload.
	h := &ChunkHeader{FMT: 0, CSID: 6, Timestamp: 0x01000000, MessageLength: 200, MessageTypeID: 9, MessageStreamID: 1}
	hdr, err := EncodeChunkHeader(h, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Write(hdr)
	buf.Write(payload[:128])
	// Continuation without the 4-byte extended timestamp.
	buf.WriteByte(0xC6)
	buf.Write(payload[128:])

	out, err := NewReader(&buf, 128).ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Timestamp != 0x01000000 || !bytes.Equal(out.Payload, payload) {
		t.Fatalf("message corrupted: ts=%#x len=%d", out.Timestamp, len(out.Payload))
	}
}

func TestReaderInterleavedCSIDs(t *testing.T) {
	// Two messages interleave on different chunk streams; both reassemble.
	a := make([]byte, 200) // needs 2 chunks at size 128
	b := make([]byte, 100)
	for i := range a {
		a[i] = 0xAA
	}
	for i := range b {
		b[i] = 0xBB
	}
	var buf bytes.Buffer
	ha := &ChunkHeader{FMT: 0, CSID: 4, Timestamp: 10, MessageLength: 200, MessageTypeID: 8, MessageStreamID: 1}
	hb := &ChunkHeader{FMT: 0, CSID: 6, Timestamp: 20, MessageLength: 100, MessageTypeID: 9, MessageStreamID: 1}
	hdrA, _ := EncodeChunkHeader(ha, nil)
	hdrB, _ := EncodeChunkHeader(hb, nil)
	buf.Write(hdrA)
	buf.Write(a[:128])
	buf.Write(hdrB) // full message for csid 6 interleaves
	buf.Write(b)
	buf.WriteByte(0xC4) // FMT3 continuation csid 4
	buf.Write(a[128:])

	r := NewReader(&buf, 128)
	first, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first.CSID != 6 || !bytes.Equal(first.Payload, b) {
		t.Fatalf("expected csid 6 message first, got csid %d", first.CSID)
	}
	second, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second.CSID != 4 || !bytes.Equal(second.Payload, a) {
		t.Fatalf("csid 4 message corrupted")
	}
}

func TestReaderAppliesInlineSetChunkSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 128)
	// Set Chunk Size to 4096 on csid 2 / msid 0.
	scs := &Message{CSID: 2, TypeID: 1, MessageStreamID: 0, Payload: []byte{0x00, 0x00, 0x10, 0x00}}
	if err := w.WriteMessage(scs); err != nil {
		t.Fatalf("write scs: %v", err)
	}
	w.SetChunkSize(4096)
	payload := make([]byte, 3000) // would need 24 chunks at 128, 1 chunk at 4096
	video := &Message{CSID: 6, Timestamp: 5, TypeID: 9, MessageStreamID: 1, Payload: payload}
	if err := w.WriteMessage(video); err != nil {
		t.Fatalf("write video: %v", err)
	}
	r := NewReader(&buf, 128)
	first, err := r.ReadMessage()
	if err != nil || first.TypeID != 1 {
		t.Fatalf("expected set chunk size message, err=%v", err)
	}
	if r.ChunkSize() != 4096 {
		t.Fatalf("reader chunk size not applied: %d", r.ChunkSize())
	}
	second, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read video: %v", err)
	}
	if len(second.Payload) != 3000 {
		t.Fatalf("video payload corrupted: %d", len(second.Payload))
	}
}

func TestReaderAbortDiscardsPartialMessage(t *testing.T) {
	var buf bytes.Buffer
	h := &ChunkHeader{FMT: 0, CSID: 4, Timestamp: 1, MessageLength: 256, MessageTypeID: 9, MessageStreamID: 1}
	hdr, _ := EncodeChunkHeader(h, nil)
	buf.Write(hdr)
	buf.Write(make([]byte, 128)) // half the message

	// Abort for csid 4 arrives on the control stream.
	aw := NewWriter(&buf, 128)
	abort := &Message{CSID: 2, TypeID: 2, MessageStreamID: 0, Payload: []byte{0x00, 0x00, 0x00, 0x04}}
	if err := aw.WriteMessage(abort); err != nil {
		t.Fatalf("write abort: %v", err)
	}

	// A fresh FMT0 message on csid 4 after the abort.
	fresh := &ChunkHeader{FMT: 0, CSID: 4, Timestamp: 2, MessageLength: 3, MessageTypeID: 9, MessageStreamID: 1}
	hdr2, _ := EncodeChunkHeader(fresh, nil)
	buf.Write(hdr2)
	buf.Write([]byte{7, 8, 9})

	r := NewReader(&buf, 128)
	first, err := r.ReadMessage()
	if err != nil || first.TypeID != 2 {
		t.Fatalf("expected abort message first, err=%v", err)
	}
	second, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read after abort: %v", err)
	}
	if !bytes.Equal(second.Payload, []byte{7, 8, 9}) {
		t.Fatalf("fresh message corrupted after abort: %x", second.Payload)
	}
}

func TestZeroLengthMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 128)
	in := &Message{CSID: 3, Timestamp: 0, TypeID: 20, MessageStreamID: 0, Payload: nil}
	if err := w.WriteMessage(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := NewReader(&buf, 128).ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.MessageLength != 0 || len(out.Payload) != 0 {
		t.Fatalf("expected empty message, got len %d", len(out.Payload))
	}
}

func assertEqualMessage(t *testing.T, in, out *Message) {
	t.Helper()
	if out.CSID != in.CSID || out.Timestamp != in.Timestamp || out.TypeID != in.TypeID ||
		out.MessageStreamID != in.MessageStreamID || out.MessageLength != in.MessageLength {
		t.Fatalf("header mismatch: in=%+v out-hdr={csid:%d ts:%d type:%d msid:%d len:%d}",
			in, out.CSID, out.Timestamp, out.TypeID, out.MessageStreamID, out.MessageLength)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch (len in=%d out=%d)", len(in.Payload), len(out.Payload))
	}
}
