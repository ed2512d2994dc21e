package control

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

func TestEncodeControlMessageShapes(t *testing.T) {
	cases := []struct {
		name    string
		msg     *chunk.Message
		typeID  uint8
		payload []byte
	}{
		{"set_chunk_size", EncodeSetChunkSize(4096), TypeSetChunkSize, []byte{0x00, 0x00, 0x10, 0x00}},
		{"abort", EncodeAbortMessage(6), TypeAbortMessage, []byte{0, 0, 0, 6}},
		{"ack", EncodeAcknowledgement(0xDEAD), TypeAcknowledgement, []byte{0x00, 0x00, 0xDE, 0xAD}},
		{"window_ack", EncodeWindowAcknowledgementSize(2_500_000), TypeWindowAcknowledgement, []byte{0x00, 0x26, 0x25, 0xA0}},
		{"peer_bw", EncodeSetPeerBandwidth(2_500_000, LimitDynamic), TypeSetPeerBandwidth, []byte{0x00, 0x26, 0x25, 0xA0, 0x02}},
		{"stream_begin", EncodeUserControlStreamBegin(1), TypeUserControl, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}},
		{"stream_eof", EncodeUserControlStreamEOF(1), TypeUserControl, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01}},
		{"ping_request", EncodeUserControlPingRequest(7), TypeUserControl, []byte{0x00, 0x06, 0x00, 0x00, 0x00, 0x07}},
		{"ping_response", EncodeUserControlPingResponse(7), TypeUserControl, []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x07}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.msg.CSID != ControlCSID || c.msg.MessageStreamID != 0 {
				t.Fatalf("control message must ride csid 2 / msid 0, got %d/%d", c.msg.CSID, c.msg.MessageStreamID)
			}
			if c.msg.TypeID != c.typeID {
				t.Fatalf("type id: got %d want %d", c.msg.TypeID, c.typeID)
			}
			if !bytes.Equal(c.msg.Payload, c.payload) {
				t.Fatalf("payload: got %x want %x", c.msg.Payload, c.payload)
			}
			if c.msg.MessageLength != uint32(len(c.payload)) {
				t.Fatalf("length field %d != payload len %d", c.msg.MessageLength, len(c.payload))
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		typeID  uint8
		payload []byte
	}{
		{"scs_short", TypeSetChunkSize, []byte{0, 0}},
		{"scs_zero", TypeSetChunkSize, []byte{0, 0, 0, 0}},
		{"scs_high_bit", TypeSetChunkSize, []byte{0x80, 0, 0, 1}},
		{"uc_short", TypeUserControl, []byte{0}},
		{"uc_begin_short", TypeUserControl, []byte{0, 0, 0}},
		{"bw_bad_limit", TypeSetPeerBandwidth, []byte{0, 0, 0, 1, 9}},
		{"unknown_type", 42, []byte{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Decode(c.typeID, c.payload); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}

func newTestContext(sent *[]*chunk.Message) *Context {
	var (
		rcs  uint32 = 128
		was  uint32 = 2_500_000
		pbw  uint32 = 2_500_000
		lt   uint8  = LimitDynamic
		lack uint32
	)
	return &Context{
		ReadChunkSize: &rcs,
		WindowAckSize: &was,
		PeerBandwidth: &pbw,
		LimitType:     &lt,
		LastPeerAck:   &lack,
		Log:           slog.Default(),
		Send: func(m *chunk.Message) error {
			*sent = append(*sent, m)
			return nil
		},
	}
}

func TestHandleSetChunkSizeMutatesState(t *testing.T) {
	var sent []*chunk.Message
	ctx := newTestContext(&sent)
	if err := Handle(ctx, EncodeSetChunkSize(8192)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *ctx.ReadChunkSize != 8192 {
		t.Fatalf("read chunk size not updated: %d", *ctx.ReadChunkSize)
	}
}

func TestHandlePingRequestSendsResponse(t *testing.T) {
	var sent []*chunk.Message
	ctx := newTestContext(&sent)
	if err := Handle(ctx, EncodeUserControlPingRequest(99)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected one response, got %d", len(sent))
	}
	want := EncodeUserControlPingResponse(99)
	if !bytes.Equal(sent[0].Payload, want.Payload) {
		t.Fatalf("response payload: got %x want %x", sent[0].Payload, want.Payload)
	}
}

func TestHandleAbortInvokesCallback(t *testing.T) {
	var sent []*chunk.Message
	var aborted []uint32
	ctx := newTestContext(&sent)
	ctx.OnAbort = func(csid uint32) { aborted = append(aborted, csid) }
	if err := Handle(ctx, EncodeAbortMessage(6)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(aborted) != 1 || aborted[0] != 6 {
		t.Fatalf("abort callback not invoked: %v", aborted)
	}
}

func TestHandlePingResponseTracksLiveness(t *testing.T) {
	var sent []*chunk.Message
	var replies []uint32
	ctx := newTestContext(&sent)
	ctx.OnPingReply = func(ts uint32) { replies = append(replies, ts) }
	if err := Handle(ctx, EncodeUserControlPingResponse(1234)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies) != 1 || replies[0] != 1234 {
		t.Fatalf("ping reply callback not invoked: %v", replies)
	}
}
