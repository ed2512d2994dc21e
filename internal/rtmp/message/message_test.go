package message

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

func mediaMsg(typeID uint8, seq int) *chunk.Message {
	return &chunk.Message{TypeID: typeID, Payload: []byte{byte(seq)}}
}

func TestPriorityValues(t *testing.T) {
	cases := []struct {
		typeID uint8
		want   int
	}{
		{TypeSetChunkSize, 10}, {TypeAbort, 10}, {TypeAcknowledgement, 10},
		{TypeUserControl, 10}, {TypeWindowAckSize, 10}, {TypeSetPeerBandwidth, 10},
		{TypeCommandAMF0, 8}, {TypeCommandAMF3, 8},
		{TypeDataAMF0, 6}, {TypeDataAMF3, 6},
		{TypeAudio, 4},
		{TypeVideo, 2},
		{TypeAggregate, 1}, {TypeSharedObjectAMF0, 1},
	}
	for _, c := range cases {
		if got := Priority(c.typeID); got != c.want {
			t.Fatalf("type %d: priority %d, want %d", c.typeID, got, c.want)
		}
	}
}

// Spec property: a control message enqueued after 1000 video packets dequeues
// first when capacity allows.
func TestQueueControlOvertakesVideo(t *testing.T) {
	q := NewQueue(1001)
	for i := 0; i < 1000; i++ {
		if err := q.Push(mediaMsg(TypeVideo, i)); err != nil {
			t.Fatalf("push video %d: %v", i, err)
		}
	}
	ctl := &chunk.Message{TypeID: TypeSetChunkSize, Payload: []byte{0, 0, 16, 0}}
	if err := q.Push(ctl); err != nil {
		t.Fatalf("push control: %v", err)
	}
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.TypeID != TypeSetChunkSize {
		t.Fatalf("expected control first, got type %d", got.TypeID)
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		if err := q.Push(mediaMsg(TypeVideo, i)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		got, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got.Payload[0] != byte(i) {
			t.Fatalf("FIFO violated: got %d want %d", got.Payload[0], i)
		}
	}
}

func TestQueueFullIsAnError(t *testing.T) {
	q := NewQueue(2)
	_ = q.Push(mediaMsg(TypeVideo, 0))
	_ = q.Push(mediaMsg(TypeVideo, 1))
	if err := q.Push(mediaMsg(TypeVideo, 2)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue(4)
	done := make(chan *chunk.Message, 1)
	go func() {
		m, _ := q.Pop(context.Background())
		done <- m
	}()
	time.Sleep(10 * time.Millisecond)
	if err := q.Push(mediaMsg(TypeAudio, 9)); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case m := <-done:
		if m.Payload[0] != 9 {
			t.Fatalf("wrong message delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pop did not wake")
	}
}

func TestQueueCloseDrainsThenErrors(t *testing.T) {
	q := NewQueue(4)
	_ = q.Push(mediaMsg(TypeVideo, 1))
	q.Close()
	if _, err := q.Pop(context.Background()); err != nil {
		t.Fatalf("pending item must drain after close: %v", err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Push(mediaMsg(TypeVideo, 2)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("push after close: got %v", err)
	}
}

func TestQueuePopObservesCancellation(t *testing.T) {
	q := NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pop did not observe cancellation")
	}
}

func TestDecodeCommandAMF0(t *testing.T) {
	payload, err := amf.EncodeAll("connect", 1.0, map[string]interface{}{"app": "live"}, "extra")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cmd, err := DecodeCommand(TypeCommandAMF0, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "connect" || cmd.TransactionID != 1.0 {
		t.Fatalf("unexpected envelope: %+v", cmd)
	}
	if cmd.CommandObject["app"] != "live" {
		t.Fatalf("command object lost: %#v", cmd.CommandObject)
	}
	if len(cmd.Arguments) != 1 || cmd.Arguments[0] != "extra" {
		t.Fatalf("arguments lost: %#v", cmd.Arguments)
	}
}

func TestDecodeCommandAMF3StripsSwitchByte(t *testing.T) {
	inner, _ := amf.EncodeAll("createStream", 2.0, nil)
	payload := append([]byte{0x00}, inner...)
	cmd, err := DecodeCommand(TypeCommandAMF3, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "createStream" || cmd.TransactionID != 2.0 {
		t.Fatalf("unexpected envelope: %+v", cmd)
	}
	if _, err := DecodeCommand(TypeCommandAMF3, inner); err == nil {
		t.Fatalf("missing switch byte must fail")
	}
}

func TestCommandEncodeRoundTrip(t *testing.T) {
	in := &Command{
		Name:          "_result",
		TransactionID: 4.0,
		CommandObject: map[string]interface{}{"fmsVer": "FMS/3,5,7,7009"},
		Arguments:     []interface{}{1.0},
	}
	msg, err := in.Message(0)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.TypeID != TypeCommandAMF0 || msg.CSID != CSIDCommand {
		t.Fatalf("wrong envelope: type=%d csid=%d", msg.TypeID, msg.CSID)
	}
	out, err := DecodeCommand(msg.TypeID, msg.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != in.Name || out.TransactionID != in.TransactionID || len(out.Arguments) != 1 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDataMetadataExtraction(t *testing.T) {
	meta := map[string]interface{}{"width": 1920.0, "height": 1080.0}
	payload, _ := amf.EncodeAll(DataSetDataFrame, DataOnMetaData, meta)
	d, err := DecodeData(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := d.Metadata()
	if !ok || got["width"] != 1920.0 {
		t.Fatalf("metadata not extracted: %#v", got)
	}

	// Bare onMetaData with an ECMA array value.
	payload2, _ := amf.EncodeAll(DataOnMetaData, amf.EcmaArray{"duration": 0.0})
	d2, err := DecodeData(payload2)
	if err != nil {
		t.Fatalf("decode2: %v", err)
	}
	got2, ok := d2.Metadata()
	if !ok || got2["duration"] != 0.0 {
		t.Fatalf("ecma metadata not extracted: %#v", got2)
	}
}

func TestSampleAccessMessage(t *testing.T) {
	msg, err := NewSampleAccess(true, true).Message(7)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.MessageStreamID != 7 || msg.TypeID != TypeDataAMF0 {
		t.Fatalf("wrong envelope: %+v", msg)
	}
	d, err := DecodeData(msg.Payload)
	if err != nil || d.TypeName != DataSampleAccess {
		t.Fatalf("round trip failed: %v %+v", err, d)
	}
	if d.Values[0] != true || d.Values[1] != true {
		t.Fatalf("values lost: %#v", d.Values)
	}
}

type stubCtx struct {
	sent  []*chunk.Message
	props map[string]string
}

func newStubCtx() *stubCtx { return &stubCtx{props: map[string]string{}} }

func (s *stubCtx) SendMessage(m *chunk.Message) error { s.sent = append(s.sent, m); return nil }
func (s *stubCtx) Property(k string) (string, bool)   { v, ok := s.props[k]; return v, ok }
func (s *stubCtx) SetProperty(k, v string)            { s.props[k] = v }
func (s *stubCtx) RemoveProperty(k string)            { delete(s.props, k) }
func (s *stubCtx) ConnID() string                     { return "c000001" }

func TestDispatcherRoutesByTypeAndCommand(t *testing.T) {
	d := NewDispatcher(nil)
	var audioSeen, connectSeen int
	d.RegisterType(TypeAudio, HandlerFunc(func(ctx HandlerContext, m *chunk.Message) error {
		audioSeen++
		return nil
	}))
	d.RegisterCommand("connect", HandlerFunc(func(ctx HandlerContext, m *chunk.Message) error {
		connectSeen++
		return nil
	}))

	ctx := newStubCtx()
	if err := d.Dispatch(ctx, mediaMsg(TypeAudio, 0)); err != nil {
		t.Fatalf("audio dispatch: %v", err)
	}
	payload, _ := amf.EncodeAll("connect", 1.0, map[string]interface{}{"app": "live"})
	cmdMsg := &chunk.Message{TypeID: TypeCommandAMF0, Payload: payload}
	if err := d.Dispatch(ctx, cmdMsg); err != nil {
		t.Fatalf("command dispatch: %v", err)
	}
	if audioSeen != 1 || connectSeen != 1 {
		t.Fatalf("routing failed: audio=%d connect=%d", audioSeen, connectSeen)
	}
}

func TestDispatcherIgnoresUnknownCommands(t *testing.T) {
	d := NewDispatcher(nil)
	payload, _ := amf.EncodeAll("FCPublish", 3.0, nil, "cam1")
	msg := &chunk.Message{TypeID: TypeCommandAMF0, Payload: payload}
	if err := d.Dispatch(newStubCtx(), msg); err != nil {
		t.Fatalf("unknown command must be ignored, got %v", err)
	}
}

func TestDispatcherHandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher(nil)
	boom := fmt.Errorf("boom")
	d.RegisterType(TypeVideo, HandlerFunc(func(ctx HandlerContext, m *chunk.Message) error {
		return boom
	}))
	if err := d.Dispatch(newStubCtx(), mediaMsg(TypeVideo, 0)); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
