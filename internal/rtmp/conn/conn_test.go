package conn

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/control"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/handshake"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
)

func TestStateMachineValidChain(t *testing.T) {
	m := &stateMachine{}
	chain := []State{StateHandshaking, StateConnected, StatePublishing, StateConnected, StatePlaying, StateClosing, StateClosed}
	for _, to := range chain {
		if err := m.transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
}

func TestStateMachineRejectsInvalid(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateUninitialized, StateConnected},
		{StateUninitialized, StatePublishing},
		{StateHandshaking, StatePlaying},
		{StatePublishing, StatePlaying},
		{StateClosed, StateConnected},
		{StateClosing, StateConnected},
	}
	for _, c := range cases {
		m := &stateMachine{s: c.from}
		if err := m.transition(c.to); err == nil {
			t.Fatalf("%s -> %s must be rejected", c.from, c.to)
		}
	}
}

func TestSessionStreamBinding(t *testing.T) {
	s := NewSession()
	s.SetConnectInfo("live", "rtmp://localhost/live", "FMLE/3.0", 0)
	if s.App() != "live" || s.TcURL() != "rtmp://localhost/live" {
		t.Fatalf("connect info lost")
	}
	if id := s.Allocator().Allocate(); id != 1 {
		t.Fatalf("first stream id must be 1, got %d", id)
	}
	s.SetStreamKey("live/cam1")
	if s.StreamKey() != "live/cam1" {
		t.Fatalf("stream key lost")
	}
	s.ClearStreamKey()
	if s.StreamKey() != "" {
		t.Fatalf("stream key must clear")
	}
}

// acceptPipe runs Accept on one end of a pipe while the test drives the other
// end as a handshaking client. Returns the connection and the client-side
// chunk reader/writer.
func acceptPipe(t *testing.T, cfg Config) (*Connection, net.Conn, *chunk.Reader, *chunk.Writer) {
	t.Helper()
	server, client := net.Pipe()
	type result struct {
		c   *Connection
		err error
	}
	res := make(chan result, 1)
	go func() {
		c, err := Accept(server, cfg)
		res <- result{c, err}
	}()
	if err := handshake.ClientHandshake(client); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	r := chunk.NewReader(client, chunk.DefaultChunkSize)
	w := chunk.NewWriter(client, chunk.DefaultChunkSize)
	got := <-res
	if got.err != nil {
		t.Fatalf("accept: %v", got.err)
	}
	t.Cleanup(func() {
		_ = got.c.Close()
		_ = client.Close()
	})
	return got.c, client, r, w
}

func TestAcceptSendsControlBurstInOrder(t *testing.T) {
	c, _, r, _ := acceptPipe(t, Config{ChunkSize: 4096, WindowAckSize: 2_500_000, PeerBandwidth: 2_500_000})
	if c.State() != StateConnected {
		t.Fatalf("state after accept: %s", c.State())
	}
	go func() {
		if err := c.SendControlBurst(); err != nil {
			t.Errorf("send burst: %v", err)
		}
	}()

	wantTypes := []uint8{control.TypeWindowAcknowledgement, control.TypeSetPeerBandwidth, control.TypeSetChunkSize}
	for i, want := range wantTypes {
		msg, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("read burst message %d: %v", i, err)
		}
		if msg.TypeID != want {
			t.Fatalf("burst order: message %d type %d, want %d", i, msg.TypeID, want)
		}
		if msg.CSID != 2 || msg.MessageStreamID != 0 {
			t.Fatalf("control message must ride csid 2 / msid 0")
		}
		switch want {
		case control.TypeWindowAcknowledgement:
			if binary.BigEndian.Uint32(msg.Payload) != 2_500_000 {
				t.Fatalf("window ack value wrong")
			}
		case control.TypeSetChunkSize:
			if binary.BigEndian.Uint32(msg.Payload) != 4096 {
				t.Fatalf("chunk size value wrong")
			}
		}
	}
}

func TestDispatchConnectCommand(t *testing.T) {
	c, _, r, w := acceptPipe(t, Config{})
	d := message.NewDispatcher(c.Log())
	handled := make(chan *message.Command, 1)
	d.RegisterCommand("connect", message.HandlerFunc(func(ctx message.HandlerContext, m *chunk.Message) error {
		cmd, err := message.DecodeCommand(m.TypeID, m.Payload)
		if err != nil {
			return err
		}
		handled <- cmd
		return ctx.SendMessage(&chunk.Message{
			CSID: 3, TypeID: message.TypeCommandAMF0, MessageStreamID: 0,
			Payload: m.Payload, MessageLength: m.MessageLength,
		})
	}))
	c.SetDispatcher(d)
	c.Start()

	payload, _ := amf.EncodeAll("connect", 1.0, map[string]interface{}{"app": "live"})
	err := w.WriteMessage(&chunk.Message{
		CSID: 3, TypeID: message.TypeCommandAMF0, MessageStreamID: 0,
		MessageLength: uint32(len(payload)), Payload: payload,
	})
	if err != nil {
		t.Fatalf("write connect: %v", err)
	}

	select {
	case cmd := <-handled:
		if cmd.Name != "connect" || cmd.CommandObject["app"] != "live" {
			t.Fatalf("wrong command delivered: %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("connect handler not invoked")
	}

	// The handler's echo arrives back on the client.
	echo, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if echo.TypeID != message.TypeCommandAMF0 {
		t.Fatalf("echo type wrong: %d", echo.TypeID)
	}
}

func TestPropertyBag(t *testing.T) {
	c, _, _, _ := acceptPipe(t, Config{})
	c.SetProperty("publishing", "true")
	if v, ok := c.Property("publishing"); !ok || v != "true" {
		t.Fatalf("property lost")
	}
	c.RemoveProperty("publishing")
	if _, ok := c.Property("publishing"); ok {
		t.Fatalf("property must be removed")
	}
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	c, _, r, _ := acceptPipe(t, Config{IdleTimeout: 60 * time.Millisecond})
	c.SetDispatcher(message.NewDispatcher(c.Log()))
	c.Start()
	go func() {
		// Consume the burst so pipe writes don't block teardown.
		for {
			if _, err := r.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("idle connection was not closed")
	}
}

func TestSendMessageAfterCloseFails(t *testing.T) {
	c, _, r, _ := acceptPipe(t, Config{})
	go func() {
		for {
			if _, err := r.ReadMessage(); err != nil {
				return
			}
		}
	}()
	_ = c.Close()
	err := c.SendMessage(&chunk.Message{CSID: 3, TypeID: 20, Payload: []byte{0x05}, MessageLength: 1})
	if err == nil {
		t.Fatalf("send after close must fail")
	}
}
