package control

// Handler logic for reassembled control messages (types 1-6). Kept decoupled
// from the conn package to avoid an import cycle: the connection builds a
// Context of pointers into its mutable state plus a Send function, and the
// processor loop calls Handle for every control-class message.

import (
	"fmt"
	"log/slog"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Context carries mutable control-related state for a single RTMP connection.
// ReadChunkSize, WindowAckSize, PeerBandwidth, LimitType and Send are
// required. OnPingRequest, OnPingReply and OnAbort are optional callbacks for
// the connection's liveness tracking and dechunker.
type Context struct {
	ReadChunkSize *uint32
	WindowAckSize *uint32
	PeerBandwidth *uint32
	LimitType     *uint8
	LastPeerAck   *uint32
	Log           *slog.Logger
	Send          func(*chunk.Message) error
	OnPingRequest func(ts uint32) // invoked after the Ping Response is sent
	OnPingReply   func(ts uint32) // invoked when the peer answers our ping
	OnAbort       func(csid uint32)
}

// Handle processes a single control message (types 1-6): decodes the payload,
// mutates context state, and emits response control messages where the
// protocol demands one (Ping Request -> Ping Response).
func Handle(ctx *Context, msg *chunk.Message) error {
	if ctx == nil || ctx.ReadChunkSize == nil || ctx.WindowAckSize == nil || ctx.PeerBandwidth == nil || ctx.LimitType == nil || ctx.Send == nil {
		return fmt.Errorf("control handler: invalid context (nil field)")
	}
	if msg == nil {
		return fmt.Errorf("control handler: nil message")
	}
	decoded, err := Decode(msg.TypeID, msg.Payload)
	if err != nil {
		return fmt.Errorf("control handler decode: %w", err)
	}

	switch v := decoded.(type) {
	case *SetChunkSize:
		old := *ctx.ReadChunkSize
		*ctx.ReadChunkSize = v.Size
		if ctx.Log != nil {
			ctx.Log.Debug("set chunk size received", "old", old, "new", v.Size)
		}
	case *AbortMessage:
		if ctx.OnAbort != nil {
			ctx.OnAbort(v.CSID)
		}
		if ctx.Log != nil {
			ctx.Log.Debug("abort received", "csid", v.CSID)
		}
	case *Acknowledgement:
		if ctx.LastPeerAck != nil {
			*ctx.LastPeerAck = v.SequenceNumber
		}
		if ctx.Log != nil {
			ctx.Log.Debug("acknowledgement received", "seq", v.SequenceNumber)
		}
	case *UserControl:
		switch v.EventType {
		case UCStreamBegin:
			if ctx.Log != nil {
				ctx.Log.Debug("user control: stream begin", "stream_id", v.StreamID)
			}
		case UCStreamEOF:
			if ctx.Log != nil {
				ctx.Log.Debug("user control: stream eof", "stream_id", v.StreamID)
			}
		case UCPingRequest:
			if err := ctx.Send(EncodeUserControlPingResponse(v.Timestamp)); err != nil {
				return fmt.Errorf("control handler: send ping response: %w", err)
			}
			if ctx.OnPingRequest != nil {
				ctx.OnPingRequest(v.Timestamp)
			}
		case UCPingResponse:
			if ctx.OnPingReply != nil {
				ctx.OnPingReply(v.Timestamp)
			}
		default:
			if ctx.Log != nil {
				ctx.Log.Debug("user control: unhandled event", "event_type", v.EventType)
			}
		}
	case *WindowAcknowledgementSize:
		old := *ctx.WindowAckSize
		*ctx.WindowAckSize = v.Size
		if ctx.Log != nil {
			ctx.Log.Debug("window ack size received", "old", old, "new", v.Size)
		}
	case *SetPeerBandwidth:
		*ctx.PeerBandwidth = v.Bandwidth
		*ctx.LimitType = v.LimitType
		if ctx.Log != nil {
			ctx.Log.Debug("set peer bandwidth received", "bw", v.Bandwidth, "limit_type", v.LimitType)
		}
	default:
		return fmt.Errorf("control handler: unexpected decoded type %T", v)
	}
	return nil
}
