package message

// Dispatcher: routes decoded packets to handlers. Command-class messages
// (types 17/20) route by command name; everything else routes by message type
// id. Handlers receive the packet plus a HandlerContext giving them the
// connection's send path and property bag.

import (
	"fmt"
	"log/slog"

	protoerr "github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// HandlerContext is the narrow surface handlers get to act on a connection.
// *conn.Connection implements it; tests use stubs.
type HandlerContext interface {
	// SendMessage enqueues a packet on the connection's outbound channel.
	SendMessage(*chunk.Message) error
	// Property returns a per-connection string property.
	Property(key string) (string, bool)
	// SetProperty stores a per-connection string property.
	SetProperty(key, value string)
	// RemoveProperty deletes a per-connection property.
	RemoveProperty(key string)
	// ConnID returns the connection's identity for registry bookkeeping.
	ConnID() string
}

// Handler processes one packet. Returning an error terminates the connection
// unless the error classifies as a stream/auth error (reported via onStatus by
// the command layer instead).
type Handler interface {
	Handle(ctx HandlerContext, msg *chunk.Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx HandlerContext, msg *chunk.Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx HandlerContext, msg *chunk.Message) error { return f(ctx, msg) }

// Dispatcher routes packets to registered handlers.
type Dispatcher struct {
	typeHandlers    map[uint8][]Handler
	commandHandlers map[string]Handler
	defaultHandler  Handler
	log             *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		typeHandlers:    make(map[uint8][]Handler),
		commandHandlers: make(map[string]Handler),
		log:             log.With("component", "dispatcher"),
	}
}

// RegisterType appends a handler for a message type id. Multiple handlers per
// type run in registration order.
func (d *Dispatcher) RegisterType(typeID uint8, h Handler) {
	d.typeHandlers[typeID] = append(d.typeHandlers[typeID], h)
}

// RegisterCommand installs the handler for a command name (last registration
// wins).
func (d *Dispatcher) RegisterCommand(name string, h Handler) {
	d.commandHandlers[name] = h
}

// SetDefault installs the fallback handler for unrouted messages. Without one,
// unrouted non-command messages are logged and dropped.
func (d *Dispatcher) SetDefault(h Handler) { d.defaultHandler = h }

// Dispatch routes one packet. Unknown commands are logged at warn level and
// ignored (encoder interop: releaseStream, FCPublish and friends arrive here).
func (d *Dispatcher) Dispatch(ctx HandlerContext, msg *chunk.Message) error {
	if msg == nil {
		return protoerr.NewProtocolError("dispatch", fmt.Errorf("nil message"))
	}
	if IsCommand(msg.TypeID) {
		return d.dispatchCommand(ctx, msg)
	}
	if handlers, ok := d.typeHandlers[msg.TypeID]; ok {
		for _, h := range handlers {
			if err := h.Handle(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	}
	if d.defaultHandler != nil {
		return d.defaultHandler.Handle(ctx, msg)
	}
	d.log.Debug("no handler for message type", "type_id", msg.TypeID, "len", len(msg.Payload))
	return nil
}

func (d *Dispatcher) dispatchCommand(ctx HandlerContext, msg *chunk.Message) error {
	name, err := CommandName(msg.TypeID, msg.Payload)
	if err != nil {
		return err
	}
	if h, ok := d.commandHandlers[name]; ok {
		return h.Handle(ctx, msg)
	}
	d.log.Warn("unknown command ignored", "name", name, "type_id", msg.TypeID)
	return nil
}
