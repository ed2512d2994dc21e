// Package conn owns the per-peer connection lifecycle above the handshake:
// a reader task (chunk-decode into the priority queue), a processor task
// (pop + dispatch), a writer task (drain the outbound channel into the chunk
// writer), and a level-triggered shutdown signal every task observes.
package conn

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/logger"
	"github.com/alxayo/go-rtmpcast/internal/metrics"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/control"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/handshake"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
)

// Config carries the knobs a server applies to every accepted connection.
type Config struct {
	ChunkSize        uint32        // outbound chunk size announced in the control burst
	WindowAckSize    uint32        // advertised window acknowledgement size
	PeerBandwidth    uint32        // advertised peer bandwidth
	QueueCapacity    int           // inbound priority queue bound
	OutboundCapacity int           // outbound channel bound
	IdleTimeout      time.Duration // no inbound packet for this long is fatal (0 disables)
	PingInterval     time.Duration // server ping cadence (0 disables)
	HandshakeOptions handshake.Options
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 4096
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = 2_500_000
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = 2_500_000
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = message.DefaultQueueCapacity
	}
	if c.OutboundCapacity == 0 {
		c.OutboundCapacity = 100
	}
}

// countingReader tracks inbound bytes for acknowledgement emission.
type countingReader struct {
	r io.Reader
	n atomic.Uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(uint64(n))
	return n, err
}

// Connection represents one accepted peer that completed the handshake.
type Connection struct {
	id         string
	netConn    net.Conn
	remoteAddr net.Addr
	log        *slog.Logger
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc // the shutdown signal: level-triggered, any task may fire it
	wg     sync.WaitGroup

	state   stateMachine
	session *Session

	// Protocol state touched by the control handler and loops.
	readChunkSize  uint32
	writeChunkSize atomic.Uint32
	windowAckSize  uint32 // peer's advertised window (acks we owe)
	peerBandwidth  uint32
	limitType      uint8
	lastPeerAck    uint32

	counting     *countingReader
	lastAckSent  uint32
	lastActivity atomic.Int64 // UnixNano of the last inbound packet
	pingPending  atomic.Bool

	inQueue    *message.Queue
	outbound   chan *chunk.Message
	dispatcher *message.Dispatcher

	propMu sync.RWMutex
	props  map[string]string

	closeOnce sync.Once
	onClose   func(*Connection)
}

var connCounter uint64

func nextID() string { return fmt.Sprintf("c%06d", atomic.AddUint64(&connCounter, 1)) }

// Accept runs the server-side handshake on raw and returns a Connection ready
// for Start. On handshake failure raw is closed.
func Accept(raw net.Conn, cfg Config) (*Connection, error) {
	if raw == nil {
		return nil, errors.NewConnectionError("accept", fmt.Errorf("nil conn"))
	}
	cfg.applyDefaults()

	start := time.Now()
	if err := handshake.ServerHandshakeWith(raw, cfg.HandshakeOptions); err != nil {
		_ = raw.Close()
		return nil, err
	}

	c := newConnection(raw, cfg)
	c.state.force(StateHandshaking)
	c.log.Info("connection accepted", "handshake_ms", time.Since(start).Milliseconds())

	// The write loop starts immediately so the connect handler can flush the
	// control burst before its _result.
	c.startWriteLoop()
	if err := c.state.transition(StateConnected); err != nil {
		_ = c.Close()
		return nil, err
	}
	metrics.ActiveConnections.Inc()
	return c, nil
}

func newConnection(raw net.Conn, cfg Config) *Connection {
	id := nextID()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:            id,
		netConn:       raw,
		remoteAddr:    raw.RemoteAddr(),
		log:           logger.WithConn(logger.Logger(), id, raw.RemoteAddr().String()),
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
		session:       NewSession(),
		readChunkSize: chunk.DefaultChunkSize,
		windowAckSize: cfg.WindowAckSize,
		peerBandwidth: cfg.PeerBandwidth,
		limitType:     control.LimitDynamic,
		counting:      &countingReader{r: raw},
		inQueue:       message.NewQueue(cfg.QueueCapacity),
		outbound:      make(chan *chunk.Message, cfg.OutboundCapacity),
		props:         make(map[string]string),
	}
	c.writeChunkSize.Store(chunk.DefaultChunkSize)
	c.lastActivity.Store(time.Now().UnixNano())
	return c
}

// ID returns the connection identity.
func (c *Connection) ID() string { return c.id }

// ConnID implements message.HandlerContext.
func (c *Connection) ConnID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }

// Session returns the per-connection dialogue state.
func (c *Connection) Session() *Session { return c.session }

// Log returns the connection-scoped logger.
func (c *Connection) Log() *slog.Logger { return c.log }

// State returns the current lifecycle state.
func (c *Connection) State() State { return c.state.current() }

// Transition moves the state machine (handlers only; the transport observes).
func (c *Connection) Transition(to State) error { return c.state.transition(to) }

// Done exposes the shutdown signal.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// SetDispatcher installs the message dispatcher. Must be called before Start.
func (c *Connection) SetDispatcher(d *message.Dispatcher) { c.dispatcher = d }

// SetOnClose installs the teardown callback (server registry cleanup).
func (c *Connection) SetOnClose(fn func(*Connection)) { c.onClose = fn }

// Property implements message.HandlerContext.
func (c *Connection) Property(key string) (string, bool) {
	c.propMu.RLock()
	defer c.propMu.RUnlock()
	v, ok := c.props[key]
	return v, ok
}

// SetProperty implements message.HandlerContext.
func (c *Connection) SetProperty(key, value string) {
	c.propMu.Lock()
	c.props[key] = value
	c.propMu.Unlock()
}

// RemoveProperty implements message.HandlerContext.
func (c *Connection) RemoveProperty(key string) {
	c.propMu.Lock()
	delete(c.props, key)
	c.propMu.Unlock()
}

// SetWriteChunkSize updates the outbound chunk size after a Set Chunk Size
// control message has been queued.
func (c *Connection) SetWriteChunkSize(size uint32) { c.writeChunkSize.Store(size) }

// SendMessage enqueues a packet for the writer loop. A short timeout provides
// backpressure; a full outbound channel is a connection error.
func (c *Connection) SendMessage(msg *chunk.Message) error {
	if msg == nil {
		return errors.NewConnectionError("send", fmt.Errorf("nil message"))
	}
	if c.ctx.Err() != nil {
		return errors.NewConnectionError("send", context.Canceled)
	}
	deadline := time.NewTimer(200 * time.Millisecond)
	defer deadline.Stop()
	select {
	case <-c.ctx.Done():
		return errors.NewConnectionError("send", context.Canceled)
	case c.outbound <- msg:
		return nil
	case <-deadline.C:
		return errors.NewConnectionError("send", fmt.Errorf("outbound queue full (len=%d)", len(c.outbound)))
	}
}

// Start launches the reader, processor and liveness tasks. The dispatcher must
// be installed first.
func (c *Connection) Start() {
	c.startReadLoop()
	c.startProcessLoop()
	if c.cfg.PingInterval > 0 || c.cfg.IdleTimeout > 0 {
		c.startLivenessLoop()
	}
}

// Close fires the shutdown signal, closes the socket, and waits for all tasks.
// Idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.state.current() != StateClosed {
			_ = c.state.transition(StateClosing)
		}
		c.cancel()
		c.inQueue.Close()
		_ = c.netConn.Close()
		c.wg.Wait()
		c.state.force(StateClosed)
		metrics.ActiveConnections.Dec()
		if c.onClose != nil {
			c.onClose(c)
		}
		c.log.Info("connection closed")
	})
	return nil
}

// shutdown is the internal fatal path: fire the signal and reap from a fresh
// goroutine (a task cannot wait for itself).
func (c *Connection) shutdown(reason string, err error) {
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, net.ErrClosed) {
		c.log.Error("connection failure", "reason", reason, "error", err)
	} else {
		c.log.Debug("connection finished", "reason", reason)
	}
	c.cancel()
	go c.Close()
}

// SendControlBurst emits, in order: WindowAckSize, SetPeerBandwidth,
// SetChunkSize. The connect handler invokes it ahead of its _result. The local
// outbound chunk size switches only after the Set Chunk Size message is
// queued.
func (c *Connection) SendControlBurst() error {
	msgs := []*chunk.Message{
		control.EncodeWindowAcknowledgementSize(c.cfg.WindowAckSize),
		control.EncodeSetPeerBandwidth(c.cfg.PeerBandwidth, control.LimitDynamic),
		control.EncodeSetChunkSize(c.cfg.ChunkSize),
	}
	for _, m := range msgs {
		if err := c.SendMessage(m); err != nil {
			return fmt.Errorf("control burst enqueue type=%d: %w", m.TypeID, err)
		}
		if m.TypeID == control.TypeSetChunkSize {
			c.SetWriteChunkSize(c.cfg.ChunkSize)
		}
	}
	c.log.Debug("control burst sent", "window_ack", c.cfg.WindowAckSize, "peer_bw", c.cfg.PeerBandwidth, "chunk_size", c.cfg.ChunkSize)
	return nil
}

// startReadLoop runs the dechunk -> queue task. Bytes from the socket are
// processed strictly in order here; prioritization happens at the queue.
func (c *Connection) startReadLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		r := chunk.NewReader(c.counting, c.readChunkSize)
		for {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			msg, err := r.ReadMessage()
			if err != nil {
				c.shutdown("read", err)
				return
			}
			c.lastActivity.Store(time.Now().UnixNano())
			if err := c.inQueue.Push(msg); err != nil {
				// A full message queue is fatal for the peer.
				c.shutdown("queue", errors.NewConnectionError("queue.push", err))
				return
			}
			metrics.QueueDepth.Set(float64(c.inQueue.Len()))
		}
	}()
}

// maybeAcknowledge emits an Acknowledgement once a peer-window's worth of
// bytes has arrived since the last one. Runs on the processor task, which owns
// windowAckSize and lastAckSent; the byte counter itself is atomic. The
// counter resets before u32 wraparound.
func (c *Connection) maybeAcknowledge() {
	window := c.windowAckSize
	if window == 0 {
		return
	}
	total := uint32(c.counting.n.Load() & 0xFFFFFFFF)
	if total >= 0xF0000000 {
		c.counting.n.Store(0)
		c.lastAckSent = 0
		return
	}
	if total-c.lastAckSent >= window {
		if err := c.SendMessage(control.EncodeAcknowledgement(total)); err == nil {
			c.lastAckSent = total
		}
	}
}

// startProcessLoop pops packets and routes them: control messages to the
// control handler, the rest through the dispatcher.
func (c *Connection) startProcessLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctrlCtx := &control.Context{
			ReadChunkSize: &c.readChunkSize,
			WindowAckSize: &c.windowAckSize,
			PeerBandwidth: &c.peerBandwidth,
			LimitType:     &c.limitType,
			LastPeerAck:   &c.lastPeerAck,
			Log:           c.log,
			Send:          c.SendMessage,
			OnPingReply:   func(uint32) { c.pingPending.Store(false) },
			// Abort is applied inline by the chunk reader at the framing
			// layer; nothing further to do here.
		}
		for {
			msg, err := c.inQueue.Pop(c.ctx)
			if err != nil {
				if stderrors.Is(err, context.Canceled) || stderrors.Is(err, message.ErrQueueClosed) {
					return
				}
				c.shutdown("process", err)
				return
			}
			c.maybeAcknowledge()
			if message.IsControl(msg.TypeID) {
				if err := control.Handle(ctrlCtx, msg); err != nil {
					c.shutdown("control", errors.NewProtocolError("control.handle", err))
					return
				}
				continue
			}
			if c.dispatcher == nil {
				c.log.Debug("no dispatcher installed; dropping message", "type_id", msg.TypeID)
				continue
			}
			if err := c.dispatcher.Dispatch(c, msg); err != nil {
				// Stream-semantic and auth failures were already reported to
				// the peer as onStatus; everything else tears the peer down.
				if errors.IsStreamError(err) || errors.IsAuthError(err) {
					c.log.Warn("command rejected", "error", err)
					continue
				}
				c.shutdown("dispatch", err)
				return
			}
		}
	}()
}

// startWriteLoop drains the outbound channel into the chunk writer. Ordering
// per chunk stream is strictly FIFO; delta headers depend on it.
func (c *Connection) startWriteLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		w := chunk.NewWriter(c.netConn, chunk.DefaultChunkSize)
		for {
			select {
			case <-c.ctx.Done():
				return
			case msg, ok := <-c.outbound:
				if !ok {
					return
				}
				w.SetChunkSize(c.writeChunkSize.Load())
				if err := w.WriteMessage(msg); err != nil {
					c.shutdown("write", err)
					return
				}
			}
		}
	}()
}

// startLivenessLoop enforces the idle timeout and drives the ping cadence. An
// unanswered ping or an idle peer is fatal.
func (c *Connection) startLivenessLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		interval := c.cfg.PingInterval
		if interval == 0 {
			interval = c.cfg.IdleTimeout
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, c.lastActivity.Load()))
				if c.cfg.IdleTimeout > 0 && idle > c.cfg.IdleTimeout {
					c.shutdown("idle", errors.NewTimeoutError("conn.idle", c.cfg.IdleTimeout, nil))
					return
				}
				if c.cfg.PingInterval > 0 {
					if c.pingPending.Load() {
						c.shutdown("ping", errors.NewTimeoutError("conn.ping", c.cfg.PingInterval, nil))
						return
					}
					ts := uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
					if err := c.SendMessage(control.EncodeUserControlPingRequest(ts)); err == nil {
						c.pingPending.Store(true)
					}
				}
			}
		}
	}()
}
