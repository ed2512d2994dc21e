// Package client implements the RTMP client orchestrator: URL parsing, the
// client-side handshake, the connect/createStream dialogue, and publish/play
// drivers with helpers for building correctly-tagged media packets.
package client

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/logger"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/amf"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/handshake"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/media"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/message"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/rpc"
)

// Target is a parsed rtmp[s]:// URL.
type Target struct {
	Scheme     string // rtmp or rtmps
	Host       string // host:port, port defaulted to 1935
	App        string
	StreamName string // may be empty (connect-only use)
	TcURL      string
}

// ParseURL parses rtmp://host[:port]/app[/stream]. rtmps is identical over
// TLS. A missing port defaults to 1935.
func ParseURL(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewConnectionError("url.parse", err)
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" {
		return nil, errors.NewConnectionError("url.parse", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":1935"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, errors.NewConnectionError("url.parse", fmt.Errorf("missing app in %q", raw))
	}
	t := &Target{
		Scheme: u.Scheme,
		Host:   host,
		App:    parts[0],
		TcURL:  fmt.Sprintf("%s://%s/%s", u.Scheme, host, parts[0]),
	}
	if len(parts) > 1 {
		t.StreamName = strings.Join(parts[1:], "/")
	}
	return t, nil
}

// StreamKey returns app/streamName.
func (t *Target) StreamKey() string { return t.App + "/" + t.StreamName }

// Client drives one RTMP session against a server. Not safe for concurrent
// use except for SendAudio/SendVideo which follow the single-writer rule of
// the chunk layer (callers serialize).
type Client struct {
	cfg    Config
	target *Target
	log    *slog.Logger

	mu       sync.Mutex
	conn     net.Conn
	reader   *chunk.Reader
	writer   *chunk.Writer
	streamID uint32
	trxID    float64
}

// New creates an unconnected client for the given URL with default config.
func New(rawurl string) (*Client, error) {
	return NewWithConfig(rawurl, DefaultConfig())
}

// NewWithConfig creates an unconnected client with explicit configuration.
func NewWithConfig(rawurl string, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		target: t,
		log:    logger.Logger().With("component", "rtmp_client", "tc_url", t.TcURL),
	}, nil
}

// StreamID returns the stream id allocated by createStream (0 before).
func (c *Client) StreamID() uint32 { return c.streamID }

// nextTrx returns the next transaction id (monotonic per client).
func (c *Client) nextTrx() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trxID++
	return c.trxID
}

// Connect dials (with reconnect policy when enabled), performs the client
// handshake and runs connect + createStream. On return the client is ready
// for Publish or Play.
func (c *Client) Connect() error {
	attempts := 1
	if c.cfg.AutoReconnect {
		attempts += c.cfg.MaxReconnectAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.log.Warn("reconnecting", "attempt", i, "error", lastErr)
			time.Sleep(c.cfg.ReconnectDelay.Std())
		}
		if lastErr = c.connectOnce(); lastErr == nil {
			return nil
		}
		c.teardown()
	}
	return lastErr
}

func (c *Client) connectOnce() error {
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout.Std()}
	var (
		raw net.Conn
		err error
	)
	if c.target.Scheme == "rtmps" {
		raw, err = tls.DialWithDialer(&d, "tcp", c.target.Host, &tls.Config{ServerName: hostOnly(c.target.Host)})
	} else {
		raw, err = d.Dial("tcp", c.target.Host)
	}
	if err != nil {
		return errors.NewConnectionError("dial", err)
	}
	if err := handshake.ClientHandshake(raw); err != nil {
		_ = raw.Close()
		return err
	}
	c.conn = raw
	c.reader = chunk.NewReader(raw, chunk.DefaultChunkSize)
	c.writer = chunk.NewWriter(raw, chunk.DefaultChunkSize)

	if err := c.sendConnect(); err != nil {
		return err
	}
	if err := c.awaitResult("connect"); err != nil {
		return err
	}
	if err := c.sendCreateStream(); err != nil {
		return err
	}
	if err := c.awaitCreateStreamResult(); err != nil {
		return err
	}
	c.log.Info("session established", "stream_id", c.streamID)
	return nil
}

func (c *Client) sendConnect() error {
	trx := c.nextTrx()
	cmdObj := map[string]interface{}{
		"app":            c.target.App,
		"type":           "nonprivate",
		"tcUrl":          c.target.TcURL,
		"flashVer":       "FMLE/3.0 (compatible; rtmpcast)",
		"objectEncoding": 0.0,
	}
	payload, err := amf.EncodeAll("connect", trx, cmdObj)
	if err != nil {
		return err
	}
	return c.writeCommand(0, payload)
}

func (c *Client) sendCreateStream() error {
	payload, err := amf.EncodeAll("createStream", c.nextTrx(), nil)
	if err != nil {
		return err
	}
	return c.writeCommand(0, payload)
}

func (c *Client) writeCommand(streamID uint32, payload []byte) error {
	return c.writeMessage(&chunk.Message{
		CSID:            message.CSIDCommand,
		TypeID:          message.TypeCommandAMF0,
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	})
}

func (c *Client) writeMessage(msg *chunk.Message) error {
	if c.conn == nil {
		return errors.NewConnectionError("write", fmt.Errorf("not connected"))
	}
	if d := c.cfg.WriteTimeout.Std(); d > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(d))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.writer.WriteMessage(msg)
}

// ReadMessage reads the next complete message, applying the configured read
// timeout. Inbound Set Chunk Size is handled transparently by the chunk
// reader.
func (c *Client) ReadMessage() (*chunk.Message, error) {
	if c.conn == nil {
		return nil, errors.NewConnectionError("read", fmt.Errorf("not connected"))
	}
	if d := c.cfg.ReadTimeout.Std(); d > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.reader.ReadMessage()
}

// awaitResult consumes messages until a _result/_error for op arrives.
// Control and status traffic in between is tolerated.
func (c *Client) awaitResult(op string) error {
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("%s response: %w", op, err)
		}
		if !message.IsCommand(msg.TypeID) {
			continue
		}
		cmd, err := message.DecodeCommand(msg.TypeID, msg.Payload)
		if err != nil {
			continue // tolerate undecodable interop traffic
		}
		switch cmd.Name {
		case "_result":
			return nil
		case "_error":
			return errors.NewConnectionError(op, fmt.Errorf("server returned _error: %v", cmd.Arguments))
		}
	}
}

// awaitCreateStreamResult waits for the createStream _result and records the
// allocated stream id.
func (c *Client) awaitCreateStreamResult() error {
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("createStream response: %w", err)
		}
		if !message.IsCommand(msg.TypeID) {
			continue
		}
		cmd, err := message.DecodeCommand(msg.TypeID, msg.Payload)
		if err != nil {
			continue
		}
		switch cmd.Name {
		case "_result":
			if len(cmd.Arguments) >= 1 {
				if id, ok := cmd.Arguments[0].(float64); ok {
					c.streamID = uint32(id)
				}
			}
			if c.streamID == 0 {
				c.streamID = 1
			}
			return nil
		case "_error":
			return errors.NewConnectionError("createStream", fmt.Errorf("server returned _error: %v", cmd.Arguments))
		}
	}
}

// Publish sends the publish command for the URL's stream name and waits for
// NetStream.Publish.Start.
func (c *Client) Publish() error {
	if c.target.StreamName == "" {
		return errors.NewConnectionError("publish", fmt.Errorf("url carries no stream name"))
	}
	payload, err := amf.EncodeAll("publish", float64(0), nil, c.target.StreamName, rpc.PublishTypeLive)
	if err != nil {
		return err
	}
	if err := c.writeCommand(c.streamID, payload); err != nil {
		return err
	}
	return c.awaitStatus(rpc.CodePublishStart, rpc.CodePublishBadName)
}

// Play sends the play command for the URL's stream name and waits for
// NetStream.Play.Start. Media then arrives via ReadMessage.
func (c *Client) Play() error {
	if c.target.StreamName == "" {
		return errors.NewConnectionError("play", fmt.Errorf("url carries no stream name"))
	}
	payload, err := amf.EncodeAll("play", float64(0), nil, c.target.StreamName, float64(-2), float64(-1), true)
	if err != nil {
		return err
	}
	if err := c.writeCommand(c.streamID, payload); err != nil {
		return err
	}
	return c.awaitStatus(rpc.CodePlayStart, rpc.CodePlayStreamNotFound)
}

// awaitStatus consumes messages until an onStatus with the wanted or failure
// code arrives.
func (c *Client) awaitStatus(wantCode, failCode string) error {
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return err
		}
		if !message.IsCommand(msg.TypeID) {
			continue
		}
		info, err := rpc.ParseOnStatus(msg)
		if err != nil {
			continue // not an onStatus (e.g. stray _result)
		}
		switch info["code"] {
		case wantCode:
			return nil
		case failCode:
			return errors.NewStreamError("status", fmt.Errorf("server rejected: %v (%v)", info["code"], info["description"]))
		}
	}
}

// DeleteStream releases the stream binding on the server. No response is
// expected.
func (c *Client) DeleteStream() error {
	payload, err := amf.EncodeAll("deleteStream", float64(0), nil, float64(c.streamID))
	if err != nil {
		return err
	}
	return c.writeCommand(c.streamID, payload)
}

// SendAudio sends a raw audio tag (TypeID 8) on the session's stream.
func (c *Client) SendAudio(ts uint32, tag []byte) error {
	if !c.cfg.EnableAudio {
		return nil
	}
	if len(tag) == 0 {
		return errors.NewConnectionError("send_audio", fmt.Errorf("empty payload"))
	}
	return c.writeMessage(&chunk.Message{
		CSID:            message.CSIDAudio,
		TypeID:          message.TypeAudio,
		MessageStreamID: c.streamID,
		Timestamp:       ts,
		MessageLength:   uint32(len(tag)),
		Payload:         tag,
	})
}

// SendVideo sends a raw video tag (TypeID 9) on the session's stream.
func (c *Client) SendVideo(ts uint32, tag []byte) error {
	if !c.cfg.EnableVideo {
		return nil
	}
	if len(tag) == 0 {
		return errors.NewConnectionError("send_video", fmt.Errorf("empty payload"))
	}
	return c.writeMessage(&chunk.Message{
		CSID:            message.CSIDVideo,
		TypeID:          message.TypeVideo,
		MessageStreamID: c.streamID,
		Timestamp:       ts,
		MessageLength:   uint32(len(tag)),
		Payload:         tag,
	})
}

// SendAVC builds and sends an AVC video tag: frame-type<<4|codec-id,
// AVCPacketType, 24-bit composition time, then the payload.
func (c *Client) SendAVC(ts uint32, keyframe bool, packetType uint8, compositionTime uint32, payload []byte) error {
	return c.SendVideo(ts, media.BuildAVCVideoTag(keyframe, packetType, compositionTime, payload))
}

// SendAAC builds and sends an AAC audio tag (packetType 0 sequence header,
// 1 raw frames).
func (c *Client) SendAAC(ts uint32, packetType uint8, payload []byte) error {
	return c.SendAudio(ts, media.BuildAACAudioTag(packetType, payload))
}

// SendMetadata sends a @setDataFrame/onMetaData notification with the given
// properties.
func (c *Client) SendMetadata(meta map[string]interface{}) error {
	payload, err := amf.EncodeAll(message.DataSetDataFrame, message.DataOnMetaData, meta)
	if err != nil {
		return err
	}
	return c.writeMessage(&chunk.Message{
		CSID:            message.CSIDData,
		TypeID:          message.TypeDataAMF0,
		MessageStreamID: c.streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	})
}

// Close terminates the session.
func (c *Client) Close() error {
	c.teardown()
	return nil
}

func (c *Client) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.writer = nil
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
