package handshake

// Client-side handshake driver: Send C0+C1 -> Read S0+S1+S2 -> Send C2.
// Mirrors server.go for deadlines, logging and error wrapping.

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"time"

	rerrors "github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/logger"
)

const (
	clientReadTimeout  = 5 * time.Second
	clientWriteTimeout = 5 * time.Second
)

// ClientHandshake performs the RTMP handshake as a client. On success the
// connection is positioned immediately after the S2 read and ready for chunk
// stream negotiation.
func ClientHandshake(conn net.Conn) error {
	if conn == nil {
		return rerrors.NewHandshakeError("init", fmt.Errorf("nil conn"))
	}
	log := logger.Logger().With("phase", "handshake", "side", "client")

	// Build C1: timestamp | zero | random.
	var c1 [PacketSize]byte
	ts := uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
	putBeU32(c1[0:4], ts)
	if _, err := rand.Read(c1[randomFieldOffset:]); err != nil {
		return rerrors.NewHandshakeError("rand C1", err)
	}

	// Send C0+C1 as one write.
	c0c1 := make([]byte, 1+PacketSize)
	c0c1[0] = Version
	copy(c0c1[1:], c1[:])
	if err := setWriteDeadline(conn, clientWriteTimeout); err != nil {
		return err
	}
	if err := writeFull(conn, c0c1); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("write C0+C1", clientWriteTimeout, err)
		}
		return rerrors.NewHandshakeError("write C0+C1", err)
	}

	// Read S0+S1+S2 (servers send all three together).
	if err := setReadDeadline(conn, clientReadTimeout); err != nil {
		return err
	}
	s0s1s2 := make([]byte, 1+2*PacketSize)
	if _, err := io.ReadFull(conn, s0s1s2); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read S0+S1+S2", clientReadTimeout, err)
		}
		return rerrors.NewHandshakeError("read S0+S1+S2", err)
	}
	if s0s1s2[0] != Version {
		return rerrors.NewHandshakeError("validate S0", fmt.Errorf("unsupported version 0x%02x", s0s1s2[0]))
	}
	s1 := s0s1s2[1 : 1+PacketSize]
	s2 := s0s1s2[1+PacketSize:]

	// S2 must echo our C1 random field; mismatch is fatal per the symmetric
	// validation rule (digest servers still echo C1's random verbatim).
	if !bytesEqual(s2[randomFieldOffset:], c1[randomFieldOffset:]) {
		return rerrors.NewHandshakeError("validate S2", fmt.Errorf("random echo mismatch"))
	}

	// Build and send C2: S1 timestamp | local timestamp | echo of S1 random.
	var c2 [PacketSize]byte
	copy(c2[0:4], s1[0:4])
	putBeU32(c2[4:8], uint32(time.Now().UnixMilli()&0xFFFFFFFF))
	copy(c2[randomFieldOffset:], s1[randomFieldOffset:])
	if err := setWriteDeadline(conn, clientWriteTimeout); err != nil {
		return err
	}
	if err := writeFull(conn, c2[:]); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("write C2", clientWriteTimeout, err)
		}
		return rerrors.NewHandshakeError("write C2", err)
	}

	// Clear deadlines for long-lived streaming use.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear read deadline", "error", err)
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear write deadline", "error", err)
	}

	log.Debug("handshake completed", "c1_ts", ts)
	return nil
}
