package handshake

// Server-side handshake driver: Read C0+C1 -> Send S0+S1+S2 -> Read C2 -> Done.
// Handles both the simple and the digest-carrying variants; see digest.go for
// the scheme detection and HMAC layout.

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
	serverReadTimeout  = 5 * time.Second
	serverWriteTimeout = 5 * time.Second
)

// Options tunes handshake policy.
type Options struct {
	// VerifyDigest enables strict HMAC verification of the inbound C1 digest.
	// The default (false) accepts any well-formed C1 and replies with an
	// internally consistent S1.
	VerifyDigest bool
}

// ServerHandshake performs the server-side RTMP handshake with default
// options. On success the connection is positioned immediately after the C2
// read, ready for chunk stream processing.
func ServerHandshake(conn net.Conn) error {
	return ServerHandshakeWith(conn, Options{})
}

// ServerHandshakeWith performs the server-side handshake with explicit
// options. Blocking; each phase runs under a 5s deadline. Failures return
// *HandshakeError or *TimeoutError (classified by IsProtocolError/IsTimeout).
func ServerHandshakeWith(conn net.Conn, opts Options) error {
	if conn == nil {
		return rerrors.NewHandshakeError("init", fmt.Errorf("nil conn"))
	}
	log := logger.Logger().With("phase", "handshake", "side", "server")

	h := New()

	// 1. Read C0 (version) + C1 in one contiguous read.
	c0c1 := make([]byte, 1+PacketSize)
	if err := setReadDeadline(conn, serverReadTimeout); err != nil {
		return err
	}
	if _, err := io.ReadFull(conn, c0c1); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read C0+C1", serverReadTimeout, err)
		}
		return rerrors.NewHandshakeError("read C0+C1", err)
	}
	if err := h.AcceptC0C1(c0c1[0], c0c1[1:]); err != nil {
		return err
	}
	if opts.VerifyDigest && !VerifyDigest(h.C1(), h.Scheme()) {
		return rerrors.NewHandshakeError("verify C1 digest", fmt.Errorf("scheme %s digest mismatch", h.Scheme()))
	}

	// 2. Build S1: timestamp | zero | random, mirroring the client's digest
	// scheme when one was detected.
	var s1 [PacketSize]byte
	ts := uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
	putBeU32(s1[0:4], ts)
	if _, err := rand.Read(s1[randomFieldOffset:]); err != nil {
		return rerrors.NewHandshakeError("rand S1", err)
	}
	EmbedDigest(s1[:], h.Scheme())
	if err := h.SetS1(s1[:]); err != nil {
		return err
	}

	// 3. Build S2: peer timestamp | local timestamp | echo of C1's random field.
	c1 := h.C1()
	var s2 [PacketSize]byte
	putBeU32(s2[0:4], h.C1Timestamp())
	putBeU32(s2[4:8], ts)
	copy(s2[randomFieldOffset:], c1[randomFieldOffset:])

	// 4. Send S0+S1+S2 as one write.
	out := make([]byte, 1+2*PacketSize)
	out[0] = Version
	copy(out[1:1+PacketSize], s1[:])
	copy(out[1+PacketSize:], s2[:])
	if err := setWriteDeadline(conn, serverWriteTimeout); err != nil {
		return err
	}
	if err := writeFull(conn, out); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("write S0+S1+S2", serverWriteTimeout, err)
		}
		return rerrors.NewHandshakeError("write S0+S1+S2", err)
	}

	// 5. Read and validate C2 (echo of S1 for simple peers).
	if err := setReadDeadline(conn, serverReadTimeout); err != nil {
		return err
	}
	c2 := make([]byte, PacketSize)
	if _, err := io.ReadFull(conn, c2); err != nil {
		if isTimeoutErr(err) {
			return rerrors.NewTimeoutError("read C2", serverReadTimeout, err)
		}
		return rerrors.NewHandshakeError("read C2", err)
	}
	if err := h.AcceptC2(c2); err != nil {
		return err
	}

	// Clear deadlines so subsequent chunk reads operate without timeout
	// constraints; clients commonly pause before sending connect.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear read deadline", "error", err)
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		log.Warn("failed to clear write deadline", "error", err)
	}

	log.Debug("handshake completed", "scheme", h.Scheme().String(), "c1_ts", h.C1Timestamp(), "s1_ts", h.S1Timestamp())
	return nil
}

// Helper: set deadlines with error wrapping.
func setReadDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set read deadline", err)
	}
	return nil
}

func setWriteDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetWriteDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set write deadline", err)
	}
	return nil
}

// writeFull ensures the entire buffer is written.
func writeFull(w io.Writer, b []byte) error {
	off := 0
	for off < len(b) {
		n, err := w.Write(b[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

// isTimeoutErr performs lightweight timeout classification so the caller can
// convert into TimeoutError.
func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	type to interface{ Timeout() bool }
	if ne, ok := err.(to); ok && ne.Timeout() {
		return true
	}
	return false
}
