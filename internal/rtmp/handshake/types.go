package handshake

import (
	"fmt"

	errors "github.com/alxayo/go-rtmpcast/internal/errors"
)

// Handshake constants for the RTMP version-3 handshake. C0/S0 is a single
// version byte (0x03); C1, S1, C2 and S2 are 1536-byte blocks laid out as
// 4-byte timestamp | 4-byte zero (or peer timestamp for C2/S2) | 1528 random.
const (
	Version           = 0x03
	PacketSize        = 1536
	randomFieldOffset = 8
	randomFieldSize   = PacketSize - randomFieldOffset
)

// State represents the server-side handshake progression:
//
//	Uninitialized --RxC0C1--> SentS0S1S2 --RxC2--> Done
//
// Any other transition moves the FSM to Failed.
type State int

const (
	StateUninitialized State = iota
	StateSentS0S1S2
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateSentS0S1S2:
		return "SentS0S1S2"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Handshake holds the in-memory state required to validate and complete the
// server-side handshake. Full C1 and S1 blocks are retained so the echo and
// digest phases can reference them. Fixed-size arrays avoid extra allocations
// and enforce compile-time size guarantees.
type Handshake struct {
	state       State
	c1          [PacketSize]byte
	s1          [PacketSize]byte
	scheme      DigestScheme
	c1Timestamp uint32
	s1Timestamp uint32
}

// New creates a handshake state container in Uninitialized state.
func New() *Handshake { return &Handshake{state: StateUninitialized} }

// State returns the current FSM state.
func (h *Handshake) State() State { return h.state }

// Scheme returns the digest scheme detected in C1 (SchemeSimple when the peer
// uses the plain handshake).
func (h *Handshake) Scheme() DigestScheme { return h.scheme }

// AcceptC0C1 records the client's C0 version byte and C1 block and detects the
// digest scheme. Legal only in Uninitialized state.
func (h *Handshake) AcceptC0C1(c0 byte, c1 []byte) error {
	if h.state != StateUninitialized {
		from := h.state.String()
		h.state = StateFailed
		return errors.NewInvalidStateError("handshake.accept_c0c1", from, StateSentS0S1S2.String())
	}
	if c0 != Version {
		h.state = StateFailed
		return errors.NewHandshakeError("accept C0+C1", fmt.Errorf("unsupported version 0x%02x", c0))
	}
	if len(c1) != PacketSize {
		h.state = StateFailed
		return errors.NewHandshakeError("accept C0+C1", fmt.Errorf("invalid C1 size %d", len(c1)))
	}
	copy(h.c1[:], c1)
	h.c1Timestamp = beU32(c1[0:4])
	h.scheme = DetectDigestScheme(c1)
	return nil
}

// SetS1 records the server's S1 block and advances to SentS0S1S2.
func (h *Handshake) SetS1(s1 []byte) error {
	if h.state != StateUninitialized {
		from := h.state.String()
		h.state = StateFailed
		return errors.NewInvalidStateError("handshake.set_s1", from, StateSentS0S1S2.String())
	}
	if len(s1) != PacketSize {
		h.state = StateFailed
		return errors.NewHandshakeError("set S1", fmt.Errorf("invalid S1 size %d", len(s1)))
	}
	copy(h.s1[:], s1)
	h.s1Timestamp = beU32(s1[0:4])
	h.state = StateSentS0S1S2
	return nil
}

// AcceptC2 validates the client's C2 block against S1 and completes the FSM.
// For simple-scheme peers the echo is checked strictly (timestamp and random
// field); digest-scheme peers place their own digest in C2, so only the
// length is validated.
func (h *Handshake) AcceptC2(c2 []byte) error {
	if h.state != StateSentS0S1S2 {
		from := h.state.String()
		h.state = StateFailed
		return errors.NewInvalidStateError("handshake.accept_c2", from, StateDone.String())
	}
	if len(c2) != PacketSize {
		h.state = StateFailed
		return errors.NewHandshakeError("accept C2", fmt.Errorf("invalid C2 size %d", len(c2)))
	}
	if h.scheme == SchemeSimple {
		if beU32(c2[0:4]) != h.s1Timestamp {
			h.state = StateFailed
			return errors.NewHandshakeError("accept C2", fmt.Errorf("timestamp echo mismatch: got %d want %d", beU32(c2[0:4]), h.s1Timestamp))
		}
		if !bytesEqual(c2[randomFieldOffset:], h.s1[randomFieldOffset:]) {
			h.state = StateFailed
			return errors.NewHandshakeError("accept C2", fmt.Errorf("random echo mismatch"))
		}
	}
	h.state = StateDone
	return nil
}

// Accessors for timestamps (useful in tests and logging).
func (h *Handshake) C1Timestamp() uint32 { return h.c1Timestamp }
func (h *Handshake) S1Timestamp() uint32 { return h.s1Timestamp }

// C1 returns a copy of the C1 block.
func (h *Handshake) C1() []byte {
	b := make([]byte, PacketSize)
	copy(b, h.c1[:])
	return b
}

// S1 returns a copy of the S1 block.
func (h *Handshake) S1() []byte {
	b := make([]byte, PacketSize)
	copy(b, h.s1[:])
	return b
}

// Done returns true once the FSM reached Done.
func (h *Handshake) Done() bool { return h.state == StateDone }

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// bytesEqual avoids importing bytes just for Equal.
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
