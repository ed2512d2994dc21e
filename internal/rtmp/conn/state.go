package conn

import (
	"sync"

	"github.com/alxayo/go-rtmpcast/internal/errors"
)

// State is the connection lifecycle state. Valid transitions form the DAG
//
//	Uninitialized -> Handshaking -> Connected -> {Publishing | Playing} -> Closing -> Closed
//
// plus Uninitialized, Handshaking or Connected -> Closing (peer leaves before
// publish/play) and
// {Publishing, Playing} -> Connected (deleteStream returns the session to the
// negotiated-but-idle state so the peer can create a new stream). Every other
// transition is a protocol fault.
type State uint8

const (
	StateUninitialized State = iota
	StateHandshaking
	StateConnected
	StatePublishing
	StatePlaying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateHandshaking:
		return "Handshaking"
	case StateConnected:
		return "Connected"
	case StatePublishing:
		return "Publishing"
	case StatePlaying:
		return "Playing"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// validNext enumerates the DAG.
var validNext = map[State][]State{
	StateUninitialized: {StateHandshaking, StateClosing},
	StateHandshaking:   {StateConnected, StateClosing},
	StateConnected:     {StatePublishing, StatePlaying, StateClosing},
	StatePublishing:    {StateConnected, StateClosing},
	StatePlaying:       {StateConnected, StateClosing},
	StateClosing:       {StateClosed},
	StateClosed:        {},
}

// stateMachine guards the state under a small lock; handlers perform
// transitions, the transport only observes.
type stateMachine struct {
	mu sync.RWMutex
	s  State
}

func (m *stateMachine) current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s
}

func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, next := range validNext[m.s] {
		if next == to {
			m.s = to
			return nil
		}
	}
	return errors.NewInvalidStateError("conn.transition", m.s.String(), to.String())
}

// force sets the state unconditionally (teardown paths only).
func (m *stateMachine) force(to State) {
	m.mu.Lock()
	m.s = to
	m.mu.Unlock()
}
