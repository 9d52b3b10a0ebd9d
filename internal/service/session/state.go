// Package session holds the per-call state: transcript, triggers, analysis results and status.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state of a call.
type Status int

const (
	// StatusIdle - No stream. A new call starts here and a stopped call returns here.
	StatusIdle Status = iota
	// StatusConnecting - Credential fetch and stream handshake in progress.
	StatusConnecting
	// StatusLive - Audio is streamed and triggers fire. The only state that does so.
	StatusLive
	// StatusError - The handshake failed. Only a manual retry leaves this state.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusLive:
		return "live"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidTransition is returned when an event does not apply to the current status.
var ErrInvalidTransition = errors.New("invalid call state transition")

// Lifecycle manages the status state machine for a single call.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Connect()──→ CONNECTING ──Connected()──→ LIVE ──Stop() / Fail()──→ IDLE
//	                        │
//	                        └── Fail() ──→ ERROR ──Connect()──→ CONNECTING
type Lifecycle struct {
	mu    sync.RWMutex
	state Status
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StatusIdle}
}

// State returns the current status.
func (l *Lifecycle) State() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsLive reports whether audio may be sent.
func (l *Lifecycle) IsLive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StatusLive
}

// Connect starts a handshake, from IDLE or as a retry from ERROR.
func (l *Lifecycle) Connect() error {
	return l.transition("connect", StatusConnecting, StatusIdle, StatusError)
}

// Connected records a successful handshake.
func (l *Lifecycle) Connected() error {
	return l.transition("connected", StatusLive, StatusConnecting)
}

// Stop ends a live call.
func (l *Lifecycle) Stop() error {
	return l.transition("stop", StatusIdle, StatusLive)
}

// Fail records a fatal session error. A failed handshake moves to ERROR; a live
// stream that fails returns to IDLE. It returns the status before the failure.
func (l *Lifecycle) Fail() (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state
	switch prev {
	case StatusConnecting:
		l.state = StatusError
	case StatusLive:
		l.state = StatusIdle
	default:
		return prev, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, prev)
	}
	return prev, nil
}

func (l *Lifecycle) transition(event string, to Status, from ...Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range from {
		if l.state == f {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, l.state)
}
