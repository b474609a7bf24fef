package delivery

import (
	"fmt"
	"sync"
)

// CloseNormal is the only close code treated as a deliberate close.
const CloseNormal = 1000

// ConnState enumerates the client connection phases.
type ConnState int

// Connection states.
const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Closed // ended with CloseNormal
	Lost   // ended any other way
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Lost:
		return "lost"
	default:
		return "disconnected"
	}
}

// ConnPhase is the tagged connection state. Code and Reason are only set
// for Closed and Lost.
type ConnPhase struct {
	State  ConnState
	Code   int
	Reason string
}

// Banner is the user-visible line for a phase change.
func (p ConnPhase) Banner() string {
	switch p.State {
	case Connecting:
		return "Connecting..."
	case Connected:
		return "Connected."
	case Closed:
		return "Session closed."
	case Lost:
		if p.Reason != "" {
			return fmt.Sprintf("Connection lost (%d: %s). Type /reconnect to try again.", p.Code, p.Reason)
		}
		return fmt.Sprintf("Connection lost (%d). Type /reconnect to try again.", p.Code)
	default:
		return "Disconnected."
	}
}

// Connection holds the client's connection phase and enforces its transitions:
//
//	Disconnected|Closed|Lost -> Connecting -> Connected -> Closed|Lost
//	Connecting -> Lost
type Connection struct {
	mu    sync.Mutex
	phase ConnPhase
}

// NewConnection starts Disconnected.
func NewConnection() *Connection {
	return &Connection{}
}

// Phase returns the current phase.
func (c *Connection) Phase() ConnPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Dial moves to Connecting.
func (c *Connection) Dial() (ConnPhase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase.State {
	case Disconnected, Closed, Lost:
		c.phase = ConnPhase{State: Connecting}
		return c.phase, nil
	}
	return c.phase, fmt.Errorf("%w: dial while %s", ErrInvalidTransition, c.phase.State)
}

// Established moves from Connecting to Connected.
func (c *Connection) Established() (ConnPhase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase.State != Connecting {
		return c.phase, fmt.Errorf("%w: established while %s", ErrInvalidTransition, c.phase.State)
	}
	c.phase = ConnPhase{State: Connected}
	return c.phase, nil
}

// Ended records the close code. CloseNormal means Closed, anything else Lost.
func (c *Connection) Ended(code int, reason string) (ConnPhase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase.State != Connected && c.phase.State != Connecting {
		return c.phase, fmt.Errorf("%w: close while %s", ErrInvalidTransition, c.phase.State)
	}
	state := Lost
	if code == CloseNormal {
		state = Closed
	}
	c.phase = ConnPhase{State: state, Code: code, Reason: reason}
	return c.phase, nil
}

// CanSend rejects input unless connected. Input is never buffered.
func (c *Connection) CanSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase.State {
	case Connected:
		return nil
	case Lost:
		return fmt.Errorf("%w: %w", ErrNotConnected, ErrConnectionLost)
	default:
		return ErrNotConnected
	}
}
