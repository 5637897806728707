package net

import "sync"

// ConnPhase is a connection's lifecycle phase.
type ConnPhase string

const (
	PhaseDisconnected ConnPhase = "disconnected"
	PhaseConnecting   ConnPhase = "connecting"
	PhaseConnected    ConnPhase = "connected"
	PhaseReconnecting ConnPhase = "reconnecting"
)

// ConnState is a small state machine guarding connection transitions.
// The transport fires error and close callbacks independently, often
// both for one failure, so every transition is idempotent: settling an
// already-connected state or dropping an already-dropped one is a
// no-op, and nothing revives a connection closed on purpose.
type ConnState struct {
	mu          sync.Mutex
	phase       ConnPhase
	intentional bool
}

// NewConnState starts disconnected.
func NewConnState() *ConnState {
	return &ConnState{phase: PhaseDisconnected}
}

// Phase returns the current phase.
func (c *ConnState) Phase() ConnPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Connecting marks a dial in progress. Only valid from disconnected;
// returns whether the transition happened.
func (c *ConnState) Connecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseDisconnected || c.intentional {
		return false
	}
	c.phase = PhaseConnecting
	return true
}

// Settled marks the connection established. Idempotent: settling an
// already-connected state changes nothing, and a connection closed on
// purpose stays closed.
func (c *ConnState) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case PhaseConnecting, PhaseReconnecting:
		c.phase = PhaseConnected
		return true
	case PhaseConnected:
		return false
	default:
		return false
	}
}

// Dropped records a transport failure. The first call from a live
// phase moves to reconnecting; repeated error+close callbacks for the
// same failure are no-ops, as is a drop after an intentional close.
func (c *ConnState) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intentional {
		return false
	}
	switch c.phase {
	case PhaseConnected, PhaseConnecting:
		c.phase = PhaseReconnecting
		return true
	default:
		return false
	}
}

// Close marks an intentional disconnect. No later Dropped or
// Connecting call resurrects the state until Reset.
func (c *ConnState) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseDisconnected
	c.intentional = true
}

// Reset returns to a clean disconnected state, clearing the
// intentional flag so a new session may begin.
func (c *ConnState) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseDisconnected
	c.intentional = false
}
