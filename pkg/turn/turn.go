// Package turn tracks whose turn it is in the conversation. The state
// drives the robot's outward behavior: listening posture, thinking
// animation, speaking gestures.
package turn

import (
	"sync"

	"github.com/pepperkit/go-pepper/internal/log"
)

// State is the conversation turn state.
type State int

const (
	// Idle means no conversation activity.
	Idle State = iota

	// Listening means the microphone is open and the user may speak.
	Listening

	// Thinking means the user finished speaking and a response is
	// being generated but no audio has played yet.
	Thinking

	// Speaking means response audio is playing.
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Manager holds the current turn state and notifies observers on
// transitions. Setting the current state again is a no-op, so callers
// can report state unconditionally without double-firing observers.
type Manager struct {
	mu    sync.Mutex
	state State

	// OnChange is invoked with the old and new state, outside the
	// manager's lock, in the goroutine that caused the transition.
	OnChange func(old, new State)
}

// NewManager returns a manager in the Idle state.
func NewManager() *Manager {
	return &Manager{state: Idle}
}

// State returns the current turn state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetState transitions to s. Repeated sets of the same state do
// nothing. Returns true if a transition happened.
func (m *Manager) SetState(s State) bool {
	m.mu.Lock()
	old := m.state
	if old == s {
		m.mu.Unlock()
		return false
	}
	m.state = s
	cb := m.OnChange
	m.mu.Unlock()

	log.Debug("turn state", "from", old.String(), "to", s.String())
	if cb != nil {
		cb(old, s)
	}
	return true
}
