// Package gesture maps turn state to the robot's outward behavior.
// The actual animation stack lives on the robot; this package defines
// the boundary and a no-op for headless runs.
package gesture

import (
	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/turn"
)

// Performer reacts to turn transitions, typically by starting or
// stopping body animations. Implementations must not block; they run on
// the goroutine that caused the transition.
type Performer interface {
	TurnChanged(old, new turn.State)
}

// Bind installs the performer as the turn manager's observer.
func Bind(m *turn.Manager, p Performer) {
	m.OnChange = p.TurnChanged
}

// NoOp performs nothing. Used when no robot body is attached.
type NoOp struct{}

var _ Performer = NoOp{}

func (NoOp) TurnChanged(old, new turn.State) {}

// LogPerformer logs transitions, useful while bringing a body up.
type LogPerformer struct{}

var _ Performer = LogPerformer{}

func (LogPerformer) TurnChanged(old, new turn.State) {
	log.Info("gesture cue", "from", old.String(), "to", new.String())
}
