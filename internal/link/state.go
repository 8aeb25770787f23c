package link

import (
	"fmt"
	"time"
)

// State is the MQTT link state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

// States lists every state, for gauges and logs.
var States = []State{Disconnected, Connecting, Connected, Failed}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to State) bool {
	switch from {
	case Disconnected:
		return to == Connecting
	case Connecting:
		return to == Connected || to == Disconnected || to == Failed
	case Connected:
		return to == Disconnected
	default:
		// Failed is terminal.
		return false
	}
}

// Backoff is an exponential retry policy capped at Max. MaxAttempts of
// zero retries forever.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff retries forever starting at the firmware's 2 s delay.
var DefaultBackoff = Backoff{
	Initial:    2 * time.Second,
	Max:        30 * time.Second,
	Multiplier: 2,
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt failures used up the budget.
func (b Backoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
