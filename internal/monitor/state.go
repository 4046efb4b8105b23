package monitor

import "time"

// State is the connection lifecycle state of one account.
type State int32

const (
	Disconnected State = iota
	Connecting
	Waiting
	Draining
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Waiting:
		return "waiting"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

const (
	BackoffFloor   = 5 * time.Second
	BackoffCeiling = 300 * time.Second
)

// Backoff yields reconnect delays that double per consecutive failure.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	next    time.Duration
}

// NewBackoff creates a Backoff starting at floor and capped at ceiling.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	return &Backoff{floor: floor, ceiling: ceiling, next: floor}
}

// Next returns the delay to apply now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.ceiling)
	return d
}

// Reset brings the delay back to the floor after a successful connect.
func (b *Backoff) Reset() {
	b.next = b.floor
}
