package event

import (
	"time"

	"github.com/google/uuid"
)

// PreviewLimit bounds the body preview captured for a RawEvent, in runes.
const PreviewLimit = 1000

// RawEvent is a genuinely new message detected by an account monitor.
type RawEvent struct {
	Account   string // account identity (login)
	MessageID uint32 // mailbox id the event was built from
	From      string // display sender, "Name <addr>" when both are known
	Subject   string
	Preview   string    // decoded text body, at most PreviewLimit runes
	Arrived   time.Time // when the monitor saw the message
}

// Batch is a flushed group of events handed to the formatter and dispatcher.
type Batch struct {
	ID     string
	Events []RawEvent
}

// NewBatch wraps events in a Batch with a fresh correlation ID.
func NewBatch(events []RawEvent) Batch {
	return Batch{ID: uuid.NewString(), Events: events}
}

// Len returns the number of events in the batch.
func (b Batch) Len() int {
	return len(b.Events)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
