package dispatch

import "fmt"

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.Code)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

// PanicError wraps a panic raised inside a sink.
type PanicError struct {
	Sink  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("sink %s panicked: %v", e.Sink, e.Value)
}
