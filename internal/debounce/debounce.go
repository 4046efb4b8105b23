package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tracyhatemice/mailwake/internal/event"
)

// Handler consumes flushed batches. It runs outside the aggregator lock and
// must not panic; its errors are its own business.
type Handler interface {
	HandleBatch(ctx context.Context, batch event.Batch)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, batch event.Batch)

func (f HandlerFunc) HandleBatch(ctx context.Context, batch event.Batch) { f(ctx, batch) }

// Aggregator coalesces events that arrive less than window apart into one
// batch. It is shared by all account monitors.
type Aggregator struct {
	window    time.Duration
	handler   Handler
	scheduler Scheduler
	logger    *slog.Logger

	mu      sync.Mutex
	pending []event.RawEvent
	timer   Timer
	gen     uint64
	closed  bool

	// serializes handler calls so batches go out in flush order.
	deliver sync.Mutex
}

// New creates an Aggregator flushing to handler after window of quiet.
func New(window time.Duration, handler Handler, logger *slog.Logger) *Aggregator {
	return NewWithScheduler(window, handler, RealScheduler{}, logger)
}

// NewWithScheduler is New with an explicit timer source.
func NewWithScheduler(window time.Duration, handler Handler, scheduler Scheduler, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		window:    window,
		handler:   handler,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Submit buffers ev and restarts the quiet window.
func (a *Aggregator) Submit(ev event.RawEvent) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Debug("aggregator closed, delivering event directly", "account", ev.Account)
		a.handle(event.NewBatch([]event.RawEvent{ev}))
		return
	}

	a.pending = append(a.pending, ev)
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = a.scheduler.AfterFunc(a.window, func() { a.flush(gen) })
	n := len(a.pending)
	a.mu.Unlock()

	a.logger.Debug("event buffered", "account", ev.Account, "pending", n)
}

// Pending returns the number of buffered events.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// flush runs from the timer armed for generation gen. A timer superseded by
// a later Submit is ignored even if Stop lost the race.
func (a *Aggregator) flush(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	batch := a.take()
	a.mu.Unlock()

	if batch.Len() > 0 {
		a.handle(batch)
	}
}

// take empties the pending buffer. Callers hold a.mu.
func (a *Aggregator) take() event.Batch {
	a.timer = nil
	if len(a.pending) == 0 {
		return event.Batch{}
	}
	events := a.pending
	a.pending = nil
	return event.NewBatch(events)
}

func (a *Aggregator) handle(batch event.Batch) {
	a.deliver.Lock()
	defer a.deliver.Unlock()

	a.logger.Info("flushing batch", "batch", batch.ID, "events", batch.Len())
	a.handler.HandleBatch(context.Background(), batch)
}

// Close cancels the pending timer and flushes whatever is buffered. Later
// submissions are delivered immediately as single-event batches.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	batch := a.take()
	a.mu.Unlock()

	if batch.Len() > 0 {
		a.logger.Info("flushing partial batch on shutdown", "events", batch.Len())
		a.handle(batch)
	}
}
