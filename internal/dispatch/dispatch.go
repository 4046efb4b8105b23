package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tracyhatemice/mailwake/internal/event"
	"github.com/tracyhatemice/mailwake/internal/notify"
)

// Sink delivers a rendered notification somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, n notify.Notification) error
}

// Dispatcher formats flushed batches and hands them to every sink. Delivery
// is best effort: failures are logged and dropped, never retried.
type Dispatcher struct {
	formatter *notify.Formatter
	sinks     []Sink
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(formatter *notify.Formatter, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		formatter: formatter,
		sinks:     sinks,
		logger:    logger,
	}
}

// HandleBatch renders batch and dispatches it. It never returns an error or
// panics back into the aggregator.
func (d *Dispatcher) HandleBatch(ctx context.Context, batch event.Batch) {
	n := d.formatter.Render(batch.Events)
	if n.Text == "" {
		return
	}
	_ = d.Dispatch(ctx, batch.ID, n)
}

// Dispatch sends n to every sink and returns the joined failures, which
// HandleBatch ignores after logging.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID string, n notify.Notification) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := d.send(ctx, sink, n); err != nil {
			d.logger.Error("notification failed",
				"sink", sink.Name(),
				"batch", batchID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		d.logger.Info("notification sent",
			"sink", sink.Name(),
			"batch", batchID,
			"mode", n.Mode,
			"chars", len([]rune(n.Text)),
		)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, n notify.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Sink: sink.Name(), Value: r}
		}
	}()
	return sink.Send(ctx, n)
}
