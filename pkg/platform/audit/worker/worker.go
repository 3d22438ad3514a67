package worker

import (
	"context"
	"log/slog"

	audit "erp/pkg/platform/audit"
)

// Worker consumes audit events from a channel and forwards them to a sink.
// A failing sink is logged and skipped so one bad event does not stall the
// queue behind it.
type Worker struct {
	sink   audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(sink audit.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run forwards events until the inbox is closed or ctx is done. On
// cancellation the events already buffered are still forwarded, using a
// context detached from ctx's cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.forward(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event audit.Event) {
	if err := w.sink.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit sink append failed",
			"event_id", event.ID.String(),
			"action", event.Action.String(),
			"request_id", event.RequestID,
			"error", err,
		)
	}
}
