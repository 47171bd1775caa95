package worker

import (
	"context"
	"log/slog"

	audit "patientregistry/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A failed append
// is logged and the worker moves on: audit sinks never block registry traffic.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until it is closed or ctx is cancelled. Events still
// buffered when ctx is cancelled are dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			// the store gets a context detached from cancellation so a drain on
			// shutdown still reaches the sink.
			if err := w.store.Append(context.WithoutCancel(ctx), event); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"action", event.Action,
					"patient_id", event.PatientID,
					"request_id", event.RequestID,
					"error", err,
				)
			}
		}
	}
}
