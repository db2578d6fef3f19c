package webhookengine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryWorker drains deliveries whose next-attempt time has passed. It is
// registered with core/queue as a periodic task (default tick 60s) rather
// than running its own ticker, so shutdown and scheduling follow the same
// path as every other background job.
type RetryWorker struct {
	engine     *Engine
	deliveries DeliveryRepository
	subs       SubscriptionRepository
	log        *slog.Logger
	now        func() time.Time
}

// NewRetryWorker builds a RetryWorker sharing engine's sender/breaker state.
func NewRetryWorker(engine *Engine, deliveries DeliveryRepository, subs SubscriptionRepository, log *slog.Logger) *RetryWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RetryWorker{engine: engine, deliveries: deliveries, subs: subs, log: log, now: time.Now}
}

// Run performs one sweep: every due delivery gets at most one retry attempt
// before Run returns, matching the "one timeout interval" shutdown bound the
// spec requires of the worker.
func (w *RetryWorker) Run(ctx context.Context) error {
	due, err := w.deliveries.ListDue(ctx, w.now().UTC())
	if err != nil {
		return err
	}

	for _, d := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sub, err := w.subs.GetByID(ctx, d.SubscriptionID)
		if err != nil || !sub.Active {
			if err != nil && !errors.Is(err, context.Canceled) {
				w.log.WarnContext(ctx, "webhookengine: retry worker dropping delivery for missing/inactive subscription",
					slog.String("delivery_id", d.ID.String()), slog.Any("error", err))
			}
			d.NextAttemptAt = nil
			if updErr := w.deliveries.Update(ctx, d); updErr != nil {
				w.log.ErrorContext(ctx, "webhookengine: clearing orphaned delivery failed",
					slog.String("delivery_id", d.ID.String()), slog.Any("error", updErr))
			}
			continue
		}

		dCopy := d
		w.engine.attempt(ctx, sub, &dCopy)
	}

	return nil
}
