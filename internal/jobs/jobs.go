// Package jobs wires the vault's periodic background work — the webhook
// retry sweep (C8) and the retention reaper — onto core/queue's Service.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/credvault/core/queue"
	"github.com/dmitrymomot/credvault/internal/lifecycle"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/internal/webhookengine"
)

// WebhookRetryTaskName identifies the periodic webhook-retry-sweep task.
const WebhookRetryTaskName = "webhook_retry_sweep"

// RetentionReaperTaskName identifies the periodic purge-eligible sweep task.
const RetentionReaperTaskName = "retention_reaper"

// Config controls the tick intervals of both periodic jobs.
type Config struct {
	WebhookRetryTick      time.Duration // default 60s, matches webhook.worker.tick
	RetentionReaperInterval time.Duration // default 24h, matches retention.reaper.interval
}

// DefaultConfig matches the spec's process-wide defaults.
func DefaultConfig() Config {
	return Config{WebhookRetryTick: 60 * time.Second, RetentionReaperInterval: 24 * time.Hour}
}

// Register installs both periodic handlers and their schedules on svc. Must
// be called while svc is still in its configuring state (before Run).
func Register(svc *queue.Service, cfg Config, retryWorker *webhookengine.RetryWorker, coordinator *lifecycle.Coordinator, authStore store.Store, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	retryHandler := queue.NewPeriodicTaskHandler(WebhookRetryTaskName, func(ctx context.Context) error {
		return retryWorker.Run(ctx)
	})
	if err := svc.RegisterHandler(retryHandler); err != nil {
		return err
	}
	if err := svc.AddScheduledTask(WebhookRetryTaskName, queue.EveryInterval(cfg.WebhookRetryTick)); err != nil {
		return err
	}

	reaperHandler := queue.NewPeriodicTaskHandler(RetentionReaperTaskName, func(ctx context.Context) error {
		return runReaper(ctx, authStore, coordinator, log)
	})
	if err := svc.RegisterHandler(reaperHandler); err != nil {
		return err
	}
	if err := svc.AddScheduledTask(RetentionReaperTaskName, queue.EveryInterval(cfg.RetentionReaperInterval)); err != nil {
		return err
	}

	return nil
}

// runReaper purges every authorization past its retention boundary as of
// now, auditing and deleting each through the coordinator so PURGED is
// recorded before the row disappears.
func runReaper(ctx context.Context, authStore store.Store, coordinator *lifecycle.Coordinator, log *slog.Logger) error {
	purgeable, err := authStore.ListPurgeable(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, auth := range purgeable {
		if err := coordinator.Purge(ctx, auth.TenantID, auth.ID); err != nil {
			log.ErrorContext(ctx, "jobs: purging authorization failed",
				slog.String("authorization_id", auth.ID.String()), slog.Any("error", err))
		}
	}

	return nil
}
