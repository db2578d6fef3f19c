// Command server runs the authorization credential vault: the HTTP API
// (spec §6) plus the background worker that drives the webhook retry sweep
// and the retention reaper.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	vaultconfig "github.com/dmitrymomot/credvault/internal/config"

	"github.com/dmitrymomot/credvault/core/config"
	"github.com/dmitrymomot/credvault/core/logger"
	"github.com/dmitrymomot/credvault/core/queue"
	"github.com/dmitrymomot/credvault/core/server"

	"github.com/dmitrymomot/credvault/internal/audit"
	"github.com/dmitrymomot/credvault/internal/evidence"
	"github.com/dmitrymomot/credvault/internal/httpapi"
	"github.com/dmitrymomot/credvault/internal/inbound"
	"github.com/dmitrymomot/credvault/internal/jobs"
	"github.com/dmitrymomot/credvault/internal/lifecycle"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/internal/trust"
	"github.com/dmitrymomot/credvault/internal/verify"
	"github.com/dmitrymomot/credvault/internal/webhookengine"

	"github.com/dmitrymomot/credvault/pkg/jwt"
	"github.com/dmitrymomot/credvault/pkg/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Default().Error("server: exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	var cfg vaultconfig.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := newLogger(cfg)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	trustStore, err := trust.NewStore(cfg.TrustCacheCapacity,
		trust.WithTTL(cfg.TrustTTL),
		trust.WithRedis(redisClient),
		trust.WithDIDExampleBase(cfg.TrustDIDExampleBase),
		trust.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var delegatedOpts []verify.DelegatedTokenOption
	if !cfg.DelegatedTokenEnabled {
		delegatedOpts = append(delegatedOpts, verify.WithDisabled())
	}
	if len(cfg.PSPAllowlist) > 0 {
		delegatedOpts = append(delegatedOpts, verify.WithPSPAllowlist(cfg.PSPAllowlist))
	}

	jwtvcVerifier := verify.NewJWTVCVerifier(trustStore)
	delegatedVerifier := verify.NewDelegatedTokenVerifier(delegatedOpts...)
	dispatcher := verify.NewDispatcher(jwtvcVerifier, delegatedVerifier)

	authStore := store.NewPostgresStore(pool)
	auditWriter := audit.NewWriter(audit.NewPostgresRepository(pool))

	metrics := httpapi.NewMetrics()

	sender := webhook.NewSender()
	subRepo := webhookengine.NewPostgresSubscriptionRepository(pool)
	deliveryRepo := webhookengine.NewPostgresDeliveryRepository(pool)
	webhookEngine := webhookengine.New(subRepo, deliveryRepo, sender, log,
		webhookengine.WithAttemptObserver(func(outcome string) {
			metrics.WebhookAttempts.WithLabelValues(outcome).Inc()
		}),
	)
	retryWorker := webhookengine.NewRetryWorker(webhookEngine, deliveryRepo, subRepo, log)
	subscriptionManager := webhookengine.NewSubscriptionManager(subRepo)

	tenants := lifecycle.NewAllowlistTenantResolver()
	coordinator := lifecycle.New(tenants, dispatcher, authStore, auditWriter, webhookEngine)

	tokenResolver := inbound.NewStoreTokenResolver(authStore)
	eventRepo := inbound.NewPostgresEventRepository(pool)
	receiver := inbound.New(cfg.InboundWebhookSecret, eventRepo, tokenResolver, authStore, auditWriter, webhookEngine)

	evidenceBuilder := evidence.NewBuilder(authStore, auditWriter)

	tokens, err := jwt.NewFromString(cfg.JWTSecret)
	if err != nil {
		return err
	}

	handlers := httpapi.NewHandlers(coordinator, authStore, evidenceBuilder, receiver, metrics, log)
	if cfg.EvidenceS3Enabled {
		s3Client, err := evidence.NewS3Client(ctx, cfg.EvidenceS3Region, cfg.EvidenceS3AccessKey, cfg.EvidenceS3SecretKey)
		if err != nil {
			return err
		}
		handlers = handlers.WithEvidenceS3Uploader(evidence.NewS3Uploader(s3Client, cfg.EvidenceS3Bucket))
	}
	adminHandlers := httpapi.NewAdminHandlers(trustStore, subscriptionManager, auditWriter)
	router := httpapi.NewRouter(handlers, adminHandlers, metrics, tokens, log, pool, redisPinger{redisClient})

	httpServer, err := server.NewFromConfig(cfg.Server)
	if err != nil {
		return err
	}

	queueStorage := queue.NewMemoryStorage()
	queueService, err := queue.NewServiceFromConfig(cfg.Queue, queueStorage)
	if err != nil {
		return err
	}
	if err := jobs.Register(queueService, jobs.Config{
		WebhookRetryTick:        cfg.WebhookRetryTick,
		RetentionReaperInterval: cfg.RetentionReaperInterval,
	}, retryWorker, coordinator, authStore, log); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(httpServer.Run(groupCtx, router))
	group.Go(func() error { return queueService.Run(groupCtx) })

	log.Info("server: starting", slog.String("addr", cfg.Server.Addr), slog.String("env", cfg.AppEnv))
	return group.Wait()
}

// redisPinger adapts *redis.Client's Ping (which returns a *StatusCmd) to
// httpapi.Pinger's plain error signature.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func newLogger(cfg vaultconfig.Config) *slog.Logger {
	switch cfg.AppEnv {
	case "production":
		return logger.New(logger.WithProduction("credvault"))
	case "staging":
		return logger.New(logger.WithStaging("credvault"))
	default:
		return logger.New(logger.WithDevelopment("credvault"))
	}
}
