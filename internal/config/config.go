// Package config defines the vault's root configuration, composed of the
// ambient subsystem configs (server, queue) plus the vault's own domain
// settings, all loaded through core/config's env-tag loader.
package config

import (
	"time"

	"github.com/dmitrymomot/credvault/core/queue"
	"github.com/dmitrymomot/credvault/core/server"
)

// Config is the vault process's full configuration surface.
type Config struct {
	Server server.Config
	Queue  queue.Config

	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	// PostgreSQL connection, used by every *postgres.go repository.
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Redis connection, backing the trust store's L2 issuer-key cache.
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Bearer tokens for the internal admin/tenant HTTP API (pkg/jwt, HMAC).
	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"1h"`

	// Trust store (C1).
	TrustCacheCapacity int           `env:"TRUST_CACHE_CAPACITY" envDefault:"256"`
	TrustTTL           time.Duration `env:"TRUST_TTL" envDefault:"1h"`
	TrustDIDExampleBase string       `env:"TRUST_DID_EXAMPLE_BASE" envDefault:""`

	// Inbound webhook receiver (C9) shared HMAC secret.
	InboundWebhookSecret string `env:"INBOUND_WEBHOOK_SECRET,required"`

	// Retention reaper and webhook retry sweep tick intervals.
	RetentionReaperInterval time.Duration `env:"RETENTION_REAPER_INTERVAL" envDefault:"24h"`
	WebhookRetryTick        time.Duration `env:"WEBHOOK_RETRY_TICK" envDefault:"60s"`

	// Feature flags.
	DelegatedTokenEnabled bool     `env:"FEATURE_DELEGATED_TOKEN_ENABLED" envDefault:"true"`
	PSPAllowlist          []string `env:"FEATURE_PSP_ALLOWLIST" envDefault:"" envSeparator:","`

	// Optional S3 offload for evidence packs (C10).
	EvidenceS3Enabled   bool   `env:"EVIDENCE_S3_ENABLED" envDefault:"false"`
	EvidenceS3Bucket    string `env:"EVIDENCE_S3_BUCKET" envDefault:""`
	EvidenceS3Region    string `env:"EVIDENCE_S3_REGION" envDefault:"us-east-1"`
	EvidenceS3AccessKey string `env:"EVIDENCE_S3_ACCESS_KEY" envDefault:""`
	EvidenceS3SecretKey string `env:"EVIDENCE_S3_SECRET_KEY" envDefault:""`
}
