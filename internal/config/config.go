// Package config reads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrJWTSecretTooShort = errors.New("JWT_SECRET must be at least 32 characters")
	ErrMissingAdminKey   = errors.New("ADMIN_KEY_HASH is required")
	ErrTimeoutOrder      = errors.New("timeouts are inconsistent")
)

const minJWTSecretLength = 32

type Config struct {
	Environment string
	HTTPAddr    string

	// DatabaseURL selects PostgreSQL; empty keeps everything in memory.
	DatabaseURL string
	// RedisAddr selects the Redis settlement lock; empty uses an in-process lock.
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration
	// LockWait bounds how long a write waits for an order another request holds.
	LockWait time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	// KafkaRequiredAcks is one of "all", "one" or "none".
	KafkaRequiredAcks    string
	KafkaAutoCreateTopic bool
	KafkaBatchTimeout    time.Duration

	// GatewayURL selects the HTTP payment gateway; empty uses the simulated one.
	GatewayURL          string
	GatewayTimeout      time.Duration
	GatewayMaxFailures  int
	GatewayResetTimeout time.Duration

	SettlementStaleAfter time.Duration

	JWTSecret    string
	JWTExpiry    time.Duration
	AdminKeyHash string

	LogLevel       string
	LogDevelopment bool

	OTLPEndpoint string

	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

// Load reads the API server configuration.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, ErrJWTSecretTooShort
	}
	if cfg.AdminKeyHash == "" {
		return nil, ErrMissingAdminKey
	}
	return cfg, nil
}

// LoadNotifier reads the configuration of the receipt notifier, which needs
// neither the JWT secret nor the admin key.
func LoadNotifier() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LockTTL:       p.duration("LOCK_TTL", 30*time.Second),
		LockWait:      p.duration("LOCK_WAIT", 5*time.Second),

		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "checkout-events"),
		KafkaRequiredAcks:    strings.ToLower(getEnv("KAFKA_REQUIRED_ACKS", "all")),
		KafkaAutoCreateTopic: p.boolean("KAFKA_AUTO_CREATE_TOPIC", false),
		KafkaBatchTimeout:    p.duration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),

		GatewayURL:          os.Getenv("GATEWAY_URL"),
		GatewayTimeout:      p.duration("GATEWAY_TIMEOUT", 10*time.Second),
		GatewayMaxFailures:  p.integer("GATEWAY_MAX_FAILURES", 5),
		GatewayResetTimeout: p.duration("GATEWAY_RESET_TIMEOUT", 30*time.Second),

		SettlementStaleAfter: p.duration("SETTLEMENT_STALE_AFTER", 2*time.Minute),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTExpiry:    p.duration("JWT_EXPIRY", time.Hour),
		AdminKeyHash: os.Getenv("ADMIN_KEY_HASH"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: p.boolean("LOG_DEVELOPMENT", false),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		SMTPHost: getEnv("SMTP_HOST", "localhost"),
		SMTPPort: getEnv("SMTP_PORT", "1025"),
		SMTPFrom: getEnv("SMTP_FROM", "noreply@example.com"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout <= 0 {
		return nil, fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", cfg.GatewayTimeout)
	}
	if cfg.GatewayMaxFailures <= 0 {
		return nil, fmt.Errorf("GATEWAY_MAX_FAILURES must be positive, got %d", cfg.GatewayMaxFailures)
	}
	// The settlement lock and the pending status must both outlive a charge.
	if cfg.LockTTL <= cfg.GatewayTimeout {
		return nil, fmt.Errorf("%w: LOCK_TTL (%s) must exceed GATEWAY_TIMEOUT (%s)", ErrTimeoutOrder, cfg.LockTTL, cfg.GatewayTimeout)
	}
	if cfg.SettlementStaleAfter <= cfg.GatewayTimeout {
		return nil, fmt.Errorf("%w: SETTLEMENT_STALE_AFTER (%s) must exceed GATEWAY_TIMEOUT (%s)", ErrTimeoutOrder, cfg.SettlementStaleAfter, cfg.GatewayTimeout)
	}
	switch cfg.KafkaRequiredAcks {
	case "all", "one", "none":
	default:
		return nil, fmt.Errorf("KAFKA_REQUIRED_ACKS must be all, one or none, got %q", cfg.KafkaRequiredAcks)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects every malformed variable so they are reported together.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
