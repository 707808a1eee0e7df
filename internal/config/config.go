package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	LogLevel string
	Env      string

	// DatabaseURL empty runs on in-memory stores.
	DatabaseURL    string
	MigrateOnStart bool
	// RedisURL empty disables the policy cache and the cross-instance feed.
	RedisURL       string
	PolicyCacheTTL time.Duration

	JWTSecret string

	SweepInterval    time.Duration
	SweepConcurrency int

	// KafkaBrokers empty disables the Kafka audit sink.
	KafkaBrokers    []string
	KafkaAuditTopic string
}

// LoadConfig reads the environment, after loading .env when one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:            GetEnv("PORT", "8081"),
		DatabaseURL:     GetEnv("DATABASE_URL", ""),
		RedisURL:        GetEnv("REDIS_URL", ""),
		Env:             GetEnv("ENV", "development"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		JWTSecret:       GetEnv("JWT_SECRET", ""),
		KafkaBrokers:    splitList(GetEnv("KAFKA_BROKERS", "")),
		KafkaAuditTopic: GetEnv("KAFKA_AUDIT_TOPIC", "broker.audit"),
	}

	var err error
	if cfg.MigrateOnStart, err = strconv.ParseBool(GetEnv("MIGRATE_ON_START", "true")); err != nil {
		return nil, fmt.Errorf("MIGRATE_ON_START: %w", err)
	}
	if cfg.PolicyCacheTTL, err = time.ParseDuration(GetEnv("POLICY_CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("POLICY_CACHE_TTL: %w", err)
	}
	if cfg.SweepInterval, err = time.ParseDuration(GetEnv("SWEEP_INTERVAL", "5m")); err != nil {
		return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepConcurrency, err = strconv.Atoi(GetEnv("SWEEP_CONCURRENCY", "4")); err != nil {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Env == "production" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.SweepConcurrency < 1 {
		return errors.New("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.PolicyCacheTTL <= 0 {
		return errors.New("POLICY_CACHE_TTL must be positive")
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
