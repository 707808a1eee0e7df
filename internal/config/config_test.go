package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.SweepConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.PolicyCacheTTL)
	assert.True(t, cfg.MigrateOnStart)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "broker.audit", cfg.KafkaAuditTopic)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SWEEP_CONCURRENCY", "8")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.SweepConcurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad interval", map[string]string{"SWEEP_INTERVAL": "soon"}},
		{"zero concurrency", map[string]string{"SWEEP_CONCURRENCY": "0"}},
		{"production without database", map[string]string{"ENV": "production", "DATABASE_URL": ""}},
		{"bad migrate flag", map[string]string{"MIGRATE_ON_START": "maybe"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("BROKERGUARD_TEST_KEY", "value")
	assert.Equal(t, "value", GetEnv("BROKERGUARD_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("BROKERGUARD_MISSING_KEY", "fallback"))
}
