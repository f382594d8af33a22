package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, EventsBackendLog, cfg.Events.Backend)
	assert.Equal(t, 3, cfg.Database.TxMaxRetries)
	assert.Equal(t, 5, cfg.Checkout.OrderCodeMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EVENTS_BACKEND", "Kafka")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DATABASE_CONN_MAX_LIFETIME", "90s")
	t.Setenv("EVENTS_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, EventsBackendKafka, cfg.Events.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 4, cfg.Events.Workers)
}

func TestLoadRejectsBadEventsBackend(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadKafkaNeedsBrokers(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Load()
	assert.Error(t, err)
}
