package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultSourceURL, cfg.SourceURL)
	assert.Empty(t, cfg.FallbackURL)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.True(t, cfg.AutoRefresh)
	assert.Equal(t, "15 * * * *", cfg.CleanupSchedule)
	assert.Equal(t, "data/pegel.db", cfg.DBPath)
	assert.Equal(t, 1440, cfg.HistoryMaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.HistoryMaxAge)
	assert.Equal(t, "Europe/Berlin", cfg.GaugeTimezone)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "water-level-alerts", cfg.KafkaAlertTopic)
	assert.False(t, cfg.TelegramEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SOURCE_URL", "https://example.org/pegel.xml")
	t.Setenv("FALLBACK_URL", "https://relay.example.org/pegel.xml")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_DELAY", "500ms")
	t.Setenv("REFRESH_INTERVAL", "30s")
	t.Setenv("AUTO_REFRESH", "false")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("HISTORY_MAX_ENTRIES", "100")
	t.Setenv("HISTORY_MAX_AGE", "12h")
	t.Setenv("GAUGE_TIMEZONE", "UTC")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_ALERT_TOPIC", "custom-alerts")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200300")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/pegel.xml", cfg.SourceURL)
	assert.Equal(t, "https://relay.example.org/pegel.xml", cfg.FallbackURL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.False(t, cfg.AutoRefresh)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 100, cfg.HistoryMaxEntries)
	assert.Equal(t, 12*time.Hour, cfg.HistoryMaxAge)
	assert.Equal(t, "UTC", cfg.GaugeTimezone)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, "custom-alerts", cfg.KafkaAlertTopic)
	assert.True(t, cfg.TelegramEnabled)
	assert.Equal(t, int64(-100200300), cfg.TelegramChatID)
}

func TestLoad_InvalidFetchTimeout(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
}

func TestLoad_NegativeRetryDelay(t *testing.T) {
	t.Setenv("RETRY_DELAY", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_DELAY")
}

func TestLoad_ZeroMaxRetries(t *testing.T) {
	t.Setenv("MAX_RETRIES", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRIES")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_TelegramWithoutChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
}

func TestLoad_KafkaDisabledOverride(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}
