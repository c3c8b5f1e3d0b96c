package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSourceURL = "https://www.stadt-koeln.de/interne-dienste/hochwasser/pegel.xml"

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceURL    string
	FallbackURL  string
	FetchTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration

	RefreshInterval time.Duration
	AutoRefresh     bool
	CleanupSchedule string

	DBPath            string
	HistoryMaxEntries int
	HistoryMaxAge     time.Duration

	GaugeTimezone string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka alert publishing (optional, enabled when brokers are set).
	KafkaBrokers    []string
	KafkaAlertTopic string
	KafkaEnabled    bool

	// Telegram alert notifications (optional, enabled when a token is set).
	TelegramToken   string
	TelegramChatID  int64
	TelegramEnabled bool
}

// Load reads configuration from environment variables (optionally a .env
// file), applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	fetchTimeout, err := durationEnv("FETCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := durationEnv("RETRY_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := durationEnv("REFRESH_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	historyMaxAge, err := durationEnv("HISTORY_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	maxRetries, err := intEnv("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	historyMaxEntries, err := intEnv("HISTORY_MAX_ENTRIES", 1440)
	if err != nil {
		return nil, err
	}

	telegramChatID, err := int64Env("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	kafkaBrokers := splitList(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	telegramEnabled := telegramToken != ""
	if v := os.Getenv("TELEGRAM_ENABLED"); v != "" {
		telegramEnabled = v == "true"
	}

	cfg := &Config{
		SourceURL:    envOrDefault("SOURCE_URL", defaultSourceURL),
		FallbackURL:  strings.TrimSpace(os.Getenv("FALLBACK_URL")),
		FetchTimeout: fetchTimeout,
		MaxRetries:   maxRetries,
		RetryDelay:   retryDelay,

		RefreshInterval: refreshInterval,
		AutoRefresh:     os.Getenv("AUTO_REFRESH") != "false",
		CleanupSchedule: envOrDefault("CLEANUP_SCHEDULE", "15 * * * *"),

		DBPath:            envOrDefault("DB_PATH", "data/pegel.db"),
		HistoryMaxEntries: historyMaxEntries,
		HistoryMaxAge:     historyMaxAge,

		GaugeTimezone: envOrDefault("GAUGE_TIMEZONE", "Europe/Berlin"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:    kafkaBrokers,
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "water-level-alerts"),
		KafkaEnabled:    kafkaEnabled,

		TelegramToken:   telegramToken,
		TelegramChatID:  telegramChatID,
		TelegramEnabled: telegramEnabled,
	}

	if cfg.SourceURL == "" {
		return nil, errors.New("SOURCE_URL is required")
	}
	if cfg.MaxRetries < 1 {
		return nil, errors.New("MAX_RETRIES must be at least 1")
	}
	if cfg.HistoryMaxEntries < 1 {
		return nil, errors.New("HISTORY_MAX_ENTRIES must be at least 1")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required when Kafka is enabled")
	}
	if cfg.TelegramEnabled && cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_ENABLED is true but TELEGRAM_BOT_TOKEN is not set")
	}
	if cfg.TelegramEnabled && cfg.TelegramChatID == 0 {
		return nil, errors.New("TELEGRAM_CHAT_ID is required when Telegram is enabled")
	}

	return cfg, nil
}

func envOrDefault(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func int64Env(name string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
