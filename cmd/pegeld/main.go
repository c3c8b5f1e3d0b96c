package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pegelwacht/pegel-monitor/internal/adapter/gaugexml"
	"github.com/pegelwacht/pegel-monitor/internal/adapter/history"
	httpadapter "github.com/pegelwacht/pegel-monitor/internal/adapter/http"
	kafkaadapter "github.com/pegelwacht/pegel-monitor/internal/adapter/kafka"
	"github.com/pegelwacht/pegel-monitor/internal/adapter/telegram"
	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/monitor"
	"github.com/pegelwacht/pegel-monitor/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	loc, err := time.LoadLocation(cfg.GaugeTimezone)
	if err != nil {
		logger.Error("invalid gauge timezone", "timezone", cfg.GaugeTimezone, "error", err)
		os.Exit(1)
	}
	domain.SetLocation(loc)

	store, err := history.Open(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}

	fetcher := gaugexml.NewClient(cfg, logger, metrics)

	// Alert sinks are feature-flagged; the monitor works with none.
	var sinks []monitor.AlertSink
	var alertWriter *kafkaadapter.AlertWriter
	if cfg.KafkaEnabled {
		alertWriter = kafkaadapter.NewAlertWriter(cfg, logger)
		sinks = append(sinks, alertWriter)
		logger.Info("kafka alerts enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka alerts disabled")
	}
	if cfg.TelegramEnabled {
		notifier, err := telegram.NewNotifier(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize telegram notifier", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, notifier)
		logger.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	} else {
		logger.Info("telegram alerts disabled")
	}

	mon := monitor.New(cfg, fetcher, store, sinks, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, mon, store, logger)

	// Hourly cleanup keeps eviction running even when saves stop.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CleanupSchedule, store.CleanOldData); err != nil {
		logger.Error("invalid cleanup schedule", "schedule", cfg.CleanupSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh loop.
	go func() {
		if err := mon.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	<-scheduler.Stop().Done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if alertWriter != nil {
		if err := alertWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("history store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
