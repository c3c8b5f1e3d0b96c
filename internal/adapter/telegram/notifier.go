// Package telegram sends tier-change alerts to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
)

// Notifier pushes tier-change messages to a single chat.
// It implements monitor.AlertSink.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewNotifier creates a Telegram notifier. It validates the token against the
// Bot API on startup.
func NewNotifier(cfg *config.Config, logger *slog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName, "chat_id", cfg.TelegramChatID)

	return &Notifier{
		bot:    bot,
		chatID: cfg.TelegramChatID,
		logger: logger,
	}, nil
}

// Name identifies this sink in logs and metrics.
func (n *Notifier) Name() string { return "telegram" }

// NotifyTierChange sends one formatted alert message. The Bot API client has
// no context support; cancellation is checked before sending only.
func (n *Notifier) NotifyTierChange(ctx context.Context, change domain.TierChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, formatTierChange(change))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

// formatTierChange renders the alert text. Escalations lead with the severity
// of the new tier; de-escalations read as all-clear messages.
func formatTierChange(change domain.TierChange) string {
	emoji := tierEmoji(change.To.Name)
	headline := fmt.Sprintf("%s *Pegel %s*", emoji, change.To.Label)
	if change.To.MinCm < change.From.MinCm {
		headline = fmt.Sprintf("%s *Entwarnung: Pegel %s*", emoji, change.To.Label)
	}

	return fmt.Sprintf("%s\n\nWasserstand: *%d cm* (vorher %s)\n%s\nStand: %s",
		headline,
		change.LevelCm,
		change.From.Label,
		change.To.Description,
		change.At.Format("02.01.2006 15:04"),
	)
}

func tierEmoji(tier string) string {
	switch tier {
	case "danger":
		return "🚨"
	case "warning":
		return "⚠️"
	default:
		return "✅"
	}
}
