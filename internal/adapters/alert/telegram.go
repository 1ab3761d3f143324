package alert

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"epn-webhook/internal/domain"
	"epn-webhook/internal/infra/metrics"
)

// Telegram отправляет оповещения в чат дежурных.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram создаёт канал оповещений в Telegram.
func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, logger zerolog.Logger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, log: logger.With().Str("component", "alert").Logger()}
}

// Notify реализует domain.Notifier. Длинные оповещения (сырой payload в теле)
// режутся на части под лимит сообщения Telegram.
func (t *Telegram) Notify(_ context.Context, subject, body string) bool {
	for _, chunk := range splitMessage(subject + "\n\n" + body) {
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		start := time.Now()
		_, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_alert", "sendMessage", start, err)
		metrics.IncAlert("telegram", err == nil)
		if err != nil {
			t.log.Error().Err(err).Int64("chat_id", t.chatID).Msg("alert: сообщение в Telegram не отправлено")
			return false
		}
	}
	return true
}
