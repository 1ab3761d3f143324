package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"epn-webhook/internal/domain"
	"epn-webhook/internal/infra/metrics"
)

// EmailConfig описывает настройки SMTP-канала.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
	Timeout  time.Duration
}

// Email отправляет оповещения дежурным по SMTP.
type Email struct {
	cfg EmailConfig
	log zerolog.Logger
}

var _ domain.Notifier = (*Email)(nil)

// NewEmail создаёт почтовый канал. Адрес отправителя по умолчанию
// совпадает с SMTP-пользователем.
func NewEmail(cfg EmailConfig, logger zerolog.Logger) *Email {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Email{cfg: cfg, log: logger.With().Str("component", "alert").Logger()}
}

// Notify реализует domain.Notifier.
func (e *Email) Notify(ctx context.Context, subject, body string) bool {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		e.log.Error().Err(err).Msg("alert: некорректный адрес отправителя")
		metrics.IncAlert("email", false)
		return false
	}
	if err := msg.To(e.cfg.To); err != nil {
		e.log.Error().Err(err).Msg("alert: некорректный адрес получателя")
		metrics.IncAlert("email", false)
		return false
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(e.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if e.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.User),
			mail.WithPassword(e.cfg.Password),
		)
	}
	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		e.log.Error().Err(err).Msg("alert: не удалось создать SMTP-клиент")
		metrics.IncAlert("email", false)
		return false
	}

	start := time.Now()
	err = client.DialAndSendWithContext(ctx, msg)
	metrics.ObserveNetworkRequest("smtp", "send_alert", e.cfg.Host, start, err)
	metrics.IncAlert("email", err == nil)
	if err != nil {
		e.log.Error().Err(err).Str("to", e.cfg.To).Msg("alert: письмо не отправлено")
		return false
	}
	e.log.Info().Str("to", e.cfg.To).Str("subject", subject).Msg("alert: письмо отправлено")
	return true
}
