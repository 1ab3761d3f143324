// Package ingest реализует конвейер приёма вебхуков: проверка секрета,
// выбор партнёра, разбор, нормализация и идемпотентная запись события.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"epn-webhook/internal/domain"
	"epn-webhook/internal/infra/metrics"
)

const defaultAlertTimeout = 10 * time.Second

// Service реализует обработку входящих доставок.
type Service struct {
	secret         string
	defaultPartner string
	partners       map[string]domain.Partner
	repo           domain.EventRepo
	notifier       domain.Notifier
	alertTimeout   time.Duration
	log            zerolog.Logger
}

var _ domain.WebhookProcessor = (*Service)(nil)

// NewService создаёт конвейер приёма.
func NewService(secret, defaultPartner string, repo domain.EventRepo, notifier domain.Notifier, alertTimeout time.Duration, logger zerolog.Logger) *Service {
	if alertTimeout <= 0 {
		alertTimeout = defaultAlertTimeout
	}
	return &Service{
		secret:         secret,
		defaultPartner: defaultPartner,
		partners:       make(map[string]domain.Partner),
		repo:           repo,
		notifier:       notifier,
		alertTimeout:   alertTimeout,
		log:            logger.With().Str("component", "ingest").Logger(),
	}
}

// RegisterPartner добавляет партнёра в реестр. Вызывается на старте,
// до начала обработки запросов; реестр далее только читается.
func (s *Service) RegisterPartner(id string, partner domain.Partner) {
	s.partners[id] = partner
}

// Process реализует domain.WebhookProcessor. Конвейер линейный и
// останавливается на первой ошибке; классификация ошибки определяет
// HTTP-ответ на транспортном уровне.
func (s *Service) Process(ctx context.Context, secretToken string, req *domain.WebhookRequest) (domain.Receipt, error) {
	start := time.Now()
	deliveryID := uuid.NewString()
	logger := s.log.With().Str("delivery_id", deliveryID).Logger()

	receipt := domain.Receipt{DeliveryID: deliveryID, Partner: s.defaultPartner}

	fail := func(outcome string, err error) (domain.Receipt, error) {
		receipt.Elapsed = time.Since(start)
		metrics.ObserveWebhook(receipt.Partner, outcome, receipt.Elapsed)
		return receipt, err
	}

	if s.secret == "" {
		logger.Error().Msg("ingest: секретный токен не задан в конфигурации")
		return fail("misconfigured", domain.ErrSecretNotConfigured)
	}
	if secretToken != s.secret {
		logger.Warn().Str("client_ip", req.ClientIP).Msg("ingest: неверный секретный токен")
		return fail("unauthorized", domain.ErrUnauthorized)
	}

	partner, ok := s.partners[s.defaultPartner]
	if !ok {
		logger.Error().Str("partner", s.defaultPartner).Msg("ingest: партнёр не зарегистрирован")
		return fail("partner_unknown", domain.ErrPartnerUnknown)
	}

	if err := partner.ValidateRequest(req); err != nil {
		logger.Warn().Err(err).Msg("ingest: запрос отклонён партнёрской проверкой")
		return fail("bad_payload", fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
	}
	if !partner.VerifyToken(secretToken) {
		logger.Warn().Str("partner", s.defaultPartner).Msg("ingest: партнёр отклонил токен")
		return fail("unauthorized", domain.ErrUnauthorized)
	}

	fields, err := partner.Parse(req)
	if err != nil {
		logger.Warn().Err(err).Str("content_type", req.ContentType).Msg("ingest: тело запроса не разобрано")
		return fail("bad_payload", err)
	}
	logger.Debug().Int("fields", len(fields)).Msg("ingest: запрос разобран")

	ev, err := partner.Normalize(fields)
	if err != nil {
		logger.Warn().Err(err).Msg("ingest: нормализация отклонила доставку")
		return fail("bad_payload", err)
	}

	receipt.Partner = ev.Partner
	receipt.ClickID = ev.ClickID
	receipt.UniqID = ev.UniqID
	receipt.OrderStatus = ev.OrderStatus
	receipt.Revenue = ev.Revenue
	receipt.CommissionFee = ev.CommissionFee

	saved, err := s.repo.Upsert(ctx, ev)
	receipt.Elapsed = time.Since(start)
	switch {
	case err == nil:
		receipt.Result = saved.Result
		metrics.ObserveWebhook(ev.Partner, string(saved.Result), receipt.Elapsed)
		logger.Info().
			Str("partner", ev.Partner).
			Str("uniq_id", ev.UniqID).
			Str("order_status", ev.OrderStatus).
			Str("result", string(saved.Result)).
			Int64("event_id", saved.ID).
			Dur("elapsed", receipt.Elapsed).
			Msg("ingest: событие записано")
		return receipt, nil

	case errors.Is(err, domain.ErrDuplicate):
		// запись уже есть, доставку подтверждаем без оповещений
		receipt.Duplicate = true
		metrics.ObserveWebhook(ev.Partner, "duplicate", receipt.Elapsed)
		logger.Info().Str("uniq_id", ev.UniqID).Str("order_status", ev.OrderStatus).Msg("ingest: повторная доставка уже записанного события")
		return receipt, nil

	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrOperation):
		metrics.ObserveWebhook(ev.Partner, "store_unavailable", receipt.Elapsed)
		logger.Error().Err(err).Str("uniq_id", ev.UniqID).Msg("ingest: запись события не удалась")
		s.alert(deliveryID, ev, err)
		return receipt, err

	default:
		metrics.ObserveWebhook(ev.Partner, "internal_error", receipt.Elapsed)
		logger.Error().Err(err).Str("uniq_id", ev.UniqID).Msg("ingest: непредвиденная ошибка записи")
		s.alert(deliveryID, ev, err)
		return receipt, err
	}
}

// alert отправляет оповещение дежурным. Используется отдельный контекст
// с собственным таймаутом: запросный может быть уже исчерпан сбоем БД.
// Результат доставки не влияет на ответ партнёру.
func (s *Service) alert(deliveryID string, ev domain.CanonicalEvent, cause error) {
	subject := fmt.Sprintf("[epn-webhook] не удалось записать событие %s/%s", ev.Partner, ev.OrderStatus)

	payload, err := json.MarshalIndent(ev.RawPayload, "", "  ")
	if err != nil {
		payload = []byte(fmt.Sprintf("marshal error: %v", err))
	}
	body := fmt.Sprintf(
		"delivery_id: %s\npartner: %s\nuniq_id: %s\norder_status: %s\nclick_id: %s\norder_number: %s\nclient_ip: %s\nerror: %v\n\nraw payload:\n%s",
		deliveryID, ev.Partner, ev.UniqID, ev.OrderStatus, ev.ClickID, ev.OrderNumber, ev.ClientIP, cause, payload,
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.alertTimeout)
	defer cancel()
	if !s.notifier.Notify(ctx, subject, body) {
		s.log.Warn().Str("delivery_id", deliveryID).Msg("ingest: оповещение дежурным не доставлено")
	}
}
