// Package epnbz реализует приём вебхуков партнёрской сети EPN.bz.
package epnbz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"epn-webhook/internal/domain"
)

// PartnerID — идентификатор партнёра в реестре и в строках событий.
const PartnerID = "epn_bz"

// EpnBz реализует domain.Partner для сети EPN.bz.
type EpnBz struct {
	secret string
	log    zerolog.Logger
}

var _ domain.Partner = (*EpnBz)(nil)

// New создаёт адаптер. Пустой secret переводит партнёра в открытый режим:
// VerifyToken принимает любой токен.
func New(secret string, logger zerolog.Logger) *EpnBz {
	return &EpnBz{secret: secret, log: logger.With().Str("component", "epnbz").Logger()}
}

// VerifyToken реализует domain.Partner.
func (p *EpnBz) VerifyToken(provided string) bool {
	if p.secret == "" {
		return true
	}
	return provided == p.secret
}

// ValidateRequest выполняет партнёрские проверки запроса. EPN.bz не
// подписывает доставки, поэтому проверка сводится к журналированию транспорта.
func (p *EpnBz) ValidateRequest(req *domain.WebhookRequest) error {
	p.log.Debug().
		Str("method", req.Method).
		Str("content_type", req.ContentType).
		Str("client_ip", req.ClientIP).
		Msg("epnbz: входящая доставка")
	return nil
}

// Parse разбирает запрос в сырые поля. Способ разбора зависит от метода и
// Content-Type; транспортные метаданные добавляются под ключами с "_".
func (p *EpnBz) Parse(req *domain.WebhookRequest) (domain.RawFields, error) {
	fields, err := p.parseBody(req)
	if err != nil {
		return nil, err
	}
	fields["_client_ip"] = req.ClientIP
	fields["_user_agent"] = req.UserAgent
	fields["_method"] = req.Method
	fields["_content_type"] = req.ContentType
	return fields, nil
}

func (p *EpnBz) parseBody(req *domain.WebhookRequest) (domain.RawFields, error) {
	if req.Method == http.MethodGet {
		return collapseValues(req.Query), nil
	}
	switch {
	case strings.Contains(req.ContentType, "application/json"):
		fields, err := decodeJSON(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid JSON format", domain.ErrBadPayload)
		}
		return fields, nil
	case strings.Contains(req.ContentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid form data", domain.ErrBadPayload)
		}
		return collapseValues(values), nil
	default:
		// неизвестный Content-Type: пробуем JSON, иначе сохраняем тело как есть
		if fields, err := decodeJSON(req.Body); err == nil {
			return fields, nil
		}
		p.log.Debug().Str("content_type", req.ContentType).Msg("epnbz: тело не разобрано, сохраняем как raw_content")
		return domain.RawFields{"raw_content": string(req.Body)}, nil
	}
}

// Normalize приводит сырые поля к каноническому событию. Обязательны только
// click_id и order_number; остальные поля деградируют до пустых значений.
func (p *EpnBz) Normalize(fields domain.RawFields) (domain.CanonicalEvent, error) {
	clickID := strings.TrimSpace(str(fields, "click_id"))
	if clickID == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("%w: click_id", domain.ErrMissingField)
	}
	orderNumber := strings.TrimSpace(str(fields, "order_number"))
	if orderNumber == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("%w: order_number", domain.ErrMissingField)
	}

	uniqID := strings.TrimSpace(str(fields, "uniq_id"))
	if uniqID == "" {
		uniqID = fmt.Sprintf("gen_%s_%s", orderNumber, clickID)
		p.log.Debug().Str("uniq_id", uniqID).Msg("epnbz: uniq_id не передан, синтезирован из заказа и клика")
	}

	status := domain.NormalizeOrderStatus(str(fields, "order_status"))

	currency := strings.TrimSpace(str(fields, "currency"))
	if currency == "" {
		currency = "RUB"
	}

	ev := domain.CanonicalEvent{
		Partner:          PartnerID,
		EventType:        domain.EventTypeForStatus(status),
		ClickID:          clickID,
		OrderNumber:      orderNumber,
		UniqID:           uniqID,
		OrderStatus:      status,
		OfferName:        str(fields, "offer_name"),
		OfferType:        str(fields, "offer_type"),
		OfferID:          str(fields, "offer_id"),
		TypeID:           intPtr(fields, "type_id"),
		Sub:              str(fields, "sub"),
		Sub2:             str(fields, "sub2"),
		Sub3:             str(fields, "sub3"),
		Sub4:             str(fields, "sub4"),
		Sub5:             str(fields, "sub5"),
		Revenue:          p.amount(fields, "revenue"),
		CommissionFee:    p.amount(fields, "commission_fee"),
		Currency:         currency,
		IP:               str(fields, "ip"),
		IPv6:             str(fields, "ipv6"),
		PartnerUserAgent: str(fields, "user_agent"),
		ClickTime:        str(fields, "click_time"),
		TimeOfOrder:      str(fields, "time_of_order"),
		ClientIP:         str(fields, "_client_ip"),
		UserAgent:        str(fields, "_user_agent"),
		RawPayload:       fields,
	}
	return ev, nil
}

// amount приводит значение к неотрицательному float64. Отсутствие, мусор и
// отрицательные значения дают 0: сумма не должна ронять доставку.
func (p *EpnBz) amount(fields domain.RawFields, key string) float64 {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0
	}
	var (
		parsed float64
		err    error
	)
	switch value := v.(type) {
	case json.Number:
		parsed, err = value.Float64()
	case float64:
		parsed = value
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0
		}
		parsed, err = strconv.ParseFloat(trimmed, 64)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		p.log.Warn().Str("field", key).Interface("value", v).Msg("epnbz: сумма не разобрана, используем 0")
		return 0
	}
	if parsed < 0 {
		p.log.Warn().Str("field", key).Float64("value", parsed).Msg("epnbz: отрицательная сумма, используем 0")
		return 0
	}
	return parsed
}

func intPtr(fields domain.RawFields, key string) *int64 {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	switch value := v.(type) {
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return &n
		}
		if f, err := value.Float64(); err == nil {
			n := int64(f)
			return &n
		}
	case float64:
		n := int64(value)
		return &n
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func str(fields domain.RawFields, keys ...string) string {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch value := v.(type) {
		case string:
			if value != "" {
				return value
			}
		case json.Number:
			return value.String()
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}
	return ""
}

func decodeJSON(body []byte) (domain.RawFields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields domain.RawFields
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	// литерал null декодируется в nil-карту без ошибки
	if fields == nil {
		fields = domain.RawFields{}
	}
	return fields, nil
}

// collapseValues сводит url.Values к скалярам: одиночные значения
// разворачиваются из списка, повторяющиеся ключи остаются списком.
func collapseValues(values url.Values) domain.RawFields {
	fields := make(domain.RawFields, len(values))
	for key, list := range values {
		switch len(list) {
		case 0:
			continue
		case 1:
			fields[key] = list[0]
		default:
			fields[key] = list
		}
	}
	return fields
}
