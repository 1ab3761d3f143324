package domain

import (
	"net/url"
	"time"
)

// RawFields содержит разобранные, но ещё не нормализованные поля вебхука.
// Ключи с префиксом "_" несут транспортные метаданные запроса.
type RawFields map[string]any

// WebhookRequest описывает транспортные данные входящей доставки.
type WebhookRequest struct {
	Method      string
	ContentType string
	UserAgent   string
	ClientIP    string
	Query       url.Values
	Body        []byte
}

// CanonicalEvent — нормализованное событие о статусе заказа партнёрской сети.
type CanonicalEvent struct {
	Partner          string
	EventType        string
	ClickID          string
	OrderNumber      string
	UniqID           string
	OrderStatus      string
	OfferName        string
	OfferType        string
	OfferID          string
	TypeID           *int64
	Sub              string
	Sub2             string
	Sub3             string
	Sub4             string
	Sub5             string
	Revenue          float64
	CommissionFee    float64
	Currency         string
	IP               string
	IPv6             string
	PartnerUserAgent string
	ClickTime        string
	TimeOfOrder      string
	ClientIP         string
	UserAgent        string
	RawPayload       map[string]any
}

// UpsertResult сообщает, как завершился идемпотентный апсерт события.
type UpsertResult string

const (
	// UpsertInserted — создана новая строка.
	UpsertInserted UpsertResult = "inserted"
	// UpsertUpdated — повторная доставка перезаписала существующую строку.
	UpsertUpdated UpsertResult = "updated"
)

// SavedEvent описывает строку события после записи в хранилище.
type SavedEvent struct {
	ID        int64
	Result    UpsertResult
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Receipt — итог обработки принятой доставки вебхука.
type Receipt struct {
	DeliveryID    string
	Partner       string
	ClickID       string
	UniqID        string
	OrderStatus   string
	Revenue       float64
	CommissionFee float64
	Result        UpsertResult
	Duplicate     bool
	Elapsed       time.Duration
}
