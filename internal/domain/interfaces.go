package domain

import (
	"context"
	"time"
)

// Partner описывает интеграцию партнёрской сети.
type Partner interface {
	// VerifyToken проверяет партнёрский секрет; при незаданном секрете доступ открыт.
	VerifyToken(provided string) bool
	// ValidateRequest выполняет партнёрские проверки входящего запроса.
	ValidateRequest(req *WebhookRequest) error
	// Parse разбирает запрос в сырые поля с учётом Content-Type.
	Parse(req *WebhookRequest) (RawFields, error)
	// Normalize приводит сырые поля к каноническому событию.
	Normalize(fields RawFields) (CanonicalEvent, error)
}

// EventRepo — идемпотентное хранилище событий.
type EventRepo interface {
	Upsert(ctx context.Context, ev CanonicalEvent) (SavedEvent, error)
	InitSchema(ctx context.Context) error
}

// WebhookProcessor обрабатывает входящую доставку вебхука.
type WebhookProcessor interface {
	Process(ctx context.Context, secretToken string, req *WebhookRequest) (Receipt, error)
}

// Notifier отправляет оповещения дежурным. Доставка best-effort:
// неудача логируется и не влияет на обработку запроса.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) bool
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
