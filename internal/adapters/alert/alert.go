// Package alert содержит каналы оповещения дежурных о сбоях обработки.
package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"epn-webhook/internal/domain"
)

// Nop используется, когда ни один канал оповещений не настроен.
type Nop struct {
	log zerolog.Logger
}

var _ domain.Notifier = (*Nop)(nil)

// NewNop создаёт заглушку оповещений.
func NewNop(logger zerolog.Logger) *Nop {
	return &Nop{log: logger.With().Str("component", "alert").Logger()}
}

// Notify реализует domain.Notifier: оповещение только журналируется.
func (n *Nop) Notify(_ context.Context, subject, _ string) bool {
	n.log.Warn().Str("subject", subject).Msg("alert: каналы оповещений не настроены, сообщение не доставлено")
	return false
}

// Fanout рассылает оповещение во все каналы.
type Fanout struct {
	sinks []domain.Notifier
}

var _ domain.Notifier = (*Fanout)(nil)

// NewFanout создаёт рассылку по нескольким каналам.
func NewFanout(sinks ...domain.Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

// Notify возвращает true, если хотя бы один канал принял сообщение.
func (f *Fanout) Notify(ctx context.Context, subject, body string) bool {
	delivered := false
	for _, sink := range f.sinks {
		if sink.Notify(ctx, subject, body) {
			delivered = true
		}
	}
	return delivered
}

// Throttled подавляет повторные оповещения с одинаковой темой в пределах
// окна ttl. При длительном сбое хранилища дежурные получают одно сообщение
// на тему, а не письмо на каждую доставку.
type Throttled struct {
	next  domain.Notifier
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.Notifier = (*Throttled)(nil)

// NewThrottled оборачивает канал оповещений троттлингом через кэш.
func NewThrottled(next domain.Notifier, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Throttled {
	return &Throttled{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logger.With().Str("component", "alert").Logger(),
	}
}

// Notify реализует domain.Notifier. Недоступность кэша не блокирует
// оповещение: сообщение уходит напрямую.
func (t *Throttled) Notify(ctx context.Context, subject, body string) bool {
	delivered := false
	err := t.cache.Once(throttleKey(subject), t.ttl, func() error {
		delivered = t.next.Notify(ctx, subject, body)
		if !delivered {
			// снимаем ключ, чтобы следующий сбой повторил попытку
			return errNotDelivered
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNotDelivered) {
		t.log.Warn().Err(err).Msg("alert: троттлинг недоступен, отправляем напрямую")
		return t.next.Notify(ctx, subject, body)
	}
	if err == nil && !delivered {
		t.log.Debug().Str("subject", subject).Msg("alert: оповещение подавлено троттлингом")
		return true
	}
	return delivered
}

var errNotDelivered = errors.New("alert not delivered")

func throttleKey(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return "alert:" + hex.EncodeToString(sum[:8])
}
