package domain

import "errors"

var (
	// ErrSecretNotConfigured возвращается, когда у сервиса не задан секретный токен.
	ErrSecretNotConfigured = errors.New("webhook secret is not configured")

	// ErrUnauthorized возвращается при неверном секретном токене в пути запроса.
	ErrUnauthorized = errors.New("invalid secret token")

	// ErrPartnerUnknown возвращается, когда партнёр не зарегистрирован.
	ErrPartnerUnknown = errors.New("unknown partner")

	// ErrBadPayload возвращается, когда тело запроса не удалось разобрать.
	ErrBadPayload = errors.New("invalid payload")

	// ErrMissingField возвращается, когда в данных нет обязательного поля.
	ErrMissingField = errors.New("missing required field")

	// ErrConnection означает временную недоступность хранилища; доставку можно повторить.
	ErrConnection = errors.New("store connection unavailable")

	// ErrDuplicate означает, что событие уже записано; это не ошибка доставки.
	ErrDuplicate = errors.New("event already recorded")

	// ErrOperation означает прочую ошибку записи; доставку можно повторить.
	ErrOperation = errors.New("store operation failed")
)
