package collab

import "errors"

// Ошибки клиентов внешних сервисов.
var (
	// ErrRequest — запрос к внешнему сервису завершился ошибкой
	// (транспорт, таймаут или HTTP >= 400).
	ErrRequest = errors.New("collaborator request failed")

	// ErrNotConfigured — не заданы учётные данные или адрес сервиса.
	ErrNotConfigured = errors.New("collaborator not configured")
)
