package stageclient

import "errors"

// Таксономия ошибок этапного вызова.
var (
	// ErrUnreachable — транспортный сбой (connect refused, DNS, 5xx).
	// Retryable.
	ErrUnreachable = errors.New("stage unreachable")

	// ErrTimeout — превышен настроенный дедлайн вызова. Retryable.
	ErrTimeout = errors.New("stage call timeout")

	// ErrInvalidResponse — некорректный или неожиданный ответ этапа
	// (битый JSON, неизвестный outcome, 4xx). НЕ retryable: требует
	// ручного вмешательства, заявка уходит в FAILED.
	ErrInvalidResponse = errors.New("invalid stage response")

	// ErrUnknownStage — для состояния нет зарегистрированного endpoint.
	ErrUnknownStage = errors.New("unknown stage")
)

// Retryable сообщает, имеет ли смысл повторять вызов.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}
