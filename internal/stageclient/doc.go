// Package stageclient реализует типизированный клиент этапных сервисов.
//
// Клиент владеет протоколом вызова этапа:
//   - статический реестр stage → endpoint, разрешаемый при старте
//   - per-call таймаут и дедлайн через context
//   - классификация ошибок (Unreachable/Timeout/InvalidResponse)
//   - retry с экспоненциальным backoff и jitter до потолка попыток
//
// Бизнес-отказ этапа (outcome REJECTED) — валидный результат,
// а не ошибка: клиент возвращает его как обычный StageResult.
package stageclient
