// Package orchestrator реализует движок обработки заявок.
//
// # Обзор
//
// Оркестратор двигает каждую заявку по конвейеру этапов строго по
// одному этапу за раз:
//
//   - Получает уведомления о готовых заявках из RabbitMQ (event-driven)
//   - Периодически опрашивает PENDING_* заявки в БД (polling fallback)
//   - Захватывает заявку в per-application набор активных (exactly one
//     in flight на заявку в пределах процесса)
//   - Перечитывает запись после захвата и вызывает этапный сервис
//   - Применяет переход состояния и сохраняет с проверкой версии
//
// Optimistic versioning в хранилище защищает от двойной обработки
// между несколькими экземплярами: проигравший гонку переход молча
// отбрасывается, выигравший уже сохранил эквивалентный результат.
package orchestrator
