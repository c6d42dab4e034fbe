// Package telemetry обеспечивает наблюдаемость конвейера заявок.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (вызовы этапов, переходы,
//     конфликты версий, активные заявки, плановые ретраи)
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
