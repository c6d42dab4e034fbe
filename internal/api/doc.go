// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go             — Handler с DI (store, publisher, logger)
//   - routes.go              — регистрация маршрутов
//   - middleware.go          — middleware (logging, recovery)
//   - response.go            — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                 — Data Transfer Objects (request/response)
//   - application_handler.go — обработчики для /applications
//
// API предоставляет REST endpoints для подачи заявок, просмотра
// состояния с историей переходов и операторских действий
// (retry для FAILED, abandon-override).
package api
