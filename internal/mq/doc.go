// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - application.eligible      — заявка готова к следующему этапу
//   - application.transitioned  — сохранён переход состояния (аудит)
//
// Exchanges:
//   - loanflow.applications — события заявок
//   - loanflow.dlq          — dead letter queue
//
// Очередь — ускоритель, не источник истины: заявка, чьё уведомление
// потерялось, будет подхвачена polling-циклом оркестратора из БД.
package mq
