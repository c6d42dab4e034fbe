package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeApplications Exchange = "loanflow.applications"
	ExchangeDLQ          Exchange = "loanflow.dlq"
)

// Queues — имена очередей.
const (
	// QueueApplicationsEligible — заявки, готовые к следующему этапу.
	// Потребитель: orchestrator. Публикуют: API (submit/retry),
	// orchestrator (requeue) и scheduler (retry sweep).
	QueueApplicationsEligible Queue = "applications.eligible"

	// QueueApplicationsEvents — аудит переходов состояния.
	// Потребителей внутри системы нет, очередь для внешних подписчиков.
	QueueApplicationsEvents Queue = "applications.events"

	// QueueDLQApplications — сообщения, не обработанные после requeue.
	QueueDLQApplications Queue = "dlq.applications"
)

// Routing keys.
const (
	RoutingKeyEligible        RoutingKey = "eligible"
	RoutingKeyEvents          RoutingKey = "events"
	RoutingKeyDLQApplications RoutingKey = "applications"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентно: все declare повторяемы.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeApplications, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQApplications),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// eligible — с DLQ: необработанное уведомление уходит в dlq,
		// сама заявка остаётся в БД и будет подхвачена polling'ом.
		{QueueApplicationsEligible, dlqArgs},

		// events — аудит без DLQ.
		{QueueApplicationsEvents, nil},

		{QueueDLQApplications, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueApplicationsEligible, RoutingKeyEligible, ExchangeApplications},
		{QueueApplicationsEvents, RoutingKeyEvents, ExchangeApplications},
		{QueueDLQApplications, RoutingKeyDLQApplications, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Loanflow RabbitMQ Topology:

    loanflow.applications (direct)
    ├── applications.eligible [routing: eligible]
    │       Consumer: Orchestrator
    │       DLQ: dlq.applications
    └── applications.events [routing: events]
            External subscribers (audit)

    loanflow.dlq (direct)
    └── dlq.applications [routing: applications]
            Manual processing
  `
}
