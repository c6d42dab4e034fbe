package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeApplicationEligible     MessageType = "application.eligible"
	MessageTypeApplicationTransitioned MessageType = "application.transitioned"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ApplicationEligiblePayload — заявка готова к обработке оркестратором.
//
// Несёт только идентификатор: оркестратор всегда перечитывает заявку
// из БД после захвата, состояние в сообщении устарело бы мгновенно.
type ApplicationEligiblePayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
}

// ApplicationTransitionedPayload — аудит сохранённого перехода.
type ApplicationTransitionedPayload struct {
	ApplicationID uuid.UUID `json:"application_id"`
	From          string    `json:"from"`
	Completed     string    `json:"completed,omitempty"`
	To            string    `json:"to"`
	Outcome       string    `json:"outcome,omitempty"`
	Version       int64     `json:"version"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishApplicationEligible публикует уведомление о заявке,
// готовой к следующему этапу. Потребитель: Orchestrator.
func (p *Publisher) PublishApplicationEligible(ctx context.Context, applicationID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeApplicationEligible,
		Payload:   ApplicationEligiblePayload{ApplicationID: applicationID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeApplications, RoutingKeyEligible, msg)
}

// PublishApplicationTransitioned публикует аудит-событие перехода.
func (p *Publisher) PublishApplicationTransitioned(ctx context.Context, payload ApplicationTransitionedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeApplicationTransitioned,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeApplications, RoutingKeyEvents, msg)
}
