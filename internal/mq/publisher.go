package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Herald/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeScheduleExecuted MessageType = "schedule.executed"
	MessageTypeScheduleFailed   MessageType = "schedule.failed"
)

// Message — конверт публикуемого события.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Sink принимает готовые AMQP-сообщения. Реализуется *Connection.
type Sink interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// Publisher публикует события выполнения в RabbitMQ.
type Publisher struct {
	conn   Sink
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn Sink, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.conn.Publish(ctx, string(exchange), string(routingKey), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
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
}

// PublishExecution публикует событие о выполнении расписания.
// FAILED и ABANDONED идут в schedule.failed, остальные в schedule.executed.
func (p *Publisher) PublishExecution(ctx context.Context, exec domain.Execution) error {
	msgType, key := MessageTypeScheduleExecuted, RoutingKeyExecuted
	if exec.Outcome == domain.OutcomeFailed || exec.Outcome == domain.OutcomeAbandoned {
		msgType, key = MessageTypeScheduleFailed, RoutingKeyFailed
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   exec,
		Timestamp: exec.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	return p.Publish(ctx, ExchangeSchedules, key, msg)
}
