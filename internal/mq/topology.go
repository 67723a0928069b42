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
	ExchangeSchedules Exchange = "herald.schedules"
	ExchangeDLQ       Exchange = "herald.dlq"
)

// Queues — имена очередей.
const (
	QueueSchedulesExecuted Queue = "schedules.executed"
	QueueSchedulesFailed   Queue = "schedules.failed"
	QueueDLQSchedules      Queue = "dlq.schedules"
)

// Routing keys.
const (
	RoutingKeyExecuted     RoutingKey = "schedule.executed"
	RoutingKeyFailed       RoutingKey = "schedule.failed"
	RoutingKeyDLQSchedules RoutingKey = "schedules"
)

// SetupTopology объявляет обменники и очереди. Операция идемпотентна.
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

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeSchedules, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Неразобранные ошибки уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQSchedules),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueSchedulesExecuted, nil},
		{QueueSchedulesFailed, dlqArgs},
		{QueueDLQSchedules, nil},
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

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueSchedulesExecuted, RoutingKeyExecuted, ExchangeSchedules},
		{QueueSchedulesFailed, RoutingKeyFailed, ExchangeSchedules},
		{QueueDLQSchedules, RoutingKeyDLQSchedules, ExchangeDLQ},
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
  Herald RabbitMQ Topology:

    herald.schedules (direct)
    ├── schedules.executed [routing: schedule.executed]
    └── schedules.failed   [routing: schedule.failed]
            DLQ: dlq.schedules

    herald.dlq (direct)
    └── dlq.schedules [routing: schedules]
            Manual processing
  `
}
