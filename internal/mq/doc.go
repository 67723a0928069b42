// Package mq публикует события выполнения расписаний в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий выполнения
//
// Типы сообщений:
//   - schedule.executed — выполнение завершилось и продвинуло расписание
//   - schedule.failed   — выполнение завершилось ошибкой
//
// Exchanges:
//   - herald.schedules — события расписаний
//   - herald.dlq       — dead letter queue
//
// Публикация необязательна: без брокера движок работает только на polling.
package mq
