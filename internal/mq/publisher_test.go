package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Herald/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeSink struct {
	sent []published
	err  error
}

func (f *fakeSink) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func testPublisher(sink Sink) *Publisher {
	return NewPublisher(sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishExecution_Routing(t *testing.T) {
	tests := []struct {
		outcome domain.OutcomeKind
		key     RoutingKey
		msgType MessageType
	}{
		{domain.OutcomeExecuted, RoutingKeyExecuted, MessageTypeScheduleExecuted},
		{domain.OutcomeSkipped, RoutingKeyExecuted, MessageTypeScheduleExecuted},
		{domain.OutcomeFailed, RoutingKeyFailed, MessageTypeScheduleFailed},
		{domain.OutcomeAbandoned, RoutingKeyFailed, MessageTypeScheduleFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			sink := &fakeSink{}
			exec := domain.Execution{
				ScheduleID: uuid.New(),
				Action:     domain.ActionDigest,
				Surface:    domain.SurfacePoller,
				Outcome:    tt.outcome,
				At:         time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC),
			}

			if err := testPublisher(sink).PublishExecution(context.Background(), exec); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sink.sent) != 1 {
				t.Fatalf("expected 1 message, got %d", len(sink.sent))
			}

			got := sink.sent[0]
			if got.exchange != string(ExchangeSchedules) || got.key != string(tt.key) {
				t.Errorf("unexpected route %s/%s", got.exchange, got.key)
			}
			if got.msg.DeliveryMode != amqp.Persistent {
				t.Error("message should be persistent")
			}

			var msg struct {
				ID      string           `json:"id"`
				Type    MessageType      `json:"type"`
				Payload domain.Execution `json:"payload"`
			}
			if err := json.Unmarshal(got.msg.Body, &msg); err != nil {
				t.Fatalf("body is not json: %v", err)
			}
			if msg.Type != tt.msgType || msg.ID != got.msg.MessageId {
				t.Errorf("unexpected envelope %+v", msg)
			}
			if msg.Payload.ScheduleID != exec.ScheduleID || msg.Payload.Outcome != tt.outcome {
				t.Errorf("payload mismatch: %+v", msg.Payload)
			}
		})
	}
}

func TestPublishExecution_SinkError(t *testing.T) {
	sink := &fakeSink{err: ErrNoChannel}

	err := testPublisher(sink).PublishExecution(context.Background(), domain.Execution{Outcome: domain.OutcomeExecuted})
	if !errors.Is(err, ErrNoChannel) {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
}
