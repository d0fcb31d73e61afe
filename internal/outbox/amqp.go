package outbox

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/virtuepath/internal/outbox/domain"
	"go.uber.org/zap"
)

// AMQPSink publishes events to a durable topic exchange, routed by event type.
type AMQPSink struct {
	url      string
	exchange string
	log      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPSink(url, exchange string, log *zap.Logger) *AMQPSink {
	return &AMQPSink{url: url, exchange: exchange, log: log.Named("outbox.amqp")}
}

func (s *AMQPSink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		s.exchange,
		event.EventType,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID.String(),
			CorrelationId: event.CorrelationID,
			Type:          event.EventType,
			Timestamp:     event.CreatedAt,
			Body:          event.Payload,
		},
	)
	if err != nil {
		// drop the channel so the next attempt reconnects
		s.reset()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *AMQPSink) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	s.conn, s.ch = conn, ch
	s.log.Info("connected to broker", zap.String("exchange", s.exchange))
	return ch, nil
}

func (s *AMQPSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.ch, s.conn = nil, nil
}

// LogSink logs events instead of publishing them; used when no broker is
// configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("outbox.log")}
}

func (s *LogSink) Publish(_ context.Context, event domain.Event) error {
	s.log.Info("outbox event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.String("correlation_id", event.CorrelationID),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
