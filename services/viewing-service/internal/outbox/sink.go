package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/viewings/libs/kafkax"
	otelx "github.com/md-rashed-zaman/viewings/libs/otel"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Sink delivers one outbox record to a broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, rec Record) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each event type to its own topic, keyed by agent so one
// agent's events stay ordered on a partition.
type KafkaSink struct {
	writer      messageWriter
	topicPrefix string
}

func NewKafkaSink(brokers, topicPrefix string) *KafkaSink {
	return &KafkaSink{writer: kafkax.NewWriter(brokers), topicPrefix: topicPrefix}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, rec Record) error {
	msgCtx := otelx.ContextWithTraceParent(ctx, rec.Traceparent)
	meta := kafkax.EventMeta{EventID: rec.EventID, EventType: rec.EventType, AgentID: rec.AgentID}
	msg := kafka.Message{
		Topic:   kafkax.TopicFor(s.topicPrefix, rec.EventType),
		Key:     []byte(rec.AgentID),
		Value:   rec.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
	}
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes to a durable topic exchange with the event type as the
// routing key. Messages are persistent.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, rec Record) error {
	headers := amqp.Table{
		kafkax.HeaderEventID:   rec.EventID,
		kafkax.HeaderEventType: rec.EventType,
		kafkax.HeaderAgentID:   rec.AgentID,
	}
	if rec.Traceparent != "" {
		headers["traceparent"] = rec.Traceparent
	}
	return s.ch.PublishWithContext(ctx, s.exchange, rec.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.EventID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         rec.Payload,
	})
}

func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Ready reports whether the broker connection is still open.
func (s *AMQPSink) Ready(context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}
