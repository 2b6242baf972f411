package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"course-service/internal/metrics"

	"github.com/IBM/sarama"
)

const driverName = "kafka"

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewProducer(brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer initialized", "brokers", brokers, "topic", topic)

	return NewProducerWithClient(producer, topic, logger, m), nil
}

// NewConfig is the producer configuration; SyncProducer requires Return.Successes.
func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "course-service"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_8_0_0
	return config
}

func NewProducerWithClient(producer sarama.SyncProducer, topic string, logger *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  m,
	}
}

func (p *Producer) SendMessage(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	eventType := eventTypeOf(value)

	valueBytes, err := json.Marshal(value)
	if err != nil {
		p.metrics.RecordEventPublished(ctx, driverName, eventType, time.Since(start), err)
		p.logger.ErrorContext(ctx, "failed to marshal message", "error", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(valueBytes),
	}
	if eventType != "" {
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventType)},
		}
	}

	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.RecordEventPublished(ctx, driverName, eventType, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to kafka", "error", err)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to kafka", "topic", p.topic, "partition", partition, "offset", offset, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

func eventTypeOf(value interface{}) string {
	if typed, ok := value.(interface{ EventType() string }); ok {
		return typed.EventType()
	}
	return ""
}
