package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"course-service/internal/metrics"

	"github.com/nats-io/nats.go"
)

const (
	driverName = "nats"

	HeaderKey       = "Course-Key"
	HeaderEventType = "Event-Type"
)

var ErrNotConnected = errors.New("nats connection is not open")

type Producer struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewProducer(url string, subject string, logger *slog.Logger, m *metrics.Metrics) (*Producer, error) {
	nc, err := nats.Connect(url,
		nats.Name("course-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("NATS producer initialized", "url", url, "subject", subject)

	return NewProducerWithConn(nc, subject, logger, m), nil
}

// NewProducerWithConn reuses an existing connection; Close will close it.
func NewProducerWithConn(nc *nats.Conn, subject string, logger *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		conn:    nc,
		subject: subject,
		logger:  logger,
		metrics: m,
	}
}

func (p *Producer) SendMessage(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	eventType := eventTypeOf(value)

	err := p.publish(key, eventType, value)
	p.metrics.RecordEventPublished(ctx, driverName, eventType, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to send message to NATS", "error", err, "subject", p.subject)
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject, "key", key, "type", eventType)
	return nil
}

func (p *Producer) publish(key, eventType string, value interface{}) error {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(HeaderKey, key)
	if eventType != "" {
		msg.Header.Set(HeaderEventType, eventType)
	}
	msg.Data = valueBytes

	return p.conn.PublishMsg(msg)
}

// HealthCheck reports whether the connection is usable.
func (p *Producer) HealthCheck(_ context.Context) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (p *Producer) Close() error {
	err := p.conn.FlushTimeout(5 * time.Second)
	p.conn.Close()
	return err
}

func eventTypeOf(value interface{}) string {
	if typed, ok := value.(interface{ EventType() string }); ok {
		return typed.EventType()
	}
	return ""
}
