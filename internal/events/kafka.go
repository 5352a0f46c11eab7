package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/papertrader/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events to a Kafka topic, keyed by user ID so a
// user's events stay ordered within a partition. Publishing happens in the
// background; failures are logged and dropped.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewKafkaPublisher creates a Publisher backed by a kafka-go writer.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *Publisher {
	return NewPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, timeout, logger)
}

func NewPublisher(w MessageWriter, timeout time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

// Publish writes one event synchronously.
func (p *Publisher) Publish(ctx context.Context, e OrderEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Data.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Event)},
		},
	})
}

func (p *Publisher) OrderCompleted(order *domain.Order, t *domain.Transaction) {
	p.publishAsync(NewOrderEvent(OrderCompleted, order, t, time.Now()))
}

func (p *Publisher) OrderFailed(order *domain.Order) {
	p.publishAsync(NewOrderEvent(OrderFailed, order, nil, time.Now()))
}

func (p *Publisher) OrderCancelled(order *domain.Order) {
	p.publishAsync(NewOrderEvent(OrderCancelled, order, nil, time.Now()))
}

func (p *Publisher) publishAsync(e OrderEvent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Publish(ctx, e); err != nil {
			p.logger.Warn("kafka publish failed",
				slog.String("event", e.Event),
				slog.String("order_id", e.Data.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close waits for in-flight publishes and closes the writer.
func (p *Publisher) Close() error {
	p.wg.Wait()
	return p.writer.Close()
}
