package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by parcel so per-parcel order
// is kept within a partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// NewKafkaPublisher returns an asynchronous writer: WriteMessages only
// enqueues, and delivery failures are logged from the completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		Async:                  true,
	}
	if logger != nil {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Failed to deliver kafka messages",
					zap.String("topic", topic),
					zap.Int("count", len(messages)),
					zap.Error(err),
				)
			}
		}
	}
	return &KafkaPublisher{writer: w}, nil
}

func newKafkaPublisherWithWriter(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := ev.ParcelID
	if key == "" {
		key = ev.UserID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
		Time: ev.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
