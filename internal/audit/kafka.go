package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event as a JSON message on one topic, keyed by
// user id so that the events of one account stay ordered.
type KafkaSink struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaSink dials nothing up front; kafka.Writer connects lazily.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return NewKafkaSinkWithWriter(w, topic, logger)
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter, topic string, logger *zap.Logger) (*KafkaSink, error) {
	if w == nil {
		return nil, errors.New("kafka audit sink requires a writer")
	}
	if topic == "" {
		return nil, errors.New("kafka audit sink requires a topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{writer: w, topic: topic, timeout: 5 * time.Second, logger: logger}, nil
}

// Emit runs on the dispatcher goroutine. Delivery errors are logged and the
// event is dropped.
func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("audit event encode failed", zap.String("event", event.EventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.PartitionKey()),
		Value: payload,
		Time:  event.Timestamp.UTC(),
	})
	if err != nil {
		s.logger.Warn("audit event publish failed", zap.String("event", event.EventType), zap.Error(err))
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
