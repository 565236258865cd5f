// internal/notifier/kafka.go
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recharge-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes notices keyed by order id.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter builds a synchronous writer so delivery errors reach the caller.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Notify(ctx context.Context, n *domain.SettlementNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.OrderID),
		Value: payload,
		Time:  n.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(n.EventType)},
			{Key: "event_id", Value: []byte(n.EventID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}
