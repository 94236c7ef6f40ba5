package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes booking notifications as JSON, keyed by booking id
// so every message of a booking lands on the same partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: writer, topic: topic, logger: logger}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n booking.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.BookingID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", n.Type, k.topic, err)
	}

	k.logger.Debug("notification published",
		zap.String("topic", k.topic),
		zap.String("type", n.Type),
		zap.String("booking_id", n.BookingID.String()),
	)
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
