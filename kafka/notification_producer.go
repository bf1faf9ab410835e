package kafka

import (
	"context"
	"encoding/json"

	"commerce-engine/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotifierAPI is the operator-notification sink. Publishing is best-effort:
// callers log failures but never fail the triggering operation on them.
type NotifierAPI interface {
	Notify(ctx context.Context, notification models.OperatorNotification) error
}

// NotificationProducer publishes operator notifications to the admin
// notifications topic.
type NotificationProducer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewNotificationProducer(brokers []string, topic string, logger *zap.Logger) *NotificationProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("Kafka notification producer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return &NotificationProducer{writer: w, topic: topic, logger: logger}
}

func (p *NotificationProducer) Notify(ctx context.Context, notification models.OperatorNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(notification.Type),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish operator notification",
			zap.String("type", notification.Type),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("Operator notification published",
		zap.String("type", notification.Type),
		zap.String("severity", notification.Severity),
	)
	return nil
}

func (p *NotificationProducer) Close() {
	_ = p.writer.Close()
	p.logger.Info("Kafka notification producer closed")
}
