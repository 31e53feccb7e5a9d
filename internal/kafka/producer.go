package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/audit"
)

// messageWriter подмножество *kafka.Writer, используемое producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer Kafka producer для отправки событий аудита
type Producer struct {
	writer    messageWriter
	threshold decimal.Decimal
	logger    *logrus.Logger
}

var _ audit.Publisher = (*Producer)(nil)

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string, topic string, threshold float64, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Асинхронная отправка для производительности
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger:  kafka.LoggerFunc(logger.Errorf),
	}

	logger.Infof("Kafka producer initialized for topic: %s", topic)

	return newProducer(writer, threshold, logger)
}

func newProducer(writer messageWriter, threshold float64, logger *logrus.Logger) *Producer {
	return &Producer{
		writer:    writer,
		threshold: decimal.NewFromFloat(threshold),
		logger:    logger,
	}
}

// Publish отправляет событие; суммы не ниже порога помечаются как крупные
func (p *Producer) Publish(ctx context.Context, event audit.Event) error {
	if event.Amount != nil && event.Amount.GreaterThanOrEqual(p.threshold) {
		event.Large = true
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Errorf("Failed to marshal Kafka message: %v", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Ключ по пользователю сохраняет порядок событий одного пользователя в партиции
	key := event.UserID
	if key == "" {
		key = string(event.Type)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.OccurredAt,
	})
	if err != nil {
		p.logger.Errorf("Failed to send message to Kafka: %v", err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debugf("Sent audit event to Kafka: Type=%s, Large=%v", event.Type, event.Large)
	return nil
}

// Close закрывает Kafka producer
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}
