package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/audit"
)

// messageReader подмножество *kafka.Reader, используемое consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrBatchNotSaved пакет не сохранен после всех попыток, consumer остановлен
var ErrBatchNotSaved = errors.New("audit batch was not saved")

// BatchSaver сохраняет пакет записей аудита
type BatchSaver interface {
	SaveBatch(ctx context.Context, records []audit.Record) error
}

// Consumer Kafka consumer событий аудита
type Consumer struct {
	reader            messageReader
	storage           BatchSaver
	logger            *logrus.Logger
	batchSize         int
	workers           int
	flushInterval     time.Duration
	retryAttempts     int
	retryDelay        time.Duration
	maxProcessingTime time.Duration
	offsets           *offsetTracker

	// Остановка при потере пакета
	stopOnce sync.Once
	stopErr  error
	stop     context.CancelFunc

	// Статистика
	mu                sync.RWMutex
	messagesProcessed int64
	messagesFailed    int64
	byType            map[audit.EventType]int64
	startTime         time.Time
}

// Config конфигурация consumer
type Config struct {
	Brokers           []string
	Topic             string
	GroupID           string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	BatchSize         int
	Workers           int
	FlushInterval     time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	MaxProcessingTime time.Duration
}

// NewConsumer создает новый Kafka consumer
func NewConsumer(cfg *Config, storage BatchSaver, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		Logger:      kafka.LoggerFunc(logger.Debugf),
		ErrorLogger: kafka.LoggerFunc(logger.Errorf),
	})

	logger.Infof("Kafka consumer initialized: Topic=%s, GroupID=%s, Brokers=%v",
		cfg.Topic, cfg.GroupID, cfg.Brokers)

	return newConsumer(reader, cfg, storage, logger)
}

func newConsumer(reader messageReader, cfg *Config, storage BatchSaver, logger *logrus.Logger) *Consumer {
	maxProcessingTime := cfg.MaxProcessingTime
	if maxProcessingTime <= 0 {
		maxProcessingTime = 30 * time.Second
	}

	return &Consumer{
		reader:            reader,
		storage:           storage,
		logger:            logger,
		batchSize:         cfg.BatchSize,
		workers:           cfg.Workers,
		flushInterval:     cfg.FlushInterval,
		retryAttempts:     cfg.RetryAttempts,
		retryDelay:        cfg.RetryDelay,
		maxProcessingTime: maxProcessingTime,
		offsets:           newOffsetTracker(),
		stop:              func() {},
		byType:            make(map[audit.EventType]int64),
		startTime:         time.Now(),
	}
}

// Start запускает consumer и блокируется до отмены контекста. Возвращает
// ErrBatchNotSaved, если пакет не удалось сохранить: смещения после него не
// коммитятся, и после перезапуска сообщения будут прочитаны повторно
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.stop = cancel

	messages := make(chan kafka.Message, c.batchSize*2)

	// Запускаем воркеры для обработки
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.processMessages(ctx, messages, workerID)
		}(i)
	}

	go func() {
		defer close(messages)
		c.readMessages(ctx, messages)
	}()

	wg.Wait()

	if err := c.failure(); err != nil {
		c.logger.Errorf("Kafka consumer stopped: %v", err)
		return err
	}

	c.logger.Info("Kafka consumer stopped")
	return nil
}

// fail останавливает consumer после потери пакета
func (c *Consumer) fail(err error) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopErr = err
		c.mu.Unlock()
		c.stop()
	})
}

func (c *Consumer) failure() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopErr
}

// readMessages читает сообщения из Kafka
func (c *Consumer) readMessages(ctx context.Context, messages chan<- kafka.Message) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping message reading...")
				return
			}
			c.logger.Errorf("Failed to fetch message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.offsets.track(msg)

		select {
		case messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// processMessages обрабатывает сообщения из канала
func (c *Consumer) processMessages(ctx context.Context, messages <-chan kafka.Message, workerID int) {
	batch := make([]audit.Record, 0, c.batchSize)
	kafkaMessages := make([]kafka.Message, 0, c.batchSize)

	flush := func() {
		if len(batch) > 0 {
			if err := c.flushBatch(batch, kafkaMessages); err != nil {
				c.fail(err)
			}
			batch = batch[:0]
			kafkaMessages = kafkaMessages[:0]
		}
	}

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Сохраняем оставшиеся сообщения перед выходом
			flush()
			return

		case <-ticker.C:
			flush()

		case msg, ok := <-messages:
			if !ok {
				flush()
				return
			}

			record, err := c.parseMessage(msg)
			if err != nil {
				c.logger.Errorf("Worker %d: Failed to parse message: %v", workerID, err)
				c.incrementFailed()
				// Битое сообщение пропускается, чтобы не блокировать партицию
				if err := c.commit(msg); err != nil {
					c.logger.Errorf("Worker %d: Failed to commit failed message: %v", workerID, err)
				}
				continue
			}

			batch = append(batch, *record)
			kafkaMessages = append(kafkaMessages, msg)

			if len(batch) >= c.batchSize {
				flush()
			}
		}
	}
}

// parseMessage парсит сообщение из Kafka
func (c *Consumer) parseMessage(msg kafka.Message) (*audit.Record, error) {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("message has no event id or type")
	}

	record := audit.RecordFromEvent(event)
	return &record, nil
}

// flushBatch сохраняет пакет и коммитит смещения. Использует собственный контекст,
// чтобы последний пакет сохранялся и после отмены контекста consumer
func (c *Consumer) flushBatch(batch []audit.Record, messages []kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.maxProcessingTime)
	defer cancel()

	start := time.Now()

	var err error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		err = c.storage.SaveBatch(ctx, batch)
		if err == nil {
			break
		}

		c.logger.Warnf("Attempt %d/%d: Failed to save batch: %v", attempt+1, c.retryAttempts, err)

		if attempt < c.retryAttempts-1 {
			time.Sleep(c.retryDelay)
		}
	}

	if err != nil {
		// Смещения пакета не отмечаются обработанными, поэтому коммит партиции
		// не продвинется дальше первого несохраненного сообщения
		c.logger.Errorf("Failed to save batch after %d attempts: %v", c.retryAttempts, err)
		c.incrementFailedBy(int64(len(batch)))
		return fmt.Errorf("%w: %v", ErrBatchNotSaved, err)
	}

	c.recordProcessed(batch)

	if err := c.commitCompleted(ctx, messages...); err != nil {
		c.logger.Errorf("Failed to commit messages: %v", err)
	}

	duration := time.Since(start)
	c.logger.Infof("Flushed batch: size=%d, duration=%v, rate=%.2f msg/s",
		len(batch), duration, float64(len(batch))/duration.Seconds())
	return nil
}

func (c *Consumer) commit(msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.maxProcessingTime)
	defer cancel()
	return c.commitCompleted(ctx, msg)
}

// commitCompleted коммитит только непрерывный обработанный префикс каждой партиции
func (c *Consumer) commitCompleted(ctx context.Context, msgs ...kafka.Message) error {
	ready := c.offsets.complete(msgs...)
	if len(ready) == 0 {
		return nil
	}
	return c.reader.CommitMessages(ctx, ready...)
}

// recordProcessed обновляет счетчики обработанных событий
func (c *Consumer) recordProcessed(batch []audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messagesProcessed += int64(len(batch))
	for _, record := range batch {
		c.byType[record.Type]++
	}
}

// incrementFailed увеличивает счетчик неудачных сообщений
func (c *Consumer) incrementFailed() {
	c.incrementFailedBy(1)
}

func (c *Consumer) incrementFailedBy(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesFailed += n
}

// GetStatistics возвращает статистику обработки
func (c *Consumer) GetStatistics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	duration := time.Since(c.startTime)
	rate := float64(c.messagesProcessed) / duration.Seconds()

	byType := make(map[string]int64, len(c.byType))
	for eventType, count := range c.byType {
		byType[string(eventType)] = count
	}

	return map[string]interface{}{
		"messages_processed": c.messagesProcessed,
		"messages_failed":    c.messagesFailed,
		"processing_rate":    rate,
		"uptime_seconds":     duration.Seconds(),
		"by_type":            byType,
	}
}

// ReportStatistics периодически пишет статистику в лог до отмены контекста
func (c *Consumer) ReportStatistics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.logger.WithFields(logrus.Fields(c.GetStatistics())).Info("Consumer statistics")
		}
	}
}

// Close закрывает consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing Kafka consumer")
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
