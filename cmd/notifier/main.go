package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api"
	"gw-auth-service/internal/audit/mongodb"
	"gw-auth-service/internal/config"
	"gw-auth-service/internal/kafka"
	"gw-auth-service/internal/logger"
	"gw-auth-service/pkg"
)

func main() {
	// Парсинг флагов командной строки
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Валидация конфигурации
	if err := cfg.ValidateNotifier(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := logger.New(cfg.Logger.Level)
	log.Info("Starting gw-auth-notifier service...")
	log.Infof("Configuration loaded from: %s", *configPath)

	if err := run(cfg, log); err != nil {
		log.Errorf("Service failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	// Подключение к MongoDB
	mongoConfig := &mongodb.Config{
		URI:         cfg.MongoDB.URI,
		Database:    cfg.MongoDB.Database,
		Collection:  cfg.MongoDB.Collection,
		Timeout:     cfg.MongoDB.Timeout,
		MaxPoolSize: cfg.MongoDB.MaxPoolSize,
		MinPoolSize: cfg.MongoDB.MinPoolSize,
	}

	storage, err := mongodb.New(mongoConfig, log)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		storage.Close(ctx)
	}()

	// Создание Kafka consumer
	kafkaConfig := &kafka.Config{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		GroupID:           cfg.Kafka.GroupID,
		MinBytes:          cfg.Kafka.MinBytes,
		MaxBytes:          cfg.Kafka.MaxBytes,
		MaxWait:           cfg.Kafka.MaxWait,
		BatchSize:         cfg.Notifier.BatchSize,
		Workers:           cfg.Notifier.Workers,
		FlushInterval:     cfg.Notifier.FlushInterval,
		RetryAttempts:     cfg.Notifier.RetryAttempts,
		RetryDelay:        cfg.Notifier.RetryDelay,
		MaxProcessingTime: cfg.Notifier.MaxProcessingTime,
	}

	consumer := kafka.NewConsumer(kafkaConfig, storage, log)
	defer consumer.Close()

	// Служебный HTTP сервер
	statusSrv := &http.Server{
		Addr:         ":" + cfg.Notifier.HTTPPort,
		Handler:      api.SetupStatusRouter(storage, consumer, log, cfg.Server.GinMode),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов завершения
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Запуск consumer в горутине
	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()

	go consumer.ReportStatistics(ctx, cfg.Notifier.StatsInterval)

	go func() {
		log.Infof("Status server is listening on port %s", cfg.Notifier.HTTPPort)
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Status server failed: %v", err)
		}
	}()

	log.Info("Service is running. Press Ctrl+C to stop...")

	// Ожидание сигнала завершения или остановки consumer
	var runErr error
	consumerDone := false
	select {
	case <-sigChan:
		log.Info("Received shutdown signal...")
	case runErr = <-consumerErr:
		consumerDone = true
		if runErr != nil {
			log.Errorf("Consumer error: %v", runErr)
		}
	}

	// Graceful shutdown
	log.Info("Shutting down service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Notifier.MaxProcessingTime)
	defer shutdownCancel()

	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Status server forced to shutdown: %v", err)
	}

	// Ждем завершения consumer
	if !consumerDone {
		select {
		case <-shutdownCtx.Done():
			log.Warn("Shutdown timeout exceeded, forcing exit")
		case err := <-consumerErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("Consumer shutdown error: %v", err)
				runErr = err
			}
		}
	}

	printFinalStatistics(log, consumer, storage)

	if runErr == nil {
		log.Info("Service stopped gracefully")
	}
	return runErr
}

// printFinalStatistics выводит итоговую статистику перед завершением
func printFinalStatistics(log *logrus.Logger, consumer *kafka.Consumer, storage *mongodb.MongoStorage) {
	consumerStats := consumer.GetStatistics()
	uptime, _ := consumerStats["uptime_seconds"].(float64)

	fields := logrus.Fields{
		"messages_processed": consumerStats["messages_processed"],
		"messages_failed":    consumerStats["messages_failed"],
		"uptime":             pkg.FormatUptime(time.Duration(uptime * float64(time.Second))),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, err := storage.Statistics(ctx)
	if err != nil {
		log.Warnf("Failed to get final storage statistics: %v", err)
	} else {
		fields["stored_total"] = stored.TotalProcessed
		fields["stored_large"] = stored.TotalLarge
	}

	log.WithFields(fields).Info("Final statistics")
}
