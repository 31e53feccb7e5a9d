package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api"
	"gw-auth-service/internal/api/middleware"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/cache"
	"gw-auth-service/internal/config"
	internalgrpc "gw-auth-service/internal/grpc"
	"gw-auth-service/internal/issuer"
	"gw-auth-service/internal/kafka"
	"gw-auth-service/internal/logger"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/service"
	"gw-auth-service/internal/storages"
	"gw-auth-service/internal/storages/memory"
	"gw-auth-service/internal/storages/postgres"
)

// @title Auth Service API
// @version 1.0
// @description Authentication, user management, cards and transactions API
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /v1/api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

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
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := logger.New(cfg.Logger.Level)
	log.Info("Starting gw-auth-service...")
	log.Infof("Configuration loaded from: %s", *configPath)

	// run владеет всеми ресурсами, их defer выполняются до os.Exit
	if err := run(cfg, log); err != nil {
		log.Errorf("Service failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	storage, err := openStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storage.Close()

	// Проверка подключения к хранилищу
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = storage.Ping(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("storage ping failed: %w", err)
	}
	log.Infof("Storage %s is ready", cfg.Server.StorageDriver)

	statsCache, err := openStatsCache(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize stats cache: %w", err)
	}
	defer statsCache.Close()

	// Публикация событий аудита
	var publisher audit.Publisher = audit.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.LargeAmountThreshold, log)
	} else {
		log.Info("Kafka is disabled, audit events are not published")
	}
	defer publisher.Close()

	tokens := security.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, cfg.JWT.Leeway)
	authenticator := security.NewAuthenticator(tokens, storage, log)
	mockIssuer := issuer.NewMockIssuer(cfg.Cards.IssuerReviewThreshold, log)

	// Создание сервисного слоя
	authService, err := service.NewAuthService(
		storage,
		security.NewPasswordHasher(cfg.Password.BcryptCost),
		tokens,
		authenticator,
		publisher,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	services := api.Services{
		Auth:         authService,
		Users:        service.NewUserService(storage, publisher, log),
		Cards:        service.NewCardService(storage, mockIssuer, cfg.Cards.MaxActive, publisher, log),
		Transactions: service.NewTransactionService(storage, mockIssuer, statsCache, publisher, log),
	}
	log.Info("Services initialized")

	// Настройка роутера
	router := api.SetupRouter(services, middleware.NewAuthGuard(authenticator, log), storage, log, cfg.Server.GinMode)

	// Создание HTTP сервера
	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Создание gRPC сервера интроспекции токенов
	grpcLog := logger.WithComponent(log, "grpc")
	grpcSrv := internalgrpc.NewServer(authenticator, log)
	listener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to create gRPC listener: %w", err)
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 2)

	// Запуск HTTP сервера в горутине
	go func() {
		log.Infof("HTTP server is listening on port %s", cfg.Server.HTTPPort)
		log.Infof("Swagger documentation available at: http://localhost:%s/swagger/index.html", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// Запуск gRPC сервера в горутине
	go func() {
		grpcLog.Infof("gRPC server is listening on port %s", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(listener); err != nil {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// Ожидание сигнала завершения или падения сервера
	var runErr error
	select {
	case <-done:
		log.Info("Shutting down server...")
	case runErr = <-serveErr:
		log.Errorf("Server failed, shutting down: %v", runErr)
	}

	// Graceful shutdown с таймаутом
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	grpcSrv.GracefulStop()

	if runErr == nil {
		log.Info("Server stopped gracefully")
	}
	return runErr
}

// openStorage выбирает хранилище по STORAGE_DRIVER
func openStorage(cfg *config.Config, log *logrus.Logger) (storages.Storage, error) {
	if cfg.Server.StorageDriver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	dbConfig := &postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	storage, err := postgres.New(dbConfig, log)
	if err != nil {
		return nil, err
	}
	return storage, nil
}

// openStatsCache выбирает кеш статистики по CACHE_DRIVER
func openStatsCache(cfg *config.Config, log *logrus.Logger) (cache.StatsCache, error) {
	if cfg.Cache.Driver == config.CacheDriverRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisCache, err := cache.NewRedisStatsCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.StatsTTL, log)
		if err != nil {
			return nil, err
		}
		return redisCache, nil
	}

	log.Infof("Stats cache initialized in memory, ttl %s", cfg.Cache.StatsTTL)
	return cache.NewMemoryStatsCache(cfg.Cache.StatsTTL), nil
}
