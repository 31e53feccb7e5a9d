package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Поддерживаемые драйверы хранилища и кеша
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Password PasswordConfig
	Cards    CardsConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	MongoDB  MongoDBConfig
	Notifier NotifierConfig
	Logger   LoggerConfig
}

// ServerConfig содержит конфигурацию HTTP и gRPC серверов
type ServerConfig struct {
	HTTPPort      string
	GRPCPort      string
	GinMode       string
	StorageDriver string
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig содержит конфигурацию токенов
type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// PasswordConfig содержит параметры хеширования паролей
type PasswordConfig struct {
	BcryptCost int
}

// CardsConfig содержит бизнес-ограничения по картам
type CardsConfig struct {
	MaxActive             int
	IssuerReviewThreshold float64
}

// CacheConfig содержит конфигурацию кеша статистики
type CacheConfig struct {
	Driver        string
	StatsTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// KafkaConfig содержит конфигурацию Kafka
type KafkaConfig struct {
	Enabled              bool
	Brokers              []string
	Topic                string
	GroupID              string
	LargeAmountThreshold float64
	MinBytes             int
	MaxBytes             int
	MaxWait              time.Duration
}

// MongoDBConfig содержит конфигурацию MongoDB
type MongoDBConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// NotifierConfig содержит параметры обработки событий аудита
type NotifierConfig struct {
	HTTPPort          string
	Workers           int
	BatchSize         int
	FlushInterval     time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	MaxProcessingTime time.Duration
	StatsInterval     time.Duration
}

// LoggerConfig содержит конфигурацию логгера
type LoggerConfig struct {
	Level string
}

// Load загружает конфигурацию из файла окружения
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	// Server
	cfg.Server.HTTPPort = getEnv("HTTP_PORT", DefaultHTTPPort)
	cfg.Server.GRPCPort = getEnv("GRPC_PORT", DefaultGRPCPort)
	cfg.Server.GinMode = getEnv("GIN_MODE", DefaultGinMode)
	cfg.Server.StorageDriver = getEnv("STORAGE_DRIVER", DefaultStorageDriver)

	// Database
	cfg.Database.Host = getEnv("DB_HOST", DefaultDBHost)
	cfg.Database.Port = getEnvInt("DB_PORT", DefaultDBPort)
	cfg.Database.User = getEnv("DB_USER", DefaultDBUser)
	cfg.Database.Password = getEnv("DB_PASSWORD", DefaultDBPassword)
	cfg.Database.DBName = getEnv("DB_NAME", DefaultDBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", DefaultDBSSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime)

	// JWT
	cfg.JWT.Secret = getEnv("JWT_SECRET", DefaultJWTSecret)
	cfg.JWT.AccessTTL = getEnvDuration("JWT_ACCESS_TTL", DefaultJWTAccessTTL)
	cfg.JWT.RefreshTTL = getEnvDuration("JWT_REFRESH_TTL", DefaultJWTRefreshTTL)
	cfg.JWT.Leeway = getEnvDuration("JWT_LEEWAY", DefaultJWTLeeway)

	// Password
	cfg.Password.BcryptCost = getEnvInt("BCRYPT_COST", DefaultBcryptCost)

	// Cards
	cfg.Cards.MaxActive = getEnvInt("CARDS_MAX_ACTIVE", DefaultCardsMaxActive)
	cfg.Cards.IssuerReviewThreshold = getEnvFloat("ISSUER_REVIEW_THRESHOLD", DefaultIssuerReviewThreshold)

	// Cache
	cfg.Cache.Driver = getEnv("CACHE_DRIVER", DefaultCacheDriver)
	cfg.Cache.StatsTTL = getEnvDuration("CACHE_STATS_TTL", DefaultCacheStatsTTL)
	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", DefaultRedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.Cache.RedisDB = getEnvInt("REDIS_DB", DefaultRedisDB)

	// Kafka
	cfg.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", DefaultKafkaEnabled)
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", DefaultKafkaBrokers))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", DefaultKafkaGroupID)
	cfg.Kafka.LargeAmountThreshold = getEnvFloat("KAFKA_LARGE_AMOUNT_THRESHOLD", DefaultKafkaLargeAmountThreshold)
	cfg.Kafka.MinBytes = getEnvInt("KAFKA_MIN_BYTES", DefaultKafkaMinBytes)
	cfg.Kafka.MaxBytes = getEnvInt("KAFKA_MAX_BYTES", DefaultKafkaMaxBytes)
	cfg.Kafka.MaxWait = getEnvDuration("KAFKA_MAX_WAIT", DefaultKafkaMaxWait)

	// MongoDB
	cfg.MongoDB.URI = getEnv("MONGO_URI", DefaultMongoURI)
	cfg.MongoDB.Database = getEnv("MONGO_DATABASE", DefaultMongoDatabase)
	cfg.MongoDB.Collection = getEnv("MONGO_COLLECTION", DefaultMongoCollection)
	cfg.MongoDB.Timeout = getEnvDuration("MONGO_TIMEOUT", DefaultMongoTimeout)
	cfg.MongoDB.MaxPoolSize = uint64(getEnvInt("MONGO_MAX_POOL_SIZE", DefaultMongoMaxPoolSize))
	cfg.MongoDB.MinPoolSize = uint64(getEnvInt("MONGO_MIN_POOL_SIZE", DefaultMongoMinPoolSize))

	// Notifier
	cfg.Notifier.HTTPPort = getEnv("NOTIFIER_HTTP_PORT", DefaultNotifierHTTPPort)
	cfg.Notifier.Workers = getEnvInt("NOTIFIER_WORKERS", DefaultNotifierWorkers)
	cfg.Notifier.BatchSize = getEnvInt("NOTIFIER_BATCH_SIZE", DefaultNotifierBatchSize)
	cfg.Notifier.FlushInterval = getEnvDuration("NOTIFIER_FLUSH_INTERVAL", DefaultNotifierFlushInterval)
	cfg.Notifier.RetryAttempts = getEnvInt("NOTIFIER_RETRY_ATTEMPTS", DefaultNotifierRetryAttempts)
	cfg.Notifier.RetryDelay = getEnvDuration("NOTIFIER_RETRY_DELAY", DefaultNotifierRetryDelay)
	cfg.Notifier.MaxProcessingTime = getEnvDuration("NOTIFIER_MAX_PROCESSING_TIME", DefaultNotifierMaxProcessingTime)
	cfg.Notifier.StatsInterval = getEnvDuration("NOTIFIER_STATS_INTERVAL", DefaultNotifierStatsInterval)

	// Logger
	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения типа float64
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool получает логическую переменную окружения
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения типа duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// splitList разбивает список брокеров по запятой
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate проверяет конфигурацию API сервиса
func (c *Config) Validate() error {
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	switch c.Server.StorageDriver {
	case StorageDriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %s", c.Server.StorageDriver)
	}

	if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.JWT.Leeway < 0 {
		return fmt.Errorf("JWT_LEEWAY must not be negative")
	}

	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.Cards.MaxActive <= 0 {
		return fmt.Errorf("CARDS_MAX_ACTIVE must be positive")
	}

	if c.Cache.Driver != CacheDriverMemory && c.Cache.Driver != CacheDriverRedis {
		return fmt.Errorf("unsupported CACHE_DRIVER: %s", c.Cache.Driver)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when KAFKA_ENABLED is set")
	}

	if err := c.validateLogger(); err != nil {
		return err
	}

	return nil
}

// ValidateNotifier проверяет конфигурацию сервиса уведомлений
func (c *Config) ValidateNotifier() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
		return fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP_ID are required")
	}

	if c.MongoDB.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}

	if c.Notifier.HTTPPort == "" {
		return fmt.Errorf("NOTIFIER_HTTP_PORT is required")
	}

	if c.Notifier.Workers <= 0 || c.Notifier.BatchSize <= 0 {
		return fmt.Errorf("NOTIFIER_WORKERS and NOTIFIER_BATCH_SIZE must be positive")
	}

	if c.Notifier.RetryAttempts <= 0 {
		return fmt.Errorf("NOTIFIER_RETRY_ATTEMPTS must be positive")
	}

	return c.validateLogger()
}

func (c *Config) validateLogger() error {
	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}
	return nil
}
