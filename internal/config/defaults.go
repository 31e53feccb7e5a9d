package config

import "time"

// Server defaults
const (
	DefaultHTTPPort      = "8080"
	DefaultGRPCPort      = "50051"
	DefaultGinMode       = "release"
	DefaultLogLevel      = "info"
	DefaultStorageDriver = StorageDriverPostgres
)

// Database defaults
const (
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "auth_user"
	DefaultDBPassword        = "auth_password"
	DefaultDBName            = "auth_db"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute
)

// JWT defaults
const (
	DefaultJWTSecret     = "change-me-in-production"
	DefaultJWTAccessTTL  = 15 * time.Minute
	DefaultJWTRefreshTTL = 7 * 24 * time.Hour
	DefaultJWTLeeway     = 30 * time.Second
)

// Password defaults
const (
	DefaultBcryptCost = 12
)

// Cards / issuer defaults
const (
	DefaultCardsMaxActive         = 5
	DefaultIssuerReviewThreshold = 10000.0
)

// Cache defaults
const (
	DefaultCacheDriver   = CacheDriverMemory
	DefaultCacheStatsTTL = 1 * time.Minute
	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisDB       = 0
)

// Kafka defaults
const (
	DefaultKafkaEnabled              = false
	DefaultKafkaBrokers              = "localhost:9092"
	DefaultKafkaTopic                = "auth-audit-events"
	DefaultKafkaGroupID              = "gw-auth-notifier"
	DefaultKafkaLargeAmountThreshold = 30000.0
	DefaultKafkaMinBytes             = 1
	DefaultKafkaMaxBytes             = 10e6
	DefaultKafkaMaxWait              = 500 * time.Millisecond
)

// MongoDB defaults
const (
	DefaultMongoURI         = "mongodb://localhost:27017"
	DefaultMongoDatabase    = "audit_db"
	DefaultMongoCollection  = "audit_events"
	DefaultMongoTimeout     = 10 * time.Second
	DefaultMongoMaxPoolSize = 100
	DefaultMongoMinPoolSize = 10
)

// Notifier defaults
const (
	DefaultNotifierHTTPPort          = "8081"
	DefaultNotifierWorkers           = 4
	DefaultNotifierBatchSize         = 100
	DefaultNotifierFlushInterval     = 5 * time.Second
	DefaultNotifierRetryAttempts     = 3
	DefaultNotifierRetryDelay        = 1 * time.Second
	DefaultNotifierMaxProcessingTime = 30 * time.Second
	DefaultNotifierStatsInterval     = 30 * time.Second
)
