package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Коды ошибок PostgreSQL
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqNumericOutOfRange   = "22003"
	pqStringTooLong       = "22001"
)

// Config содержит конфигурацию для подключения к PostgreSQL
type Config struct {
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

// PostgresStorage реализует интерфейс Storage для PostgreSQL
type PostgresStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

// New создает новое подключение к PostgreSQL
func New(cfg *Config, logger *logrus.Logger) (*PostgresStorage, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	storage := &PostgresStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema создает необходимые таблицы, если они не существуют
func (s *PostgresStorage) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255),
		phone_number VARCHAR(32),
		kyc_status VARCHAR(20) NOT NULL DEFAULT 'pending'
			CHECK (kyc_status IN ('pending', 'verified', 'rejected')),
		account_status VARCHAR(20) NOT NULL DEFAULT 'active'
			CHECK (account_status IN ('active', 'suspended', 'deleted')),
		role VARCHAR(20) NOT NULL DEFAULT 'user'
			CHECK (role IN ('user', 'admin')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cards (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		card_token VARCHAR(255) NOT NULL,
		last_four CHAR(4) NOT NULL,
		card_brand VARCHAR(20) NOT NULL,
		expiry_month INTEGER NOT NULL CHECK (expiry_month BETWEEN 1 AND 12),
		expiry_year INTEGER NOT NULL,
		card_status VARCHAR(20) NOT NULL DEFAULT 'active'
			CHECK (card_status IN ('active', 'inactive', 'frozen', 'expired')),
		current_balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (current_balance >= 0),
		currency VARCHAR(3) NOT NULL,
		card_nickname VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		card_id UUID NOT NULL REFERENCES cards(id) ON DELETE RESTRICT,
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(3) NOT NULL CHECK (currency IN ('USD', 'EUR', 'CFA')),
		merchant_name VARCHAR(255) NOT NULL,
		merchant_category VARCHAR(100),
		transaction_type VARCHAR(20) NOT NULL
			CHECK (transaction_type IN ('payment', 'refund', 'chargeback')),
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'completed', 'failed', 'cancelled')),
		description TEXT,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cards_user_status ON cards(user_id, card_status);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(card_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Database schema initialized")
	return nil
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		s.logger.Info("Closing database connection")
		return s.db.Close()
	}
	return nil
}

// Ping проверяет соединение с базой данных
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// pqCode возвращает код ошибки PostgreSQL, если он есть
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
