package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-auth-service/internal/storages"
)

const transactionColumns = `id, user_id, card_id, amount, currency, merchant_name, merchant_category,
	transaction_type, status, description, timestamp, created_at, updated_at`

func scanTransaction(row rowScanner) (*storages.Transaction, error) {
	var tx storages.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.CardID,
		&tx.Amount,
		&tx.Currency,
		&tx.MerchantName,
		&tx.MerchantCategory,
		&tx.Type,
		&tx.Status,
		&tx.Description,
		&tx.Timestamp,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// CreateTransaction выполняет вставку транзакции и обновление баланса карты атомарно
func (s *PostgresStorage) CreateTransaction(ctx context.Context, t *storages.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Errorf("Failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Блокируем карту и проверяем владельца и статус
	var (
		ownerID uuid.UUID
		status  storages.CardStatus
	)
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, card_status FROM cards WHERE id = $1 FOR UPDATE`, t.CardID,
	).Scan(&ownerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return storages.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock card: %w", err)
	}
	if ownerID != t.UserID {
		return storages.ErrOwnershipMismatch
	}
	if status != storages.CardStatusActive {
		return storages.ErrCardNotActive
	}

	// 2. Создаем запись о транзакции
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, card_id, amount, currency, merchant_name, merchant_category,
			transaction_type, status, description, timestamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`,
		t.ID,
		t.UserID,
		t.CardID,
		t.Amount,
		t.Currency,
		t.MerchantName,
		t.MerchantCategory,
		t.Type,
		t.Status,
		t.Description,
		t.Timestamp,
		now,
	)
	if err != nil {
		s.logger.Errorf("Failed to create transaction record: %v", err)
		return insertError(err)
	}

	// 3. Завершенная транзакция сразу увеличивает баланс
	if t.Status == storages.TransactionStatusCompleted {
		if err := applyBalance(ctx, tx, t.CardID, t.Amount, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Errorf("Failed to commit transaction: %v", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.CreatedAt = now
	t.UpdatedAt = now

	s.logger.Infof("Created transaction: ID=%s, Card=%s, Status=%s", t.ID, t.CardID, t.Status)
	return nil
}

func applyBalance(ctx context.Context, tx *sql.Tx, cardID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE cards SET current_balance = current_balance + $1, updated_at = $2
		WHERE id = $3
	`, amount, now, cardID)
	if err != nil {
		return balanceError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storages.ErrNotFound
	}
	return nil
}

// insertError переводит ошибки ограничений колонок в storages.ErrValueOutOfRange
func insertError(err error) error {
	switch pqCode(err) {
	case pqNumericOutOfRange, pqStringTooLong:
		return fmt.Errorf("%w: %v", storages.ErrValueOutOfRange, err)
	}
	return fmt.Errorf("failed to create transaction: %w", err)
}

// balanceError переводит переполнение NUMERIC(20,2) в storages.ErrBalanceOverflow
func balanceError(err error) error {
	if pqCode(err) == pqNumericOutOfRange {
		return fmt.Errorf("%w: %v", storages.ErrBalanceOverflow, err)
	}
	return fmt.Errorf("failed to update card balance: %w", err)
}

// FindTransactionByID возвращает транзакцию по ID
func (s *PostgresStorage) FindTransactionByID(ctx context.Context, id uuid.UUID) (*storages.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get transaction: %v", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// FindTransactionsByUserID возвращает транзакции пользователя по фильтру
func (s *PostgresStorage) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	return s.queryTransactions(ctx, &userID, filter)
}

// FindTransactions возвращает транзакции всех пользователей
func (s *PostgresStorage) FindTransactions(ctx context.Context, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	return s.queryTransactions(ctx, nil, filter)
}

// buildTransactionQuery собирает SELECT по фильтру с позиционными параметрами
func buildTransactionQuery(userID *uuid.UUID, filter storages.TransactionFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if userID != nil {
		add("user_id = $%d", *userID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.CardID != nil {
		add("card_id = $%d", *filter.CardID)
	}
	if filter.StartDate != nil {
		add("timestamp >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("timestamp <= $%d", *filter.EndDate)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *PostgresStorage) queryTransactions(ctx context.Context, userID *uuid.UUID, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	query, args := buildTransactionQuery(userID, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to query transactions: %v", err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]storages.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			s.logger.Errorf("Failed to scan transaction: %v", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// SettleTransaction переводит pending транзакцию в конечный статус вместе с балансом
func (s *PostgresStorage) SettleTransaction(ctx context.Context, id uuid.UUID, status storages.TransactionStatus) (*storages.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	if current.Status != storages.TransactionStatusPending {
		return nil, storages.ErrStatusConflict
	}

	now := time.Now().UTC()
	if status == storages.TransactionStatusCompleted {
		if err := applyBalance(ctx, tx, current.CardID, current.Amount, now); err != nil {
			return nil, err
		}
	}

	settled, err := scanTransaction(tx.QueryRowContext(ctx, `
		UPDATE transactions SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+transactionColumns,
		status, now, id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Errorf("Failed to commit transaction: %v", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Transaction %s settled as %s", id, status)
	return settled, nil
}

// DeleteTransaction удаляет транзакцию, если она не завершена
func (s *PostgresStorage) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND status <> $2`,
		id, storages.TransactionStatusCompleted,
	)
	if err != nil {
		s.logger.Errorf("Failed to delete transaction: %v", err)
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Строка не удалена: либо ее нет, либо она завершена
	if _, err := s.FindTransactionByID(ctx, id); err != nil {
		return err
	}
	return storages.ErrStatusConflict
}

// StatsByUserID считает агрегаты по транзакциям пользователя
func (s *PostgresStorage) StatsByUserID(ctx context.Context, userID uuid.UUID) (*storages.TransactionStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(amount), 0),
			COALESCE(ROUND(AVG(amount), 2), 0)
		FROM transactions
		WHERE user_id = $1
	`

	var stats storages.TransactionStats
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.Total,
		&stats.Completed,
		&stats.Pending,
		&stats.Failed,
		&stats.Cancelled,
		&stats.TotalAmount,
		&stats.AverageAmount,
	)
	if err != nil {
		s.logger.Errorf("Failed to get transaction stats: %v", err)
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}

	return &stats, nil
}
