package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gw-auth-service/internal/storages"
)

const cardColumns = `id, user_id, card_token, last_four, card_brand, expiry_month, expiry_year,
	card_status, current_balance, currency, card_nickname, created_at, updated_at`

func scanCard(row rowScanner) (*storages.Card, error) {
	var card storages.Card
	err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.CardToken,
		&card.LastFour,
		&card.Brand,
		&card.ExpiryMonth,
		&card.ExpiryYear,
		&card.Status,
		&card.Balance,
		&card.Currency,
		&card.Nickname,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// lockUser блокирует строку владельца, сериализуя операции, влияющие на лимит активных карт
func lockUser(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storages.ErrNotFound
	}
	return err
}

func countActiveCards(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, userID uuid.UUID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE user_id = $1 AND card_status = $2`,
		userID, storages.CardStatusActive,
	).Scan(&count)
	return count, err
}

// CreateCardWithinLimit проверяет лимит и создает карту в одной транзакции
func (s *PostgresStorage) CreateCardWithinLimit(ctx context.Context, card *storages.Card, maxActive int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Errorf("Failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Блокируем владельца
	if err := lockUser(ctx, tx, card.UserID); err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to lock user: %w", err)
	}

	if card.Status == "" {
		card.Status = storages.CardStatusActive
	}

	// 2. Проверяем лимит активных карт
	if card.Status == storages.CardStatusActive {
		count, err := countActiveCards(ctx, tx, card.UserID)
		if err != nil {
			return fmt.Errorf("failed to count active cards: %w", err)
		}
		if count >= maxActive {
			return storages.ErrCardLimitReached
		}
	}

	// 3. Создаем карту
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, user_id, card_token, last_four, card_brand, expiry_month, expiry_year,
			card_status, current_balance, currency, card_nickname, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`,
		card.ID,
		card.UserID,
		card.CardToken,
		card.LastFour,
		card.Brand,
		card.ExpiryMonth,
		card.ExpiryYear,
		card.Status,
		card.Balance,
		card.Currency,
		card.Nickname,
		now,
	)
	if err != nil {
		s.logger.Errorf("Failed to create card: %v", err)
		return fmt.Errorf("failed to create card: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Errorf("Failed to commit transaction: %v", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	card.CreatedAt = now
	card.UpdatedAt = now

	s.logger.Infof("Created card: ID=%s, User=%s", card.ID, card.UserID)
	return nil
}

// FindCardByID возвращает карту по ID
func (s *PostgresStorage) FindCardByID(ctx context.Context, id uuid.UUID) (*storages.Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get card: %v", err)
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// FindCardsByUserID возвращает карты пользователя
func (s *PostgresStorage) FindCardsByUserID(ctx context.Context, userID uuid.UUID) ([]storages.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		s.logger.Errorf("Failed to query cards: %v", err)
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := make([]storages.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}

	return cards, nil
}

// CountActiveCardsByUserID считает только карты в статусе active
func (s *PostgresStorage) CountActiveCardsByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := countActiveCards(ctx, s.db, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active cards: %w", err)
	}
	return count, nil
}

// UpdateCard применяет патч к карте
func (s *PostgresStorage) UpdateCard(ctx context.Context, id uuid.UUID, patch storages.CardPatch) (*storages.Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, `
		UPDATE cards SET
			card_nickname = COALESCE($1, card_nickname),
			card_status = COALESCE($2, card_status),
			updated_at = $3
		WHERE id = $4
		RETURNING `+cardColumns,
		patch.Nickname,
		nullableString(patch.Status),
		time.Now().UTC(),
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to update card: %v", err)
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	return card, nil
}

// TransitionCardStatus меняет статус from -> to под блокировкой строки карты
func (s *PostgresStorage) TransitionCardStatus(ctx context.Context, id uuid.UUID, from, to storages.CardStatus, maxActive int) (*storages.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		ownerID uuid.UUID
		current storages.CardStatus
	)
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, card_status FROM cards WHERE id = $1 FOR UPDATE`, id,
	).Scan(&ownerID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock card: %w", err)
	}

	if current != from {
		return nil, storages.ErrStatusConflict
	}

	if to == storages.CardStatusActive {
		if err := lockUser(ctx, tx, ownerID); err != nil {
			return nil, fmt.Errorf("failed to lock user: %w", err)
		}
		count, err := countActiveCards(ctx, tx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to count active cards: %w", err)
		}
		if count >= maxActive {
			return nil, storages.ErrCardLimitReached
		}
	}

	card, err := scanCard(tx.QueryRowContext(ctx, `
		UPDATE cards SET card_status = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+cardColumns,
		to, time.Now().UTC(), id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update card status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Errorf("Failed to commit transaction: %v", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Card %s status changed: %s -> %s", id, from, to)
	return card, nil
}

// DeleteCard удаляет карту; внешний ключ транзакций запрещает удаление карты с историей
func (s *PostgresStorage) DeleteCard(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return storages.ErrCardHasHistory
		}
		s.logger.Errorf("Failed to delete card: %v", err)
		return fmt.Errorf("failed to delete card: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storages.ErrNotFound
	}

	s.logger.Infof("Deleted card %s", id)
	return nil
}
