package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gw-auth-service/internal/storages"
)

var _ storages.Storage = (*PostgresStorage)(nil)

const userColumns = `id, email, password_hash, name, phone_number, kyc_status, account_status, role, created_at, updated_at`

func scanUser(row rowScanner) (*storages.User, error) {
	var user storages.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Phone,
		&user.KYCStatus,
		&user.AccountStatus,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser создает нового пользователя; дубликат email возвращает ErrDuplicateEmail
func (s *PostgresStorage) CreateUser(ctx context.Context, user *storages.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, phone_number, kyc_status, account_status, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = storages.RoleUser
	}
	if user.AccountStatus == "" {
		user.AccountStatus = storages.AccountStatusActive
	}
	if user.KYCStatus == "" {
		user.KYCStatus = storages.KYCStatusPending
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Phone,
		user.KYCStatus,
		user.AccountStatus,
		user.Role,
		now,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return storages.ErrDuplicateEmail
		}
		s.logger.Errorf("Failed to create user: %v", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	s.logger.Infof("Created user: %s", user.ID)
	return nil
}

// FindUserByID возвращает пользователя по ID
func (s *PostgresStorage) FindUserByID(ctx context.Context, id uuid.UUID) (*storages.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get user by id: %v", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindUserByEmail возвращает пользователя по email
func (s *PostgresStorage) FindUserByEmail(ctx context.Context, email string) (*storages.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get user by email: %v", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser применяет патч; nil поля сохраняют текущее значение
func (s *PostgresStorage) UpdateUser(ctx context.Context, id uuid.UUID, patch storages.UserPatch) (*storages.User, error) {
	query := `
		UPDATE users SET
			name = COALESCE($1, name),
			phone_number = COALESCE($2, phone_number),
			account_status = COALESCE($3, account_status),
			role = COALESCE($4, role),
			kyc_status = COALESCE($5, kyc_status),
			updated_at = $6
		WHERE id = $7
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		patch.Name,
		patch.Phone,
		nullableString(patch.AccountStatus),
		nullableString(patch.Role),
		nullableString(patch.KYCStatus),
		time.Now().UTC(),
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to update user: %v", err)
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Debugf("Updated user %s", id)
	return user, nil
}

// FindUsers возвращает пользователей по фильтру
func (s *PostgresStorage) FindUsers(ctx context.Context, filter storages.UserFilter) ([]storages.User, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.AccountStatus != "" {
		args = append(args, filter.AccountStatus)
		conditions = append(conditions, fmt.Sprintf("account_status = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to query users: %v", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]storages.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// nullableString разыменовывает строковый тип-перечисление для COALESCE
func nullableString[T ~string](value *T) interface{} {
	if value == nil {
		return nil
	}
	return string(*value)
}
