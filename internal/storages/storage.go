package storages

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Ошибки хранилища, которые сервисный слой переводит в apperr
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrCardLimitReached  = errors.New("active card limit reached")
	ErrStatusConflict    = errors.New("status transition not allowed")
	ErrCardNotActive     = errors.New("card is not active")
	ErrOwnershipMismatch = errors.New("card does not belong to user")
	ErrCardHasHistory    = errors.New("card has transaction history")
	ErrBalanceOverflow   = errors.New("card balance limit exceeded")
	ErrValueOutOfRange   = errors.New("value does not fit storage column")
)

// UserStore хранилище учетных записей. Уникальность email гарантируется на уровне хранилища
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
	FindUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// CardStore хранилище карт
type CardStore interface {
	// CreateCardWithinLimit атомарно проверяет число активных карт владельца и создает карту
	CreateCardWithinLimit(ctx context.Context, card *Card, maxActive int) error
	FindCardByID(ctx context.Context, id uuid.UUID) (*Card, error)
	FindCardsByUserID(ctx context.Context, userID uuid.UUID) ([]Card, error)
	CountActiveCardsByUserID(ctx context.Context, userID uuid.UUID) (int, error)
	UpdateCard(ctx context.Context, id uuid.UUID, patch CardPatch) (*Card, error)
	// TransitionCardStatus меняет статус from -> to; при переходе в active соблюдает лимит
	TransitionCardStatus(ctx context.Context, id uuid.UUID, from, to CardStatus, maxActive int) (*Card, error)
	DeleteCard(ctx context.Context, id uuid.UUID) error
}

// TransactionStore хранилище транзакций
type TransactionStore interface {
	// CreateTransaction атомарно проверяет карту, сохраняет транзакцию и,
	// если она завершена, увеличивает баланс карты
	CreateTransaction(ctx context.Context, tx *Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]Transaction, error)
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	// SettleTransaction переводит pending транзакцию в конечный статус
	SettleTransaction(ctx context.Context, id uuid.UUID, status TransactionStatus) (*Transaction, error)
	// DeleteTransaction удаляет транзакцию, если она не завершена
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	StatsByUserID(ctx context.Context, userID uuid.UUID) (*TransactionStats, error)
}

// Storage объединяет все хранилища и управление соединением
type Storage interface {
	UserStore
	CardStore
	TransactionStore

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
