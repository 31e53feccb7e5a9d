// Package memory реализует storages.Storage в памяти процесса.
// Все операции выполняются под одним мьютексом, поэтому составные
// операции (лимит карт, баланс) атомарны так же, как в PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-auth-service/internal/storages"
)

var _ storages.Storage = (*Storage)(nil)

// Storage потокобезопасное хранилище в памяти
type Storage struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]*storages.User
	emailIndex   map[string]uuid.UUID
	cards        map[uuid.UUID]*storages.Card
	transactions map[uuid.UUID]*storages.Transaction
	now          func() time.Time
}

// New создает пустое хранилище
func New() *Storage {
	return &Storage{
		users:        make(map[uuid.UUID]*storages.User),
		emailIndex:   make(map[string]uuid.UUID),
		cards:        make(map[uuid.UUID]*storages.Card),
		transactions: make(map[uuid.UUID]*storages.Transaction),
		now:          time.Now,
	}
}

// Ping всегда успешен
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не освобождает
func (s *Storage) Close() error {
	return nil
}

// CreateUser создает пользователя; email уникален с учетом регистра
func (s *Storage) CreateUser(ctx context.Context, user *storages.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emailIndex[user.Email]; exists {
		return storages.ErrDuplicateEmail
	}

	now := s.now()
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
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.users[user.ID] = &stored
	s.emailIndex[user.Email] = user.ID
	return nil
}

// FindUserByID возвращает пользователя по ID
func (s *Storage) FindUserByID(ctx context.Context, id uuid.UUID) (*storages.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storages.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// FindUserByEmail возвращает пользователя по email
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*storages.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emailIndex[email]
	if !ok {
		return nil, storages.ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

// UpdateUser применяет патч к пользователю
func (s *Storage) UpdateUser(ctx context.Context, id uuid.UUID, patch storages.UserPatch) (*storages.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storages.ErrNotFound
	}

	if patch.Name != nil {
		user.Name = patch.Name
	}
	if patch.Phone != nil {
		user.Phone = patch.Phone
	}
	if patch.AccountStatus != nil {
		user.AccountStatus = *patch.AccountStatus
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.KYCStatus != nil {
		user.KYCStatus = *patch.KYCStatus
	}
	if !patch.IsEmpty() {
		user.UpdatedAt = s.now()
	}

	copied := *user
	return &copied, nil
}

// FindUsers возвращает пользователей по фильтру, новые первыми
func (s *Storage) FindUsers(ctx context.Context, filter storages.UserFilter) ([]storages.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storages.User, 0, len(s.users))
	for _, user := range s.users {
		if filter.AccountStatus != "" && user.AccountStatus != filter.AccountStatus {
			continue
		}
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		result = append(result, *user)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// countActiveLocked считает активные карты; вызывается под мьютексом
func (s *Storage) countActiveLocked(userID uuid.UUID) int {
	count := 0
	for _, card := range s.cards {
		if card.UserID == userID && card.Status == storages.CardStatusActive {
			count++
		}
	}
	return count
}

// CreateCardWithinLimit создает карту, если у владельца меньше maxActive активных карт
func (s *Storage) CreateCardWithinLimit(ctx context.Context, card *storages.Card, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[card.UserID]; !ok {
		return storages.ErrNotFound
	}

	if card.Status == "" {
		card.Status = storages.CardStatusActive
	}
	if card.Status == storages.CardStatusActive && s.countActiveLocked(card.UserID) >= maxActive {
		return storages.ErrCardLimitReached
	}

	now := s.now()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	card.CreatedAt = now
	card.UpdatedAt = now

	stored := *card
	s.cards[card.ID] = &stored
	return nil
}

// FindCardByID возвращает карту по ID
func (s *Storage) FindCardByID(ctx context.Context, id uuid.UUID) (*storages.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, storages.ErrNotFound
	}
	copied := *card
	return &copied, nil
}

// FindCardsByUserID возвращает карты пользователя, новые первыми
func (s *Storage) FindCardsByUserID(ctx context.Context, userID uuid.UUID) ([]storages.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storages.Card, 0)
	for _, card := range s.cards {
		if card.UserID == userID {
			result = append(result, *card)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CountActiveCardsByUserID считает только карты в статусе active
func (s *Storage) CountActiveCardsByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countActiveLocked(userID), nil
}

// UpdateCard применяет патч к карте
func (s *Storage) UpdateCard(ctx context.Context, id uuid.UUID, patch storages.CardPatch) (*storages.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, storages.ErrNotFound
	}

	if patch.Nickname != nil {
		card.Nickname = patch.Nickname
	}
	if patch.Status != nil {
		card.Status = *patch.Status
	}
	if !patch.IsEmpty() {
		card.UpdatedAt = s.now()
	}

	copied := *card
	return &copied, nil
}

// TransitionCardStatus меняет статус карты, сравнивая текущий с ожидаемым
func (s *Storage) TransitionCardStatus(ctx context.Context, id uuid.UUID, from, to storages.CardStatus, maxActive int) (*storages.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, storages.ErrNotFound
	}
	if card.Status != from {
		return nil, storages.ErrStatusConflict
	}
	if to == storages.CardStatusActive && s.countActiveLocked(card.UserID) >= maxActive {
		return nil, storages.ErrCardLimitReached
	}

	card.Status = to
	card.UpdatedAt = s.now()

	copied := *card
	return &copied, nil
}

// DeleteCard удаляет карту без истории транзакций
func (s *Storage) DeleteCard(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[id]; !ok {
		return storages.ErrNotFound
	}
	for _, tx := range s.transactions {
		if tx.CardID == id {
			return storages.ErrCardHasHistory
		}
	}

	delete(s.cards, id)
	return nil
}

// CreateTransaction сохраняет транзакцию и обновляет баланс карты в одной критической секции
func (s *Storage) CreateTransaction(ctx context.Context, tx *storages.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[tx.CardID]
	if !ok {
		return storages.ErrNotFound
	}
	if card.UserID != tx.UserID {
		return storages.ErrOwnershipMismatch
	}
	if card.Status != storages.CardStatusActive {
		return storages.ErrCardNotActive
	}
	if tx.Status == storages.TransactionStatusCompleted && overflows(card, tx.Amount) {
		return storages.ErrBalanceOverflow
	}

	now := s.now()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = now
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if tx.Status == storages.TransactionStatusCompleted {
		card.Balance = card.Balance.Add(tx.Amount)
		card.UpdatedAt = now
	}

	stored := *tx
	s.transactions[tx.ID] = &stored
	return nil
}

// overflows повторяет ограничение колонки current_balance
func overflows(card *storages.Card, amount decimal.Decimal) bool {
	return card.Balance.Add(amount).GreaterThanOrEqual(storages.BalanceLimit)
}

// FindTransactionByID возвращает транзакцию по ID
func (s *Storage) FindTransactionByID(ctx context.Context, id uuid.UUID) (*storages.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, storages.ErrNotFound
	}
	copied := *tx
	return &copied, nil
}

func matchTransaction(tx *storages.Transaction, filter storages.TransactionFilter) bool {
	if filter.Status != "" && tx.Status != filter.Status {
		return false
	}
	if filter.CardID != nil && tx.CardID != *filter.CardID {
		return false
	}
	if filter.StartDate != nil && tx.Timestamp.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && tx.Timestamp.After(*filter.EndDate) {
		return false
	}
	return true
}

func (s *Storage) selectTransactions(userID *uuid.UUID, filter storages.TransactionFilter) []storages.Transaction {
	result := make([]storages.Transaction, 0)
	for _, tx := range s.transactions {
		if userID != nil && tx.UserID != *userID {
			continue
		}
		if matchTransaction(tx, filter) {
			result = append(result, *tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// FindTransactionsByUserID возвращает транзакции пользователя по фильтру
func (s *Storage) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectTransactions(&userID, filter), nil
}

// FindTransactions возвращает транзакции всех пользователей
func (s *Storage) FindTransactions(ctx context.Context, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectTransactions(nil, filter), nil
}

// SettleTransaction завершает pending транзакцию; при completed увеличивает баланс
func (s *Storage) SettleTransaction(ctx context.Context, id uuid.UUID, status storages.TransactionStatus) (*storages.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, storages.ErrNotFound
	}
	if tx.Status != storages.TransactionStatusPending {
		return nil, storages.ErrStatusConflict
	}

	now := s.now()
	if status == storages.TransactionStatusCompleted {
		card, ok := s.cards[tx.CardID]
		if !ok {
			return nil, storages.ErrNotFound
		}
		if overflows(card, tx.Amount) {
			return nil, storages.ErrBalanceOverflow
		}
		card.Balance = card.Balance.Add(tx.Amount)
		card.UpdatedAt = now
	}

	tx.Status = status
	tx.UpdatedAt = now

	copied := *tx
	return &copied, nil
}

// DeleteTransaction удаляет незавершенную транзакцию
func (s *Storage) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return storages.ErrNotFound
	}
	if tx.Status == storages.TransactionStatusCompleted {
		return storages.ErrStatusConflict
	}

	delete(s.transactions, id)
	return nil
}

// StatsByUserID считает агрегаты по транзакциям пользователя
func (s *Storage) StatsByUserID(ctx context.Context, userID uuid.UUID) (*storages.TransactionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storages.TransactionStats{
		TotalAmount:   decimal.Zero,
		AverageAmount: decimal.Zero,
	}
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		stats.Total++
		stats.TotalAmount = stats.TotalAmount.Add(tx.Amount)
		switch tx.Status {
		case storages.TransactionStatusCompleted:
			stats.Completed++
		case storages.TransactionStatusPending:
			stats.Pending++
		case storages.TransactionStatusFailed:
			stats.Failed++
		case storages.TransactionStatusCancelled:
			stats.Cancelled++
		}
	}
	if stats.Total > 0 {
		stats.AverageAmount = stats.TotalAmount.Div(decimal.NewFromInt(stats.Total)).Round(2)
	}
	return stats, nil
}
