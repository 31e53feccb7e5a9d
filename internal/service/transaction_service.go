package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/cache"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
	"gw-auth-service/pkg"
)

// Сообщения транзакций
const (
	MsgTransactionNotFound    = "Transaction not found"
	MsgCompletedNotDeletable  = "Cannot delete completed transactions"
	MsgCardNotActive          = "Card is not active"
	MsgBalanceLimitExceeded   = "Card balance limit exceeded"
	maxMerchantNameLength     = 255
	maxMerchantCategoryLength = 100
	maxTransactionDescription = 1000
)

// PaymentAuthorizer решает, в каком статусе создается платеж
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, amount decimal.Decimal) (storages.TransactionStatus, error)
}

// TransactionStorage хранилища, нужные сервису транзакций
type TransactionStorage interface {
	storages.CardStore
	storages.TransactionStore
}

// CreateTransactionInput параметры новой транзакции
type CreateTransactionInput struct {
	CardID           uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	MerchantName     string
	MerchantCategory *string
	Type             storages.TransactionType
	Description      *string
}

// TransactionService управляет транзакциями с проверкой владельца
type TransactionService struct {
	store      TransactionStorage
	authorizer PaymentAuthorizer
	stats      *cache.VersionedStatsCache
	events     eventSink
	logger     *logrus.Logger
}

// NewTransactionService создает сервис транзакций
func NewTransactionService(
	store TransactionStorage,
	authorizer PaymentAuthorizer,
	stats cache.StatsCache,
	publisher audit.Publisher,
	logger *logrus.Logger,
) *TransactionService {
	return &TransactionService{
		store:      store,
		authorizer: authorizer,
		stats:      cache.NewVersionedStatsCache(stats),
		events:     eventSink{publisher: publisher, logger: logger},
		logger:     logger,
	}
}

func (in *CreateTransactionInput) validate() error {
	var details []string

	if in.CardID == uuid.Nil {
		details = append(details, "Card ID is required")
	}
	if err := pkg.ValidateAmount(in.Amount); err != nil {
		details = append(details, err.Error())
	}
	in.Currency = pkg.NormalizeCurrency(in.Currency)
	if err := pkg.ValidateCurrency(in.Currency); err != nil {
		details = append(details, err.Error())
	}
	in.MerchantName = strings.TrimSpace(in.MerchantName)
	if in.MerchantName == "" || utf8.RuneCountInString(in.MerchantName) > maxMerchantNameLength {
		details = append(details, "Merchant name must be between 1 and 255 characters")
	}
	if in.MerchantCategory != nil && utf8.RuneCountInString(*in.MerchantCategory) > maxMerchantCategoryLength {
		details = append(details, "Merchant category must be at most 100 characters")
	}
	if in.Type == "" {
		in.Type = storages.TransactionTypePayment
	}
	switch in.Type {
	case storages.TransactionTypePayment, storages.TransactionTypeRefund, storages.TransactionTypeChargeback:
	default:
		details = append(details, "Transaction type must be one of payment, refund, chargeback")
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxTransactionDescription {
		details = append(details, "Description must be at most 1000 characters")
	}

	if len(details) > 0 {
		return apperr.Validation("invalid_transaction", "Invalid transaction data", details...)
	}
	return nil
}

// Create проводит транзакцию по активной карте владельца.
// Завершенная транзакция и изменение баланса карты записываются атомарно
func (s *TransactionService) Create(ctx context.Context, identity security.Identity, in CreateTransactionInput) (*storages.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	card, err := s.store.FindCardByID(ctx, in.CardID)
	if err != nil {
		return nil, notFoundOr(err, "card", MsgCardNotFound)
	}
	if !identity.CanAccess(card.UserID) {
		s.logger.Warnf("User %s attempted a transaction on card %s", identity.UserID(), card.ID)
		return nil, apperr.Forbidden("card_access_denied", MsgAccessDenied)
	}
	if card.Status != storages.CardStatusActive {
		return nil, apperr.PreconditionFailed("card_not_active", MsgCardNotActive)
	}

	status, err := s.authorizer.Authorize(ctx, in.Amount)
	if err != nil {
		return nil, apperr.Internal("payment_authorization_failed", err)
	}

	tx := &storages.Transaction{
		UserID:           identity.UserID(),
		CardID:           card.ID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		MerchantName:     in.MerchantName,
		MerchantCategory: in.MerchantCategory,
		Type:             in.Type,
		Status:           status,
		Description:      in.Description,
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		switch {
		case errors.Is(err, storages.ErrOwnershipMismatch):
			return nil, apperr.Forbidden("card_access_denied", MsgAccessDenied)
		case errors.Is(err, storages.ErrCardNotActive):
			return nil, apperr.PreconditionFailed("card_not_active", MsgCardNotActive)
		case errors.Is(err, storages.ErrBalanceOverflow):
			return nil, apperr.PreconditionFailed("balance_limit_exceeded", MsgBalanceLimitExceeded)
		case errors.Is(err, storages.ErrValueOutOfRange):
			return nil, apperr.Validation("invalid_transaction", "Invalid transaction data", "Transaction values exceed storage limits")
		default:
			return nil, notFoundOr(err, "card", MsgCardNotFound)
		}
	}

	s.stats.Invalidate(ctx, identity.UserID())
	event := audit.NewEvent(audit.EventTransactionCreated, identity.UserID()).
		WithResource(tx.ID).
		WithAmount(tx.Amount, tx.Currency)
	event.Status = string(tx.Status)
	s.events.emit(ctx, event)

	s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"card_id":        tx.CardID,
		"status":         tx.Status,
	}).Info("Transaction created")

	return tx, nil
}

// List возвращает транзакции пользователя по фильтру
func (s *TransactionService) List(ctx context.Context, identity security.Identity, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	if err := validateTransactionFilter(&filter); err != nil {
		return nil, err
	}

	txs, err := s.store.FindTransactionsByUserID(ctx, identity.UserID(), filter)
	if err != nil {
		return nil, apperr.Wrap("transaction_list_failed", err)
	}
	return txs, nil
}

// Get возвращает транзакцию владельца
func (s *TransactionService) Get(ctx context.Context, identity security.Identity, id uuid.UUID) (*storages.Transaction, error) {
	return s.loadOwned(ctx, identity, id)
}

func (s *TransactionService) loadOwned(ctx context.Context, identity security.Identity, id uuid.UUID) (*storages.Transaction, error) {
	tx, err := s.store.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "transaction", MsgTransactionNotFound)
	}
	if !identity.CanAccess(tx.UserID) {
		s.logger.Warnf("User %s denied access to transaction %s", identity.UserID(), id)
		return nil, apperr.Forbidden("transaction_access_denied", MsgAccessDenied)
	}
	return tx, nil
}

// Stats возвращает агрегированную статистику, используя кеш
func (s *TransactionService) Stats(ctx context.Context, identity security.Identity) (*storages.TransactionStats, error) {
	if stats, ok := s.stats.Get(ctx, identity.UserID()); ok {
		return stats, nil
	}

	version := s.stats.Version(identity.UserID())
	stats, err := s.store.StatsByUserID(ctx, identity.UserID())
	if err != nil {
		return nil, apperr.Wrap("transaction_stats_failed", err)
	}
	s.stats.SetIfUnchanged(ctx, identity.UserID(), version, stats)
	return stats, nil
}

// Delete удаляет незавершенную транзакцию владельца
func (s *TransactionService) Delete(ctx context.Context, identity security.Identity, id uuid.UUID) error {
	tx, err := s.loadOwned(ctx, identity, id)
	if err != nil {
		return err
	}
	if tx.Status == storages.TransactionStatusCompleted {
		return apperr.Conflict("transaction_completed", MsgCompletedNotDeletable)
	}

	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, storages.ErrStatusConflict) {
			return apperr.Conflict("transaction_completed", MsgCompletedNotDeletable)
		}
		return notFoundOr(err, "transaction", MsgTransactionNotFound)
	}

	s.stats.Invalidate(ctx, identity.UserID())
	s.events.emit(ctx, audit.NewEvent(audit.EventTransactionDeleted, identity.UserID()).
		WithResource(id).
		WithAmount(tx.Amount, tx.Currency))
	return nil
}

// Cancel отменяет ожидающую транзакцию владельца
func (s *TransactionService) Cancel(ctx context.Context, identity security.Identity, id uuid.UUID) (*storages.Transaction, error) {
	if _, err := s.loadOwned(ctx, identity, id); err != nil {
		return nil, err
	}

	tx, err := s.store.SettleTransaction(ctx, id, storages.TransactionStatusCancelled)
	if err != nil {
		if errors.Is(err, storages.ErrStatusConflict) {
			return nil, apperr.Conflict("transaction_not_pending", "Only pending transactions can be cancelled")
		}
		return nil, notFoundOr(err, "transaction", MsgTransactionNotFound)
	}

	s.stats.Invalidate(ctx, identity.UserID())
	return tx, nil
}

// AdminList возвращает транзакции всех пользователей
func (s *TransactionService) AdminList(ctx context.Context, _ security.AdminIdentity, filter storages.TransactionFilter) ([]storages.Transaction, error) {
	if err := validateTransactionFilter(&filter); err != nil {
		return nil, err
	}

	txs, err := s.store.FindTransactions(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap("transaction_list_failed", err)
	}
	return txs, nil
}

// Settle завершает или отклоняет ожидающую транзакцию.
// При завершении баланс карты пополняется в той же операции хранилища
func (s *TransactionService) Settle(ctx context.Context, admin security.AdminIdentity, id uuid.UUID, status storages.TransactionStatus) (*storages.Transaction, error) {
	if status != storages.TransactionStatusCompleted && status != storages.TransactionStatusFailed {
		return nil, apperr.Validation("invalid_status", "Settlement status must be completed or failed")
	}

	tx, err := s.store.SettleTransaction(ctx, id, status)
	if err != nil {
		if errors.Is(err, storages.ErrStatusConflict) {
			return nil, apperr.Conflict("transaction_not_pending", "Only pending transactions can be settled")
		}
		if errors.Is(err, storages.ErrBalanceOverflow) {
			return nil, apperr.PreconditionFailed("balance_limit_exceeded", MsgBalanceLimitExceeded)
		}
		return nil, notFoundOr(err, "transaction", MsgTransactionNotFound)
	}

	s.stats.Invalidate(ctx, tx.UserID)
	event := audit.NewEvent(audit.EventTransactionSettled, tx.UserID).
		WithActor(admin.UserID()).
		WithResource(tx.ID).
		WithAmount(tx.Amount, tx.Currency)
	event.Status = string(status)
	s.events.emit(ctx, event)

	s.logger.WithFields(logrus.Fields{
		"admin_id":       admin.UserID(),
		"transaction_id": tx.ID,
		"status":         status,
	}).Info("Transaction settled")

	return tx, nil
}

func validateTransactionFilter(filter *storages.TransactionFilter) error {
	switch filter.Status {
	case "", storages.TransactionStatusPending, storages.TransactionStatusCompleted,
		storages.TransactionStatusFailed, storages.TransactionStatusCancelled:
	default:
		return apperr.Validation("invalid_filter", "Invalid transaction status filter")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return apperr.Validation("invalid_filter", "End date must not be before start date")
	}
	filter.Limit = normalizeLimit(filter.Limit)
	return nil
}

// ParseDateFilter разбирает дату фильтра в формате RFC3339 или YYYY-MM-DD
func ParseDateFilter(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, apperr.Validation("invalid_filter", "Dates must be RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}
