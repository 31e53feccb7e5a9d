package storages

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role определяет роль пользователя
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccountStatus определяет статус учетной записи
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted"
)

// KYCStatus определяет статус проверки личности
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusVerified KYCStatus = "verified"
	KYCStatusRejected KYCStatus = "rejected"
)

// User представляет пользователя системы
type User struct {
	ID            uuid.UUID     `db:"id"`
	Email         string        `db:"email"`
	PasswordHash  string        `db:"password_hash"`
	Name          *string       `db:"name"`
	Phone         *string       `db:"phone_number"`
	KYCStatus     KYCStatus     `db:"kyc_status"`
	AccountStatus AccountStatus `db:"account_status"`
	Role          Role          `db:"role"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// IsActive проверяет, что учетная запись активна
func (u *User) IsActive() bool {
	return u.AccountStatus == AccountStatusActive
}

// PublicUser проекция пользователя без хеша пароля
type PublicUser struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email"`
	Name          *string       `json:"name"`
	Phone         *string       `json:"phoneNumber"`
	KYCStatus     KYCStatus     `json:"kycStatus"`
	AccountStatus AccountStatus `json:"accountStatus"`
	Role          Role          `json:"role"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Public возвращает безопасную проекцию пользователя
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Phone:         u.Phone,
		KYCStatus:     u.KYCStatus,
		AccountStatus: u.AccountStatus,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserPatch перечисляет изменяемые поля пользователя; nil означает "не менять"
type UserPatch struct {
	Name          *string
	Phone         *string
	AccountStatus *AccountStatus
	Role          *Role
	KYCStatus     *KYCStatus
}

// IsEmpty проверяет, что патч ничего не меняет
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Phone == nil && p.AccountStatus == nil && p.Role == nil && p.KYCStatus == nil
}

// UserFilter фильтр выборки пользователей
type UserFilter struct {
	AccountStatus AccountStatus
	Role          Role
	Limit         int
}

// CardStatus определяет статус карты
type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusFrozen   CardStatus = "frozen"
	CardStatusExpired  CardStatus = "expired"
)

// Card представляет платежную карту пользователя
type Card struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"userId"`
	CardToken   string          `db:"card_token" json:"cardToken"`
	LastFour    string          `db:"last_four" json:"lastFour"`
	Brand       string          `db:"card_brand" json:"cardBrand"`
	ExpiryMonth int             `db:"expiry_month" json:"expiryMonth"`
	ExpiryYear  int             `db:"expiry_year" json:"expiryYear"`
	Status      CardStatus      `db:"card_status" json:"cardStatus"`
	Balance     decimal.Decimal `db:"current_balance" json:"currentBalance"`
	Currency    string          `db:"currency" json:"currency"`
	Nickname    *string         `db:"card_nickname" json:"cardNickname"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// BalanceLimit граница баланса карты (не включительно), соответствует NUMERIC(20,2)
var BalanceLimit = decimal.New(1, 18)

// CardPatch перечисляет изменяемые поля карты
type CardPatch struct {
	Nickname *string
	Status   *CardStatus
}

// IsEmpty проверяет, что патч ничего не меняет
func (p CardPatch) IsEmpty() bool {
	return p.Nickname == nil && p.Status == nil
}

// TransactionType определяет тип транзакции
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeChargeback TransactionType = "chargeback"
)

// TransactionStatus определяет статус транзакции
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction представляет операцию по карте
type Transaction struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	UserID           uuid.UUID         `db:"user_id" json:"userId"`
	CardID           uuid.UUID         `db:"card_id" json:"cardId"`
	Amount           decimal.Decimal   `db:"amount" json:"amount"`
	Currency         string            `db:"currency" json:"currency"`
	MerchantName     string            `db:"merchant_name" json:"merchantName"`
	MerchantCategory *string           `db:"merchant_category" json:"merchantCategory"`
	Type             TransactionType   `db:"transaction_type" json:"transactionType"`
	Status           TransactionStatus `db:"status" json:"status"`
	Description      *string           `db:"description" json:"description"`
	Timestamp        time.Time         `db:"timestamp" json:"timestamp"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
}

// TransactionFilter фильтр выборки транзакций
type TransactionFilter struct {
	Status    TransactionStatus
	CardID    *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// TransactionStats агрегированная статистика транзакций пользователя
type TransactionStats struct {
	Total         int64           `json:"total"`
	Completed     int64           `json:"completed"`
	Pending       int64           `json:"pending"`
	Failed        int64           `json:"failed"`
	Cancelled     int64           `json:"cancelled"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AverageAmount decimal.Decimal `json:"averageAmount"`
}
