// Package issuer содержит заглушку внешнего эмитента карт.
package issuer

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/storages"
)

// Значения по умолчанию для выпускаемых карт
const (
	DefaultBrand     = "visa"
	DefaultCurrency  = "USD"
	expiryYearsAhead = 3
)

// CardRequest параметры выпуска карты
type CardRequest struct {
	UserID   uuid.UUID
	Brand    string
	Currency string
}

// IssuedCard данные карты, полученные от эмитента
type IssuedCard struct {
	Token       string
	LastFour    string
	Brand       string
	ExpiryMonth int
	ExpiryYear  int
	Currency    string
}

// MockIssuer имитирует эмитента: токенизирует карты и авторизует платежи
type MockIssuer struct {
	reviewThreshold decimal.Decimal
	logger          *logrus.Logger
	now             func() time.Time
}

// NewMockIssuer создает заглушку; платежи выше reviewThreshold остаются в статусе pending
func NewMockIssuer(reviewThreshold float64, logger *logrus.Logger) *MockIssuer {
	return &MockIssuer{
		reviewThreshold: decimal.NewFromFloat(reviewThreshold),
		logger:          logger,
		now:             time.Now,
	}
}

// IssueCard выпускает токенизированную карту
func (m *MockIssuer) IssueCard(ctx context.Context, req CardRequest) (*IssuedCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lastFour, err := randomDigits(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate card number: %w", err)
	}

	brand := strings.ToLower(strings.TrimSpace(req.Brand))
	if brand == "" {
		brand = DefaultBrand
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	card := &IssuedCard{
		Token:       "tok_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		LastFour:    lastFour,
		Brand:       brand,
		ExpiryMonth: 12,
		ExpiryYear:  m.now().Year() + expiryYearsAhead,
		Currency:    currency,
	}

	m.logger.Debugf("Issuer tokenized card for user %s: **** %s", req.UserID, card.LastFour)
	return card, nil
}

// Authorize решает, завершить платеж сразу или отправить на проверку
func (m *MockIssuer) Authorize(ctx context.Context, amount decimal.Decimal) (storages.TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if amount.GreaterThan(m.reviewThreshold) {
		m.logger.Infof("Issuer holds payment of %s for review", amount)
		return storages.TransactionStatusPending, nil
	}
	return storages.TransactionStatusCompleted, nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(d.String())
	}
	return b.String(), nil
}
