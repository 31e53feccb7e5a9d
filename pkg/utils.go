package pkg

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SupportedCurrencies допустимые валюты транзакций
var SupportedCurrencies = []string{"USD", "EUR", "CFA"}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateCurrency проверяет, что валюта является одной из поддерживаемых
func ValidateCurrency(currency string) error {
	currency = NormalizeCurrency(currency)
	for _, supported := range SupportedCurrencies {
		if currency == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported currency: %s. Supported currencies: %s", currency, strings.Join(SupportedCurrencies, ", "))
}

// NormalizeCurrency приводит код валюты к верхнему регистру
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// MaxAmount верхняя граница суммы одной операции (не включительно)
var MaxAmount = decimal.New(1, 15)

// ValidateAmount проверяет, что сумма положительная, меньше MaxAmount и не длиннее двух знаков после запятой
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("amount must be less than %s", MaxAmount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount must have at most 2 decimal places")
	}
	return nil
}

// ValidateEmail проверяет формат email
func ValidateEmail(email string) error {
	if len(email) > 255 || !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// FormatUptime форматирует время работы сервиса
func FormatUptime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}
