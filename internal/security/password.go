package security

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// PasswordMinLength минимальная длина пароля в символах
const PasswordMinLength = 8

// PasswordSymbols набор допустимых спецсимволов
const PasswordSymbols = "!@#$%^&*"

// Сообщения политики паролей
const (
	msgPasswordLength    = "Password must be at least 8 characters long"
	msgPasswordUppercase = "Password must contain at least one uppercase letter"
	msgPasswordLowercase = "Password must contain at least one lowercase letter"
	msgPasswordDigit     = "Password must contain at least one number"
	msgPasswordSymbol    = "Password must contain at least one special character (!@#$%^&*)"
)

// ErrPasswordTooLong пароль длиннее, чем принимает bcrypt
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordValidation результат проверки пароля
type PasswordValidation struct {
	Valid  bool
	Errors []string
}

// ValidatePassword проверяет все правила политики и возвращает полный список нарушений
func ValidatePassword(password string) PasswordValidation {
	var (
		hasUpper, hasLower, hasDigit, hasSymbol bool
		errs                                    []string
	)

	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	if utf8.RuneCountInString(password) < PasswordMinLength {
		errs = append(errs, msgPasswordLength)
	}
	if !hasUpper {
		errs = append(errs, msgPasswordUppercase)
	}
	if !hasLower {
		errs = append(errs, msgPasswordLowercase)
	}
	if !hasDigit {
		errs = append(errs, msgPasswordDigit)
	}
	if !hasSymbol {
		errs = append(errs, msgPasswordSymbol)
	}

	return PasswordValidation{Valid: len(errs) == 0, Errors: errs}
}

// PasswordHasher хеширует и сверяет пароли через bcrypt
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher создает хешер; некорректная стоимость заменяется bcrypt.DefaultCost
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash возвращает соленый хеш; каждый вызов дает новый результат
func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// Compare сверяет пароль с хешем. Любая ошибка означает несовпадение
func (h *PasswordHasher) Compare(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
