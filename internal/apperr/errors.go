// Package apperr описывает таксономию ошибок сервиса.
//
// Бизнес-ошибки создаются локально и транслируются в HTTP-ответ один к одному.
// Ошибки хранилища оборачиваются через Wrap: наружу уходит только стабильный код,
// исходная причина доступна через errors.Unwrap для логов.
package apperr

import (
	"errors"
	"fmt"
)

// Kind определяет категорию ошибки
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindPreconditionFailed
	KindStore
)

// String возвращает имя категории
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindStore:
		return "store_error"
	default:
		return "internal_error"
	}
}

// Error ошибка приложения с категорией и стабильным кодом
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation ошибка входных данных; details возвращаются клиенту целиком
func Validation(code, message string, details ...string) *Error {
	e := newError(KindValidation, code, message)
	e.Details = details
	return e
}

// Conflict конфликт с текущим состоянием ресурса
func Conflict(code, message string) *Error {
	return newError(KindConflict, code, message)
}

// Unauthorized ошибка аутентификации
func Unauthorized(code, message string) *Error {
	return newError(KindUnauthorized, code, message)
}

// Forbidden нарушение прав доступа
func Forbidden(code, message string) *Error {
	return newError(KindForbidden, code, message)
}

// NotFound ресурс не найден
func NotFound(code, message string) *Error {
	return newError(KindNotFound, code, message)
}

// PreconditionFailed не выполнено бизнес-условие (KYC, лимит карт)
func PreconditionFailed(code, message string) *Error {
	return newError(KindPreconditionFailed, code, message)
}

// Wrap оборачивает ошибку хранилища, сохраняя причину только для логов
func Wrap(code string, cause error) *Error {
	e := newError(KindStore, code, "storage operation failed")
	e.cause = cause
	return e
}

// Internal непредвиденная ошибка
func Internal(code string, cause error) *Error {
	e := newError(KindInternal, code, "internal error")
	e.cause = cause
	return e
}

// WithCause прикрепляет внутреннюю причину к ошибке
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// KindOf возвращает категорию ошибки; неизвестные ошибки считаются внутренними
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is проверяет, относится ли ошибка к категории
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As извлекает *Error из цепочки
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
