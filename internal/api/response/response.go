// Package response формирует единый JSON-конверт ответов API.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gw-auth-service/internal/apperr"
)

// Статусы конверта
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const msgInternal = "Internal server error"

// Envelope конверт ответа
type Envelope struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Details   []string    `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// OK отправляет успешный ответ с данными
func OK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Envelope{
		Status:    StatusSuccess,
		Data:      data,
		Message:   message,
		Timestamp: now(),
	})
}

// Fail отправляет ошибку с явным HTTP статусом и прерывает цепочку
func Fail(c *gin.Context, status int, code, message string, details ...string) {
	c.AbortWithStatusJSON(status, Envelope{
		Status:    StatusError,
		Message:   message,
		Code:      code,
		Details:   details,
		Timestamp: now(),
	})
}

// StatusFor возвращает HTTP статус для категории ошибки
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error переводит ошибку сервиса в ответ. Причина ошибок хранилища и внутренних ошибок
// попадает в c.Errors для журнала запросов, клиент получает только стабильный код
func Error(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("internal_error", err)
	}

	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		Fail(c, status, appErr.Code, msgInternal)
		return
	}

	Fail(c, status, appErr.Code, appErr.Message, appErr.Details...)
}
