package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/storages"
)

// Ограничения выборок
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// eventSink публикует события аудита; ошибки публикации не влияют на результат операции
type eventSink struct {
	publisher audit.Publisher
	logger    *logrus.Logger
}

func (s eventSink) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warnf("Failed to publish audit event %s: %v", event.Type, err)
	}
}

// normalizeLimit приводит лимит выборки к диапазону [1, MaxListLimit]
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// notFoundOr переводит storages.ErrNotFound в NotFound, остальные ошибки оборачивает как ошибки хранилища
func notFoundOr(err error, resource, message string) error {
	if errors.Is(err, storages.ErrNotFound) {
		return apperr.NotFound(resource+"_not_found", message)
	}
	return apperr.Wrap(resource+"_lookup_failed", err)
}
