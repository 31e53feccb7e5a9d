// Package audit описывает события аудита, которые API публикует,
// а сервис уведомлений сохраняет.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType тип события аудита
type EventType string

const (
	EventUserRegistered     EventType = "user.registered"
	EventUserLoginFailed    EventType = "user.login_failed"
	EventUserLogout         EventType = "user.logout"
	EventUserDeleted        EventType = "user.deleted"
	EventCardCreated        EventType = "card.created"
	EventCardFrozen         EventType = "card.frozen"
	EventCardUnfrozen       EventType = "card.unfrozen"
	EventCardDeleted        EventType = "card.deleted"
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionSettled EventType = "transaction.settled"
	EventTransactionDeleted EventType = "transaction.deleted"
)

// Event сообщение аудита, передаваемое через Kafka
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	Amount     *decimal.Decimal  `json:"amount,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Status     string            `json:"status,omitempty"`
	Large      bool              `json:"large"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent создает событие с уникальным ID и текущим временем
func NewEvent(eventType EventType, userID uuid.UUID) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
	if userID != uuid.Nil {
		e.UserID = userID.String()
	}
	return e
}

// WithAmount добавляет сумму операции
func (e Event) WithAmount(amount decimal.Decimal, currency string) Event {
	e.Amount = &amount
	e.Currency = currency
	return e
}

// WithResource добавляет ID затронутого ресурса
func (e Event) WithResource(id uuid.UUID) Event {
	e.ResourceID = id.String()
	return e
}

// WithActor добавляет ID инициатора, если он отличается от владельца
func (e Event) WithActor(id uuid.UUID) Event {
	e.ActorID = id.String()
	return e
}

// WithMeta добавляет произвольное поле
func (e Event) WithMeta(key, value string) Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Publisher отправляет события аудита
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher отбрасывает события; используется без Kafka
type NopPublisher struct{}

// Publish ничего не делает
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close ничего не делает
func (NopPublisher) Close() error { return nil }
