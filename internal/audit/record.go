package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Статусы обработки записи
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Record событие аудита в хранилище уведомлений
type Record struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID     string             `bson:"event_id" json:"event_id"`
	Type        EventType          `bson:"type" json:"type"`
	UserID      string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	ActorID     string             `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	ResourceID  string             `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	Amount      float64            `bson:"amount" json:"amount"`
	Currency    string             `bson:"currency,omitempty" json:"currency,omitempty"`
	EventStatus string             `bson:"event_status,omitempty" json:"event_status,omitempty"`
	Large       bool               `bson:"large" json:"large"`
	Metadata    map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	OccurredAt  time.Time          `bson:"occurred_at" json:"occurred_at"`
	ProcessedAt time.Time          `bson:"processed_at" json:"processed_at"`
	Status      string             `bson:"status" json:"status"`
}

// RecordFromEvent переводит сообщение Kafka в запись хранилища
func RecordFromEvent(e Event) Record {
	r := Record{
		EventID:     e.ID,
		Type:        e.Type,
		UserID:      e.UserID,
		ActorID:     e.ActorID,
		ResourceID:  e.ResourceID,
		Currency:    e.Currency,
		EventStatus: e.Status,
		Large:       e.Large,
		Metadata:    e.Metadata,
		OccurredAt:  e.OccurredAt,
	}
	if e.Amount != nil {
		r.Amount = e.Amount.InexactFloat64()
	}
	return r
}

// Statistics агрегированная статистика сохраненных событий
type Statistics struct {
	TotalProcessed  int64            `json:"total_processed"`
	TotalLarge      int64            `json:"total_large"`
	TotalAmount     float64          `json:"total_amount"`
	AverageAmount   float64          `json:"average_amount"`
	LastProcessedAt time.Time        `json:"last_processed_at"`
	ByType          map[string]int64 `json:"by_type"`
}

// Store хранилище событий аудита
type Store interface {
	// SaveBatch сохраняет пакет записей
	SaveBatch(ctx context.Context, records []Record) error

	// FindByUser возвращает события пользователя, новые первыми
	FindByUser(ctx context.Context, userID string, limit int) ([]Record, error)

	// FindRecent возвращает последние обработанные события
	FindRecent(ctx context.Context, limit int) ([]Record, error)

	// Statistics возвращает агрегаты по событиям
	Statistics(ctx context.Context) (*Statistics, error)

	// Health check
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
