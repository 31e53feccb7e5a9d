package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gw-auth-service/internal/audit"
)

var _ audit.Store = (*MongoStorage)(nil)

// SaveBatch сохраняет пакет событий. Дубликаты event_id пропускаются
func (s *MongoStorage) SaveBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	documents := make([]interface{}, len(records))
	now := time.Now().UTC()

	for i := range records {
		records[i].ProcessedAt = now
		records[i].Status = audit.StatusProcessed
		documents[i] = records[i]
	}

	result, err := s.collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		s.logger.Errorf("Failed to save audit batch: %v", err)
		return fmt.Errorf("failed to save audit batch: %w", err)
	}

	inserted := 0
	if result != nil {
		inserted = len(result.InsertedIDs)
	}
	s.logger.Infof("Saved batch of %d audit events (inserted: %d)", len(records), inserted)

	return nil
}

// onlyDuplicates проверяет, что все ошибки вставки вызваны уникальным индексом
func onlyDuplicates(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return false
	}
	for _, writeErr := range bulkErr.WriteErrors {
		if writeErr.Code != 11000 {
			return false
		}
	}
	return true
}

// FindByUser получает события пользователя
func (s *MongoStorage) FindByUser(ctx context.Context, userID string, limit int) ([]audit.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		s.logger.Errorf("Failed to query audit events: %v", err)
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var records []audit.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	s.logger.Debugf("Retrieved %d audit events for user %s", len(records), userID)
	return records, nil
}

// FindRecent получает последние события
func (s *MongoStorage) FindRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "processed_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		s.logger.Errorf("Failed to query recent audit events: %v", err)
		return nil, fmt.Errorf("failed to query recent audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var records []audit.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}
	return records, nil
}

// Statistics возвращает агрегаты по событиям
func (s *MongoStorage) Statistics(ctx context.Context) (*audit.Statistics, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$facet", Value: bson.M{
			"totals": bson.A{
				bson.M{"$group": bson.M{
					"_id":            nil,
					"total":          bson.M{"$sum": 1},
					"large":          bson.M{"$sum": bson.M{"$cond": bson.A{"$large", 1, 0}}},
					"total_amount":   bson.M{"$sum": "$amount"},
					"average_amount": bson.M{"$avg": "$amount"},
					"last_processed": bson.M{"$max": "$processed_at"},
				}},
			},
			"by_type": bson.A{
				bson.M{"$group": bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}},
			},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Errorf("Failed to get audit statistics: %v", err)
		return nil, fmt.Errorf("failed to get audit statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Totals []struct {
			Total         int64     `bson:"total"`
			Large         int64     `bson:"large"`
			TotalAmount   float64   `bson:"total_amount"`
			AverageAmount float64   `bson:"average_amount"`
			LastProcessed time.Time `bson:"last_processed"`
		} `bson:"totals"`
		ByType []struct {
			Type  string `bson:"_id"`
			Count int64  `bson:"count"`
		} `bson:"by_type"`
	}

	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode audit statistics: %w", err)
	}

	stats := &audit.Statistics{ByType: make(map[string]int64)}
	if len(results) > 0 {
		if len(results[0].Totals) > 0 {
			totals := results[0].Totals[0]
			stats.TotalProcessed = totals.Total
			stats.TotalLarge = totals.Large
			stats.TotalAmount = totals.TotalAmount
			stats.AverageAmount = totals.AverageAmount
			stats.LastProcessedAt = totals.LastProcessed
		}
		for _, t := range results[0].ByType {
			stats.ByType[t.Type] = t.Count
		}
	}

	s.logger.Debugf("Audit statistics: Processed=%d, Large=%d", stats.TotalProcessed, stats.TotalLarge)
	return stats, nil
}
