package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gw-auth-service/internal/storages"
)

// StatsCache кеш статистики транзакций по пользователю
type StatsCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*storages.TransactionStats, bool)
	Set(ctx context.Context, userID uuid.UUID, stats *storages.TransactionStats)
	Invalidate(ctx context.Context, userID uuid.UUID)
	Close() error
}

type statsEntry struct {
	stats     storages.TransactionStats
	expiresAt time.Time
}

// MemoryStatsCache кеш статистики в памяти процесса
type MemoryStatsCache struct {
	entries map[uuid.UUID]statsEntry
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStatsCache создает новый кеш
func NewMemoryStatsCache(ttl time.Duration) *MemoryStatsCache {
	return &MemoryStatsCache{
		entries: make(map[uuid.UUID]statsEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get возвращает статистику из кеша, если она актуальна
func (c *MemoryStatsCache) Get(_ context.Context, userID uuid.UUID) (*storages.TransactionStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}

	// Возвращаем копию, чтобы избежать race condition
	stats := entry.stats
	return &stats, true
}

// Set сохраняет статистику в кеш
func (c *MemoryStatsCache) Set(_ context.Context, userID uuid.UUID, stats *storages.TransactionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = statsEntry{stats: *stats, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate удаляет статистику пользователя
func (c *MemoryStatsCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
}

// Clear очищает кеш
func (c *MemoryStatsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]statsEntry)
}

// Close ничего не освобождает
func (c *MemoryStatsCache) Close() error {
	return nil
}
