package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"gw-auth-service/internal/storages"
)

// VersionedStatsCache не дает записать в кеш статистику, прочитанную до инвалидации.
// Каждая инвалидация увеличивает версию пользователя, а запись проходит только
// если версия не изменилась с начала чтения из хранилища
type VersionedStatsCache struct {
	StatsCache

	mu       sync.Mutex
	versions map[uuid.UUID]uint64
}

// NewVersionedStatsCache оборачивает кеш статистики
func NewVersionedStatsCache(inner StatsCache) *VersionedStatsCache {
	return &VersionedStatsCache{
		StatsCache: inner,
		versions:   make(map[uuid.UUID]uint64),
	}
}

// Version возвращает текущую версию статистики пользователя
func (c *VersionedStatsCache) Version(userID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID]
}

// SetIfUnchanged сохраняет статистику, если с момента Version не было инвалидаций.
// Возвращает false, если запись пропущена
func (c *VersionedStatsCache) SetIfUnchanged(ctx context.Context, userID uuid.UUID, version uint64, stats *storages.TransactionStats) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[userID] != version {
		return false
	}
	c.StatsCache.Set(ctx, userID, stats)
	return true
}

// Invalidate увеличивает версию и удаляет запись.
// Обе операции под одним мьютексом с SetIfUnchanged
func (c *VersionedStatsCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[userID]++
	c.StatsCache.Invalidate(ctx, userID)
}
