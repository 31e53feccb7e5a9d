package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-auth-service/internal/storages"
)

func TestMemoryStatsCacheTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryStatsCache(time.Minute)
	c.now = func() time.Time { return now }

	userID := uuid.New()
	c.Set(context.Background(), userID, &storages.TransactionStats{Total: 3, TotalAmount: decimal.NewFromInt(30)})

	stats, ok := c.Get(context.Background(), userID)
	if !ok || stats.Total != 3 {
		t.Fatalf("Expected cached stats, got %+v (ok=%v)", stats, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(context.Background(), userID); ok {
		t.Fatal("Expected entry to expire")
	}
}

func TestMemoryStatsCacheInvalidate(t *testing.T) {
	c := NewMemoryStatsCache(time.Minute)
	userID := uuid.New()

	c.Set(context.Background(), userID, &storages.TransactionStats{Total: 1})
	c.Invalidate(context.Background(), userID)

	if _, ok := c.Get(context.Background(), userID); ok {
		t.Fatal("Expected entry to be invalidated")
	}
}

func TestMemoryStatsCacheReturnsCopy(t *testing.T) {
	c := NewMemoryStatsCache(time.Minute)
	userID := uuid.New()

	c.Set(context.Background(), userID, &storages.TransactionStats{Total: 1})
	first, _ := c.Get(context.Background(), userID)
	first.Total = 99

	second, _ := c.Get(context.Background(), userID)
	if second.Total != 1 {
		t.Fatalf("Expected cached value to be unaffected, got %d", second.Total)
	}
}
