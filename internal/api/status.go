package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api/middleware"
	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/audit"
)

const defaultEventsLimit = 50

// AuditReader чтение сохраненных событий аудита
type AuditReader interface {
	FindByUser(ctx context.Context, userID string, limit int) ([]audit.Record, error)
	FindRecent(ctx context.Context, limit int) ([]audit.Record, error)
	Statistics(ctx context.Context) (*audit.Statistics, error)
	Ping(ctx context.Context) error
}

// ConsumerStats источник счетчиков обработчика событий
type ConsumerStats interface {
	GetStatistics() map[string]interface{}
}

// SetupStatusRouter настраивает служебный роутер сервиса уведомлений
func SetupStatusRouter(store AuditReader, consumer ConsumerStats, logger *logrus.Logger, ginMode string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Errorf("MongoDB health check failed: %v", err)
			response.Fail(c, http.StatusServiceUnavailable, "storage_unavailable", "Storage unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	router.GET("/stats", func(c *gin.Context) {
		stored, err := store.Statistics(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			response.Fail(c, http.StatusInternalServerError, "statistics_failed", "Failed to load statistics")
			return
		}

		response.OK(c, http.StatusOK, gin.H{
			"consumer": consumer.GetStatistics(),
			"stored":   stored,
		}, "")
	})

	router.GET("/events", func(c *gin.Context) {
		limit := eventsLimit(c.Query("limit"))

		var (
			records []audit.Record
			err     error
		)
		if raw := c.Query("userId"); raw != "" {
			if _, parseErr := uuid.Parse(raw); parseErr != nil {
				response.Fail(c, http.StatusBadRequest, "invalid_filter", "Invalid userId format")
				return
			}
			records, err = store.FindByUser(c.Request.Context(), raw, limit)
		} else {
			records, err = store.FindRecent(c.Request.Context(), limit)
		}
		if err != nil {
			_ = c.Error(err)
			response.Fail(c, http.StatusInternalServerError, "events_lookup_failed", "Failed to load events")
			return
		}

		response.OK(c, http.StatusOK, records, "")
	})

	return router
}

func eventsLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultEventsLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
