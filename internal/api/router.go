package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"gw-auth-service/internal/api/handlers"
	"gw-auth-service/internal/api/middleware"
	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/service"
)

// Services сервисы, обслуживаемые HTTP API
type Services struct {
	Auth         *service.AuthService
	Users        *service.UserService
	Cards        *service.CardService
	Transactions *service.TransactionService
}

// Pinger проверка доступности зависимости для /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupRouter настраивает и возвращает роутер с всеми эндпоинтами
func SetupRouter(
	services Services,
	guard *middleware.AuthGuard,
	store Pinger,
	logger *logrus.Logger,
	ginMode string,
) *gin.Engine {
	gin.SetMode(ginMode)
	binding.EnableDecoderDisallowUnknownFields = true

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Errorf("Health check failed: %v", err)
			response.Fail(c, http.StatusServiceUnavailable, "storage_unavailable", "Storage unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "route_not_found", "Route not found")
	})

	authHandler := handlers.NewAuthHandler(services.Auth, logger)
	userHandler := handlers.NewUserHandler(services.Users, logger)
	cardHandler := handlers.NewCardHandler(services.Cards, logger)
	txHandler := handlers.NewTransactionHandler(services.Transactions, logger)

	v1 := router.Group("/v1/api")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", guard.Auth(), authHandler.Logout)
		}

		users := guard.Protect(v1, "/users")
		{
			users.GET("", guard.AdminOnly(), userHandler.List)
			users.GET("/me", userHandler.Me)
			users.GET("/:id", userHandler.Get)
			users.PATCH("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}

		cards := guard.Protect(v1, "/cards")
		{
			cards.POST("", cardHandler.Create)
			cards.GET("", cardHandler.List)
			cards.GET("/:id", cardHandler.Get)
			cards.PATCH("/:id", cardHandler.Update)
			cards.DELETE("/:id", cardHandler.Delete)
			cards.POST("/:id/freeze", cardHandler.Freeze)
			cards.POST("/:id/unfreeze", cardHandler.Unfreeze)
		}

		transactions := guard.Protect(v1, "/transactions")
		{
			transactions.POST("", txHandler.Create)
			transactions.GET("", txHandler.List)
			transactions.GET("/stats", txHandler.Stats)
			transactions.GET("/:id", txHandler.Get)
			transactions.DELETE("/:id", txHandler.Delete)
			transactions.POST("/:id/cancel", txHandler.Cancel)
		}

		admin := guard.Admin(v1, "/admin")
		{
			admin.PATCH("/users/:id", userHandler.AdminUpdate)
			admin.GET("/transactions", txHandler.AdminList)
			admin.POST("/transactions/:id/settle", txHandler.Settle)
		}
	}

	return router
}
