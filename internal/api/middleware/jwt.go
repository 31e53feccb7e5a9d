package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/security"
)

// Ключи контекста запроса
const (
	identityKey = "identity"
	adminKey    = "admin_identity"
)

// AuthGuard middleware для проверки bearer токенов и роли администратора
type AuthGuard struct {
	auth   *security.Authenticator
	logger *logrus.Logger
}

// NewAuthGuard создает новый middleware
func NewAuthGuard(auth *security.Authenticator, logger *logrus.Logger) *AuthGuard {
	return &AuthGuard{
		auth:   auth,
		logger: logger,
	}
}

// Auth аутентифицирует запрос и сохраняет личность в контекст
func (g *AuthGuard) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				g.logger.WithFields(logrus.Fields{
					"path":      c.Request.URL.Path,
					"client_ip": c.ClientIP(),
				}).Warnf("Rejected request: %v", err)
			}
			response.Error(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// AdminOnly пропускает только администраторов. Должен стоять после Auth
func (g *AuthGuard) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := GetIdentity(c)

		admin, err := security.RequireAdmin(identity)
		if err != nil {
			g.logger.Warnf("Non-admin user %s denied access to %s", identity.UserID(), c.Request.URL.Path)
			response.Error(c, err)
			return
		}

		c.Set(adminKey, admin)
		c.Next()
	}
}

// Protect создает группу маршрутов, требующих аутентификации
func (g *AuthGuard) Protect(rg *gin.RouterGroup, path string) *gin.RouterGroup {
	group := rg.Group(path)
	group.Use(g.Auth())
	return group
}

// Admin создает группу маршрутов только для администраторов
func (g *AuthGuard) Admin(rg *gin.RouterGroup, path string) *gin.RouterGroup {
	group := rg.Group(path)
	group.Use(g.Auth(), g.AdminOnly())
	return group
}

// GetIdentity извлекает личность из контекста
func GetIdentity(c *gin.Context) (security.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return security.Identity{}, false
	}

	identity, ok := value.(security.Identity)
	return identity, ok
}

// GetAdmin извлекает личность администратора из контекста
func GetAdmin(c *gin.Context) (security.AdminIdentity, bool) {
	value, exists := c.Get(adminKey)
	if !exists {
		return security.AdminIdentity{}, false
	}

	admin, ok := value.(security.AdminIdentity)
	return admin, ok
}
