package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gw-auth-service/internal/api/middleware"
	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/security"
)

// currentIdentity возвращает личность запроса или отвечает 401
func currentIdentity(c *gin.Context) (security.Identity, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "token_missing", security.MsgNoToken)
		return security.Identity{}, false
	}
	return identity, true
}

// currentAdmin возвращает личность администратора или отвечает 403
func currentAdmin(c *gin.Context) (security.AdminIdentity, bool) {
	admin, ok := middleware.GetAdmin(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, "admin_required", security.MsgAdminRequired)
		return security.AdminIdentity{}, false
	}
	return admin, true
}

// pathID разбирает UUID из параметра пути
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid_id", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON разбирает тело запроса или отвечает 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid_request", "Invalid request: "+err.Error())
		return false
	}
	return true
}
