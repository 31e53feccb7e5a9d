package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/service"
	"gw-auth-service/internal/storages"
)

// UserHandler обработчик учетных записей
type UserHandler struct {
	service *service.UserService
	logger  *logrus.Logger
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(service *service.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// UpdateProfileRequest запрос на изменение профиля
type UpdateProfileRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
}

// AdminUpdateUserRequest запрос администратора на изменение пользователя
type AdminUpdateUserRequest struct {
	AccountStatus *storages.AccountStatus `json:"accountStatus"`
	Role          *storages.Role          `json:"role"`
	KYCStatus     *storages.KYCStatus     `json:"kycStatus"`
}

// Me возвращает текущего пользователя
// @Summary Current user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /v1/api/users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	user, err := h.service.Get(c.Request.Context(), identity, identity.UserID())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, user, "")
}

// List возвращает пользователей
// @Summary List users
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "Account status"
// @Param role query string false "Role"
// @Param limit query int false "Limit (max 100)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/users [get]
func (h *UserHandler) List(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.service.List(c.Request.Context(), admin, storages.UserFilter{
		AccountStatus: storages.AccountStatus(c.Query("status")),
		Role:          storages.Role(c.Query("role")),
		Limit:         limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, users, "")
}

// Get возвращает пользователя по ID
// @Summary Get user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /v1/api/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.Get(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, user, "")
}

// Update меняет профиль пользователя
// @Summary Update profile
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/users/{id} [patch]
func (h *UserHandler) Update(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), identity, id, service.ProfileUpdate{
		Name:  req.Name,
		Phone: req.PhoneNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, user, "Profile updated successfully")
}

// Delete помечает пользователя удаленным
// @Summary Delete user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), identity, id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, nil, "User deleted successfully")
}

// AdminUpdate меняет статус, роль и KYC статус
// @Summary Update user as admin
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body AdminUpdateUserRequest true "Admin fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/admin/users/{id} [patch]
func (h *UserHandler) AdminUpdate(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AdminUpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.AdminUpdate(c.Request.Context(), admin, id, service.AdminUserUpdate{
		AccountStatus: req.AccountStatus,
		Role:          req.Role,
		KYCStatus:     req.KYCStatus,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, user, "User updated successfully")
}
