package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/service"
)

// CardHandler обработчик карт
type CardHandler struct {
	service *service.CardService
	logger  *logrus.Logger
}

// NewCardHandler создает новый обработчик карт
func NewCardHandler(service *service.CardService, logger *logrus.Logger) *CardHandler {
	return &CardHandler{
		service: service,
		logger:  logger,
	}
}

// CreateCardRequest запрос на выпуск карты
type CreateCardRequest struct {
	CardBrand    string  `json:"cardBrand" binding:"omitempty,oneof=visa mastercard amex"`
	Currency     string  `json:"currency"`
	CardNickname *string `json:"cardNickname"`
}

// UpdateCardRequest запрос на изменение карты
type UpdateCardRequest struct {
	CardNickname *string `json:"cardNickname"`
}

// Create выпускает карту
// @Summary Create card
// @Description Issue a new card. Requires verified KYC and fewer than 5 active cards
// @Tags cards
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateCardRequest true "Card data"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /v1/api/cards [post]
func (h *CardHandler) Create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req CreateCardRequest
	if !bindJSON(c, &req) {
		return
	}

	card, err := h.service.Create(c.Request.Context(), identity, service.CreateCardInput{
		Brand:    req.CardBrand,
		Currency: req.Currency,
		Nickname: req.CardNickname,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusCreated, card, "Card created successfully")
}

// List возвращает карты пользователя
// @Summary List cards
// @Tags cards
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /v1/api/cards [get]
func (h *CardHandler) List(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	cards, err := h.service.List(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, cards, "")
}

// Get возвращает карту
// @Summary Get card
// @Tags cards
// @Security BearerAuth
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /v1/api/cards/{id} [get]
func (h *CardHandler) Get(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	card, err := h.service.Get(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, card, "")
}

// Update меняет название карты
// @Summary Update card
// @Tags cards
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Card ID"
// @Param request body UpdateCardRequest true "Card fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/cards/{id} [patch]
func (h *CardHandler) Update(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateCardRequest
	if !bindJSON(c, &req) {
		return
	}

	card, err := h.service.Update(c.Request.Context(), identity, id, service.CardUpdate{Nickname: req.CardNickname})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, card, "Card updated successfully")
}

// Freeze замораживает карту
// @Summary Freeze card
// @Tags cards
// @Security BearerAuth
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /v1/api/cards/{id}/freeze [post]
func (h *CardHandler) Freeze(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	card, err := h.service.Freeze(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, card, "Card frozen successfully")
}

// Unfreeze размораживает карту
// @Summary Unfreeze card
// @Tags cards
// @Security BearerAuth
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /v1/api/cards/{id}/unfreeze [post]
func (h *CardHandler) Unfreeze(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	card, err := h.service.Unfreeze(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, card, "Card unfrozen successfully")
}

// Delete удаляет карту
// @Summary Delete card
// @Tags cards
// @Security BearerAuth
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /v1/api/cards/{id} [delete]
func (h *CardHandler) Delete(c *gin.Context) {
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

	response.OK(c, http.StatusOK, nil, "Card deleted successfully")
}
