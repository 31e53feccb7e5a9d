package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/service"
	"gw-auth-service/internal/storages"
)

// TransactionHandler обработчик транзакций
type TransactionHandler struct {
	service *service.TransactionService
	logger  *logrus.Logger
}

// NewTransactionHandler создает новый обработчик транзакций
func NewTransactionHandler(service *service.TransactionService, logger *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger,
	}
}

// CreateTransactionRequest запрос на проведение транзакции
type CreateTransactionRequest struct {
	CardID           uuid.UUID                `json:"cardId" binding:"required"`
	Amount           decimal.Decimal          `json:"amount"`
	Currency         string                   `json:"currency" binding:"required"`
	MerchantName     string                   `json:"merchantName" binding:"required"`
	MerchantCategory *string                  `json:"merchantCategory"`
	TransactionType  storages.TransactionType `json:"transactionType"`
	Description      *string                  `json:"description"`
}

// SettleRequest запрос на завершение транзакции
type SettleRequest struct {
	Status storages.TransactionStatus `json:"status" binding:"required,oneof=completed failed"`
}

// Create проводит транзакцию
// @Summary Create transaction
// @Description Charge an active card owned by the caller
// @Tags transactions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /v1/api/transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.service.Create(c.Request.Context(), identity, service.CreateTransactionInput{
		CardID:           req.CardID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		MerchantName:     req.MerchantName,
		MerchantCategory: req.MerchantCategory,
		Type:             req.TransactionType,
		Description:      req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusCreated, tx, "Transaction created successfully")
}

// transactionFilter разбирает параметры выборки
func transactionFilter(c *gin.Context) (storages.TransactionFilter, bool) {
	filter := storages.TransactionFilter{
		Status: storages.TransactionStatus(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	if raw := c.Query("cardId"); raw != "" {
		cardID, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, "invalid_filter", "Invalid cardId format")
			return filter, false
		}
		filter.CardID = &cardID
	}

	var err error
	if filter.StartDate, err = service.ParseDateFilter(c.Query("startDate")); err != nil {
		response.Error(c, err)
		return filter, false
	}
	if filter.EndDate, err = service.ParseDateFilter(c.Query("endDate")); err != nil {
		response.Error(c, err)
		return filter, false
	}
	return filter, true
}

// List возвращает транзакции пользователя
// @Summary List transactions
// @Tags transactions
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status"
// @Param cardId query string false "Card ID"
// @Param startDate query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param endDate query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Param limit query int false "Limit (max 100)"
// @Success 200 {object} response.Envelope
// @Router /v1/api/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	filter, ok := transactionFilter(c)
	if !ok {
		return
	}

	txs, err := h.service.List(c.Request.Context(), identity, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, txs, "")
}

// Stats возвращает статистику транзакций
// @Summary Transaction statistics
// @Tags transactions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /v1/api/transactions/stats [get]
func (h *TransactionHandler) Stats(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, stats, "")
}

// Get возвращает транзакцию
// @Summary Get transaction
// @Tags transactions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /v1/api/transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tx, err := h.service.Get(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, tx, "")
}

// Delete удаляет незавершенную транзакцию
// @Summary Delete transaction
// @Description Completed transactions cannot be deleted
// @Tags transactions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /v1/api/transactions/{id} [delete]
func (h *TransactionHandler) Delete(c *gin.Context) {
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

	response.OK(c, http.StatusOK, nil, "Transaction deleted successfully")
}

// Cancel отменяет ожидающую транзакцию
// @Summary Cancel transaction
// @Tags transactions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /v1/api/transactions/{id}/cancel [post]
func (h *TransactionHandler) Cancel(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tx, err := h.service.Cancel(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, tx, "Transaction cancelled successfully")
}

// AdminList возвращает транзакции всех пользователей
// @Summary List all transactions
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status"
// @Param limit query int false "Limit (max 100)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /v1/api/admin/transactions [get]
func (h *TransactionHandler) AdminList(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	filter, ok := transactionFilter(c)
	if !ok {
		return
	}

	txs, err := h.service.AdminList(c.Request.Context(), admin, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, txs, "")
}

// Settle завершает ожидающую транзакцию
// @Summary Settle transaction
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param request body SettleRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /v1/api/admin/transactions/{id}/settle [post]
func (h *TransactionHandler) Settle(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req SettleRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.service.Settle(c.Request.Context(), admin, id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, tx, "Transaction settled successfully")
}
