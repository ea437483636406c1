package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/ExarKun28/sme-cashflow-blockchain/internal/errors"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/middleware"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/models"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/services"
)

type Handler struct {
	ledger services.LedgerService
}

func NewHandler(ledger services.LedgerService) *Handler {
	return &Handler{ledger: ledger}
}

// Register mounts the health and ledger routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		api.POST("/init", h.InitLedger)

		txs := api.Group("/transactions")
		{
			txs.POST("", h.CreateTransaction)
			txs.GET("", h.GetAllTransactions)
			txs.GET("/sme/:smeId", h.GetTransactionsBySME)
			txs.GET("/:id", h.GetTransaction)
			txs.GET("/:id/exists", h.TransactionExists)
			txs.GET("/:id/history", h.GetTransactionHistory)
			txs.PUT("/:id", h.UpdateTransaction)
			txs.DELETE("/:id", h.DeleteTransaction)
		}

		api.GET("/summary/:smeId", h.GetCashFlowSummary)
	}
}

func (h *Handler) respondError(c *gin.Context, err error, operation string) {
	appErr := apperrors.FromError(err, operation)

	event := log.Warn()
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("operation", operation).
		Str("code", string(appErr.Code)).
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Msg("Ledger request failed")

	details := appErr.Details
	if details == "" {
		details = apperrors.SanitizeError(err)
	}

	c.JSON(appErr.HTTPStatus, models.ErrorResponse{
		Success:   false,
		Error:     appErr.Message,
		Details:   details,
		Code:      string(appErr.Code),
		RequestID: c.GetString(middleware.RequestIDKey),
		Context:   appErr.Context,
	})
}

func (h *Handler) respondValidation(c *gin.Context, err error) {
	appErr := apperrors.NewValidationError(err.Error())
	c.JSON(appErr.HTTPStatus, models.ErrorResponse{
		Success:   false,
		Error:     appErr.Message,
		Code:      string(appErr.Code),
		RequestID: c.GetString(middleware.RequestIDKey),
	})
}

// HealthCheck godoc
// @Summary      Health check
// @Description  Check if the API is running and which ledger backend it uses
// @Tags         Health
// @Produce      json
// @Success      200  {object}  models.HealthResponse
// @Router       /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: "sme-cashflow-api",
		Backend: h.ledger.Backend(),
	})
}

// InitLedger godoc
// @Summary      Seed the ledger
// @Description  Write the sample transactions of SME001. Existing records with the same IDs are overwritten.
// @Tags         Ledger
// @Produce      json
// @Success      200  {object}  models.SuccessResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /api/init [post]
func (h *Handler) InitLedger(c *gin.Context) {
	if err := h.ledger.InitLedger(c.Request.Context()); err != nil {
		h.respondError(c, err, "init ledger")
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Ledger initialized successfully",
	})
}

// =============================================================================
// Transactions
// =============================================================================

// CreateTransaction godoc
// @Summary      Create transaction
// @Description  Record a new inflow or outflow. An ID is assigned when transactionID is omitted.
// @Tags         Transactions
// @Accept       json
// @Produce      json
// @Param        request  body      models.CreateTransactionRequest  true  "Transaction data"
// @Success      201      {object}  models.TransactionResponse
// @Failure      400      {object}  models.ErrorResponse
// @Failure      409      {object}  models.ErrorResponse
// @Failure      503      {object}  models.ErrorResponse
// @Router       /api/transactions [post]
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req models.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidation(c, err)
		return
	}

	tx, err := h.ledger.CreateTransaction(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "create transaction")
		return
	}

	c.JSON(http.StatusCreated, models.TransactionResponse{
		Success:     true,
		Message:     "Transaction created successfully",
		Transaction: tx,
	})
}

// GetAllTransactions godoc
// @Summary      List transactions
// @Description  Every record in key order. Values that cannot be decoded are returned as raw strings.
// @Tags         Transactions
// @Produce      json
// @Success      200  {array}   ledger.Transaction
// @Failure      500  {object}  models.ErrorResponse
// @Router       /api/transactions [get]
func (h *Handler) GetAllTransactions(c *gin.Context) {
	records, err := h.ledger.GetAllTransactions(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "list transactions")
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetTransaction godoc
// @Summary      Get transaction
// @Tags         Transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  ledger.Transaction
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/transactions/{id} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.ledger.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "get transaction")
		return
	}
	c.JSON(http.StatusOK, tx)
}

// TransactionExists godoc
// @Summary      Check transaction exists
// @Tags         Transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  models.ExistsResponse
// @Router       /api/transactions/{id}/exists [get]
func (h *Handler) TransactionExists(c *gin.Context) {
	id := c.Param("id")
	exists, err := h.ledger.TransactionExists(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "check transaction")
		return
	}
	c.JSON(http.StatusOK, models.ExistsResponse{TransactionID: id, Exists: exists})
}

// GetTransactionHistory godoc
// @Summary      Transaction history
// @Description  Every committed version of a transaction, oldest first
// @Tags         Transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {array}   ledger.HistoryEntry
// @Failure      404  {object}  models.ErrorResponse
// @Failure      501  {object}  models.ErrorResponse
// @Router       /api/transactions/{id}/history [get]
func (h *Handler) GetTransactionHistory(c *gin.Context) {
	history, err := h.ledger.GetTransactionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "transaction history")
		return
	}
	c.JSON(http.StatusOK, history)
}

// UpdateTransaction godoc
// @Summary      Update transaction
// @Description  Replace type, amount, category, description and date. Identity fields are kept.
// @Tags         Transactions
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Transaction ID"
// @Param        request  body      models.UpdateTransactionRequest  true  "New values"
// @Success      200      {object}  models.TransactionResponse
// @Failure      400      {object}  models.ErrorResponse
// @Failure      404      {object}  models.ErrorResponse
// @Router       /api/transactions/{id} [put]
func (h *Handler) UpdateTransaction(c *gin.Context) {
	var req models.UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidation(c, err)
		return
	}

	tx, err := h.ledger.UpdateTransaction(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err, "update transaction")
		return
	}

	c.JSON(http.StatusOK, models.TransactionResponse{
		Success:     true,
		Message:     "Transaction updated successfully",
		Transaction: tx,
	})
}

// DeleteTransaction godoc
// @Summary      Delete transaction
// @Description  Remove a transaction and return the record it held
// @Tags         Transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  models.TransactionResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/transactions/{id} [delete]
func (h *Handler) DeleteTransaction(c *gin.Context) {
	tx, err := h.ledger.DeleteTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "delete transaction")
		return
	}

	c.JSON(http.StatusOK, models.TransactionResponse{
		Success:     true,
		Message:     "Transaction deleted successfully",
		Transaction: tx,
	})
}

// =============================================================================
// SME Queries
// =============================================================================

// GetTransactionsBySME godoc
// @Summary      List transactions of an SME
// @Tags         SME
// @Produce      json
// @Param        smeId  path      string  true  "SME ID"
// @Success      200    {array}   ledger.Transaction
// @Router       /api/transactions/sme/{smeId} [get]
func (h *Handler) GetTransactionsBySME(c *gin.Context) {
	records, err := h.ledger.GetTransactionsBySME(c.Request.Context(), c.Param("smeId"))
	if err != nil {
		h.respondError(c, err, "list SME transactions")
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetCashFlowSummary godoc
// @Summary      Cash-flow summary
// @Description  Total inflow, total outflow, net balance and record count of an SME
// @Tags         SME
// @Produce      json
// @Param        smeId  path      string  true  "SME ID"
// @Success      200    {object}  ledger.CashFlowSummary
// @Router       /api/summary/{smeId} [get]
func (h *Handler) GetCashFlowSummary(c *gin.Context) {
	summary, err := h.ledger.GetCashFlowSummary(c.Request.Context(), c.Param("smeId"))
	if err != nil {
		h.respondError(c, err, "cash-flow summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}
