package models

import (
	"encoding/json"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
)

// =============================================================================
// Transactions
// =============================================================================

// CreateTransactionRequest is the body of POST /api/transactions. When
// transactionID is omitted the service assigns one.
type CreateTransactionRequest struct {
	TransactionID string      `json:"transactionID"`
	SMEID         string      `json:"smeID" binding:"required"`
	Type          string      `json:"type" binding:"required,oneof=inflow outflow"`
	Amount        json.Number `json:"amount" binding:"required" swaggertype:"number"`
	Category      string      `json:"category" binding:"required"`
	Description   string      `json:"description"`
	Date          string      `json:"date" binding:"required,datetime=2006-01-02"`
	CreatedBy     string      `json:"createdBy"`
}

func (r *CreateTransactionRequest) Params(id string) ledger.CreateParams {
	return ledger.CreateParams{
		TransactionID: id,
		SMEID:         r.SMEID,
		Type:          ledger.TxType(r.Type),
		Amount:        r.Amount.String(),
		Category:      r.Category,
		Description:   r.Description,
		Date:          r.Date,
		CreatedBy:     r.CreatedBy,
	}
}

// UpdateTransactionRequest is the body of PUT /api/transactions/{id}.
type UpdateTransactionRequest struct {
	Type        string      `json:"type" binding:"required,oneof=inflow outflow"`
	Amount      json.Number `json:"amount" binding:"required" swaggertype:"number"`
	Category    string      `json:"category" binding:"required"`
	Description string      `json:"description"`
	Date        string      `json:"date" binding:"required,datetime=2006-01-02"`
}

func (r *UpdateTransactionRequest) Params() ledger.UpdateParams {
	return ledger.UpdateParams{
		Type:        ledger.TxType(r.Type),
		Amount:      r.Amount.String(),
		Category:    r.Category,
		Description: r.Description,
		Date:        r.Date,
	}
}

// =============================================================================
// API Responses
// =============================================================================

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type TransactionResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message,omitempty"`
	Transaction *ledger.Transaction `json:"transaction"`
}

type ExistsResponse struct {
	TransactionID string `json:"transactionID"`
	Exists        bool   `json:"exists"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Backend string `json:"backend"`
}

type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Details   string                 `json:"details,omitempty"`
	Code      string                 `json:"code,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}
