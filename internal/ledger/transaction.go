// Package ledger implements the SME cash-flow transaction contract on top of
// a state.Store. The same code runs inside Fabric chaincode and in-process
// over the local stores, so both realizations share CRUD and aggregation
// semantics.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

// TimeLayout is the ISO instant format used for timestamp and lastModified.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStoreUnavailable is the same error value as state.ErrUnavailable.
	ErrStoreUnavailable = state.ErrUnavailable
	ErrMalformedRecord  = errors.New("malformed record")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidAmount    = fmt.Errorf("%w: amount is not a number", ErrInvalidArgument)
)

type TxType string

const (
	Inflow  TxType = "inflow"
	Outflow TxType = "outflow"
)

func (t TxType) Valid() bool {
	return t == Inflow || t == Outflow
}

// Transaction is the persisted record. Field order is part of the wire
// format: every peer must serialize a record to identical bytes.
type Transaction struct {
	TransactionID string  `json:"transactionID"`
	SMEID         string  `json:"smeID"`
	Type          TxType  `json:"type"`
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Date          string  `json:"date"`
	Timestamp     string  `json:"timestamp"`
	CreatedBy     string  `json:"createdBy"`
	LastModified  string  `json:"lastModified,omitempty"`
}

// Record is one element of a scan. Transaction is nil when the stored value
// could not be decoded, in which case Raw holds the stored text.
type Record struct {
	Transaction *Transaction
	Raw         string
}

func (r Record) Malformed() bool {
	return r.Transaction == nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Transaction != nil {
		return json.Marshal(r.Transaction)
	}
	return json.Marshal(r.Raw)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		r.Transaction = nil
		return json.Unmarshal(data, &r.Raw)
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return err
	}
	r.Transaction = &tx
	r.Raw = ""
	return nil
}

// CashFlowSummary aggregates the records of one SME.
type CashFlowSummary struct {
	SMEID            string  `json:"smeID"`
	TotalInflow      float64 `json:"totalInflow"`
	TotalOutflow     float64 `json:"totalOutflow"`
	NetBalance       float64 `json:"netBalance"`
	TransactionCount int     `json:"transactionCount"`
}

// HistoryEntry is one committed version of a transaction key.
type HistoryEntry struct {
	TxID        string       `json:"txId"`
	Timestamp   string       `json:"timestamp"`
	IsDelete    bool         `json:"isDelete"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// CreateParams carries the positional arguments of CreateTransaction.
// Amount is the caller's text and is normalized before persistence.
type CreateParams struct {
	TransactionID string
	SMEID         string
	Type          TxType
	Amount        string
	Category      string
	Description   string
	Date          string
	CreatedBy     string
}

// UpdateParams carries the mutable fields of UpdateTransaction.
type UpdateParams struct {
	Type        TxType
	Amount      string
	Category    string
	Description string
	Date        string
}

func decode(value []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(value, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &tx, nil
}
