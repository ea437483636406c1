package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/rs/zerolog/log"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
)

// CashflowContract exposes the ledger operations as chaincode transactions.
// Arguments are positional strings and results are JSON text.
type CashflowContract struct {
	contractapi.Contract
}

// InitLedger writes the sample transactions of SME001.
func (c *CashflowContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	l, err := c.bind(ctx)
	if err != nil {
		return err
	}
	return l.InitLedger(context.Background())
}

// CreateTransaction records a new transaction. An empty createdBy falls back
// to the submitting client's identity.
func (c *CashflowContract) CreateTransaction(ctx contractapi.TransactionContextInterface,
	transactionID, smeID, txType, amount, category, description, date, createdBy string) (string, error) {

	if strings.TrimSpace(smeID) == "" {
		return "", fmt.Errorf("%w: smeID is required", ledger.ErrInvalidArgument)
	}
	if err := checkType(txType); err != nil {
		return "", err
	}

	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	tx, err := l.CreateTransaction(context.Background(), ledger.CreateParams{
		TransactionID: transactionID,
		SMEID:         smeID,
		Type:          ledger.TxType(txType),
		Amount:        amount,
		Category:      category,
		Description:   description,
		Date:          date,
		CreatedBy:     createdBy,
	})
	if err != nil {
		return "", err
	}
	return toJSON(tx)
}

func (c *CashflowContract) GetTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	tx, err := l.GetTransaction(context.Background(), transactionID)
	if err != nil {
		return "", err
	}
	return toJSON(tx)
}

func (c *CashflowContract) UpdateTransaction(ctx contractapi.TransactionContextInterface,
	transactionID, txType, amount, category, description, date string) (string, error) {

	if err := checkType(txType); err != nil {
		return "", err
	}

	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	tx, err := l.UpdateTransaction(context.Background(), transactionID, ledger.UpdateParams{
		Type:        ledger.TxType(txType),
		Amount:      amount,
		Category:    category,
		Description: description,
		Date:        date,
	})
	if err != nil {
		return "", err
	}
	return toJSON(tx)
}

func (c *CashflowContract) DeleteTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	tx, err := l.DeleteTransaction(context.Background(), transactionID)
	if err != nil {
		return "", err
	}
	return toJSON(tx)
}

func (c *CashflowContract) TransactionExists(ctx contractapi.TransactionContextInterface, transactionID string) (bool, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return false, err
	}
	return l.TransactionExists(context.Background(), transactionID)
}

func (c *CashflowContract) GetAllTransactions(ctx contractapi.TransactionContextInterface) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	records, err := l.GetAllTransactions(context.Background())
	if err != nil {
		return "", err
	}
	return toJSON(records)
}

func (c *CashflowContract) GetTransactionsBySME(ctx contractapi.TransactionContextInterface, smeID string) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	records, err := l.GetTransactionsBySME(context.Background(), smeID)
	if err != nil {
		return "", err
	}
	return toJSON(records)
}

func (c *CashflowContract) GetCashFlowSummary(ctx contractapi.TransactionContextInterface, smeID string) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	summary, err := l.GetCashFlowSummary(context.Background(), smeID)
	if err != nil {
		return "", err
	}
	return toJSON(summary)
}

func (c *CashflowContract) GetTransactionHistory(ctx contractapi.TransactionContextInterface, transactionID string) (string, error) {
	l, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	history, err := l.GetTransactionHistory(context.Background(), transactionID)
	if err != nil {
		return "", err
	}
	return toJSON(history)
}

// =============================================================================
// Helper Functions
// =============================================================================

// bind binds a contract to the invocation's stub. Records are stamped with
// the proposal timestamp so every endorser writes identical bytes.
func (c *CashflowContract) bind(ctx contractapi.TransactionContextInterface) (*ledger.Contract, error) {
	stub := ctx.GetStub()

	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction timestamp: %v", err)
	}
	txTime := ts.AsTime()

	return ledger.New(NewStubStore(stub),
		ledger.WithClock(func() time.Time { return txTime }),
		ledger.WithDefaultIdentity(c.clientID(ctx)),
		ledger.WithLogger(log.Logger.With().Str("txId", stub.GetTxID()).Logger()),
	), nil
}

// clientID returns the submitter's identity, or "" when it cannot be read.
func (c *CashflowContract) clientID(ctx contractapi.TransactionContextInterface) string {
	identity := ctx.GetClientIdentity()
	if identity == nil {
		return ""
	}
	id, err := identity.GetID()
	if err != nil {
		return ""
	}
	return id
}

func checkType(txType string) error {
	if !ledger.TxType(txType).Valid() {
		return fmt.Errorf("%w: type must be %q or %q, got %q", ledger.ErrInvalidArgument, ledger.Inflow, ledger.Outflow, txType)
	}
	return nil
}

func toJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %v", err)
	}
	return string(data), nil
}
