package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/models"
)

// LedgerService is what the HTTP handlers need from a ledger backend.
type LedgerService interface {
	Backend() string

	InitLedger(ctx context.Context) error
	CreateTransaction(ctx context.Context, req *models.CreateTransactionRequest) (*ledger.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, req *models.UpdateTransactionRequest) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) (*ledger.Transaction, error)
	TransactionExists(ctx context.Context, id string) (bool, error)

	GetAllTransactions(ctx context.Context) ([]ledger.Record, error)
	GetTransactionsBySME(ctx context.Context, smeID string) ([]ledger.Record, error)
	GetCashFlowSummary(ctx context.Context, smeID string) (*ledger.CashFlowSummary, error)
	GetTransactionHistory(ctx context.Context, id string) ([]ledger.HistoryEntry, error)
}

// LocalService runs the ledger contract in-process over one of the local
// state stores.
type LocalService struct {
	backend  string
	contract *ledger.Contract
	ids      ledger.IDGenerator
}

func NewLocalService(backend string, contract *ledger.Contract, ids ledger.IDGenerator) *LocalService {
	return &LocalService{
		backend:  backend,
		contract: contract,
		ids:      ids,
	}
}

func (s *LocalService) Backend() string {
	return s.backend
}

func (s *LocalService) InitLedger(ctx context.Context) error {
	if err := s.contract.InitLedger(ctx); err != nil {
		return err
	}
	log.Info().Str("backend", s.backend).Msg("Ledger initialized")
	return nil
}

func (s *LocalService) CreateTransaction(ctx context.Context, req *models.CreateTransactionRequest) (*ledger.Transaction, error) {
	id := strings.TrimSpace(req.TransactionID)
	if id == "" {
		next, err := s.ids.NextID(ctx)
		if err != nil {
			return nil, err
		}
		id = next
	}

	tx, err := s.contract.CreateTransaction(ctx, req.Params(id))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transactionId", tx.TransactionID).
		Str("smeId", tx.SMEID).
		Str("type", string(tx.Type)).
		Msg("Transaction created")
	return tx, nil
}

func (s *LocalService) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return s.contract.GetTransaction(ctx, id)
}

func (s *LocalService) UpdateTransaction(ctx context.Context, id string, req *models.UpdateTransactionRequest) (*ledger.Transaction, error) {
	tx, err := s.contract.UpdateTransaction(ctx, id, req.Params())
	if err != nil {
		return nil, err
	}
	log.Info().Str("transactionId", id).Msg("Transaction updated")
	return tx, nil
}

func (s *LocalService) DeleteTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	tx, err := s.contract.DeleteTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("transactionId", id).Msg("Transaction deleted")
	return tx, nil
}

func (s *LocalService) TransactionExists(ctx context.Context, id string) (bool, error) {
	return s.contract.TransactionExists(ctx, id)
}

func (s *LocalService) GetAllTransactions(ctx context.Context) ([]ledger.Record, error) {
	return s.contract.GetAllTransactions(ctx)
}

func (s *LocalService) GetTransactionsBySME(ctx context.Context, smeID string) ([]ledger.Record, error) {
	return s.contract.GetTransactionsBySME(ctx, smeID)
}

func (s *LocalService) GetCashFlowSummary(ctx context.Context, smeID string) (*ledger.CashFlowSummary, error) {
	return s.contract.GetCashFlowSummary(ctx, smeID)
}

func (s *LocalService) GetTransactionHistory(ctx context.Context, id string) ([]ledger.HistoryEntry, error) {
	return s.contract.GetTransactionHistory(ctx, id)
}
