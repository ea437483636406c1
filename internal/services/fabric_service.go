package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/status"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/models"
)

// Contract invokes the cashflow chaincode. *fabric.Connection implements it
// over the gateway's context-aware calls.
type Contract interface {
	Submit(ctx context.Context, name string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, name string, args ...string) ([]byte, error)
}

// FabricService invokes the cashflow chaincode through a Fabric Gateway.
type FabricService struct {
	contract Contract
	ids      ledger.IDGenerator
}

func NewFabricService(contract Contract) *FabricService {
	return &FabricService{
		contract: contract,
		ids:      ledger.UUIDGenerator{},
	}
}

func (s *FabricService) Backend() string {
	return "fabric"
}

func (s *FabricService) InitLedger(ctx context.Context) error {
	if _, err := s.submit(ctx, "InitLedger"); err != nil {
		return err
	}
	log.Info().Msg("Ledger initialized")
	return nil
}

func (s *FabricService) CreateTransaction(ctx context.Context, req *models.CreateTransactionRequest) (*ledger.Transaction, error) {
	id := strings.TrimSpace(req.TransactionID)
	if id == "" {
		next, err := s.ids.NextID(ctx)
		if err != nil {
			return nil, err
		}
		id = next
	}

	result, err := s.submit(ctx, "CreateTransaction",
		id,
		req.SMEID,
		req.Type,
		req.Amount.String(),
		req.Category,
		req.Description,
		req.Date,
		req.CreatedBy,
	)
	if err != nil {
		return nil, err
	}

	var tx ledger.Transaction
	if err := unmarshal(result, &tx); err != nil {
		return nil, err
	}

	log.Info().Str("transactionId", tx.TransactionID).Str("smeId", tx.SMEID).Msg("Transaction created")
	return &tx, nil
}

func (s *FabricService) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	result, err := s.evaluate(ctx, "GetTransaction", id)
	if err != nil {
		return nil, err
	}
	var tx ledger.Transaction
	if err := unmarshal(result, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *FabricService) UpdateTransaction(ctx context.Context, id string, req *models.UpdateTransactionRequest) (*ledger.Transaction, error) {
	result, err := s.submit(ctx, "UpdateTransaction",
		id,
		req.Type,
		req.Amount.String(),
		req.Category,
		req.Description,
		req.Date,
	)
	if err != nil {
		return nil, err
	}

	var tx ledger.Transaction
	if err := unmarshal(result, &tx); err != nil {
		return nil, err
	}

	log.Info().Str("transactionId", id).Msg("Transaction updated")
	return &tx, nil
}

func (s *FabricService) DeleteTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	result, err := s.submit(ctx, "DeleteTransaction", id)
	if err != nil {
		return nil, err
	}

	var tx ledger.Transaction
	if err := unmarshal(result, &tx); err != nil {
		return nil, err
	}

	log.Info().Str("transactionId", id).Msg("Transaction deleted")
	return &tx, nil
}

func (s *FabricService) TransactionExists(ctx context.Context, id string) (bool, error) {
	result, err := s.evaluate(ctx, "TransactionExists", id)
	if err != nil {
		return false, err
	}
	exists, err := strconv.ParseBool(strings.TrimSpace(string(result)))
	if err != nil {
		return false, fmt.Errorf("failed to parse TransactionExists result %q: %w", result, err)
	}
	return exists, nil
}

func (s *FabricService) GetAllTransactions(ctx context.Context) ([]ledger.Record, error) {
	return s.records(ctx, "GetAllTransactions")
}

func (s *FabricService) GetTransactionsBySME(ctx context.Context, smeID string) ([]ledger.Record, error) {
	return s.records(ctx, "GetTransactionsBySME", smeID)
}

func (s *FabricService) GetCashFlowSummary(ctx context.Context, smeID string) (*ledger.CashFlowSummary, error) {
	result, err := s.evaluate(ctx, "GetCashFlowSummary", smeID)
	if err != nil {
		return nil, err
	}
	var summary ledger.CashFlowSummary
	if err := unmarshal(result, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *FabricService) GetTransactionHistory(ctx context.Context, id string) ([]ledger.HistoryEntry, error) {
	result, err := s.evaluate(ctx, "GetTransactionHistory", id)
	if err != nil {
		return nil, err
	}
	history := []ledger.HistoryEntry{}
	if err := unmarshal(result, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func (s *FabricService) records(ctx context.Context, name string, args ...string) ([]ledger.Record, error) {
	result, err := s.evaluate(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	records := []ledger.Record{}
	if err := unmarshal(result, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FabricService) submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.contract.Submit(ctx, name, args...)
	if err != nil {
		return nil, chaincodeError(name, err)
	}
	return result, nil
}

func (s *FabricService) evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.contract.Evaluate(ctx, name, args...)
	if err != nil {
		return nil, chaincodeError(name, err)
	}
	return result, nil
}

func unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal chaincode result: %w", err)
	}
	return nil
}

// chaincodeMarkers maps text produced by the chaincode's ledger errors back
// to the sentinel that raised it. Order matters: the first match wins.
var chaincodeMarkers = []struct {
	text     string
	sentinel error
}{
	{"amount is not a number", ledger.ErrInvalidAmount},
	{"invalid argument:", ledger.ErrInvalidArgument},
	{": already exists", ledger.ErrAlreadyExists},
	{"malformed record", ledger.ErrMalformedRecord},
	{"state store unavailable", ledger.ErrStoreUnavailable},
	{"unsupported operation", errors.ErrUnsupported},
	{": not found", ledger.ErrNotFound},
}

// chaincodeError folds the peers' error details into the message and tags
// it with the matching ledger sentinel, if any.
func chaincodeError(name string, err error) error {
	msg := err.Error()

	if st := status.Convert(err); st != nil {
		for _, detail := range st.Details() {
			if d, ok := detail.(*gateway.ErrorDetail); ok {
				msg += fmt.Sprintf("; peer %s (%s): %s", d.GetAddress(), d.GetMspId(), d.GetMessage())
			}
		}
	}

	for _, m := range chaincodeMarkers {
		if strings.Contains(msg, m.text) {
			return fmt.Errorf("%s: %w: %s", name, m.sentinel, msg)
		}
	}
	return fmt.Errorf("%s: %s: %w", name, msg, err)
}
