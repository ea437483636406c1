package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

// DefaultIdentity is recorded as createdBy when the caller supplies none and
// no other fallback is configured.
const DefaultIdentity = "admin"

// ScanPolicy decides what a full scan does with values that fail to decode.
type ScanPolicy int

const (
	// Lenient keeps malformed values in the result as raw records.
	Lenient ScanPolicy = iota
	// Strict aborts the scan with ErrMalformedRecord.
	Strict
)

func ParseScanPolicy(s string) (ScanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return Lenient, fmt.Errorf("unknown scan policy %q", s)
}

func (p ScanPolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Contract enforces transaction semantics over a state store.
type Contract struct {
	store    state.Store
	now      func() time.Time
	identity string
	policy   ScanPolicy
	logger   zerolog.Logger

	// writeMu serializes read-modify-write units for stores that are not a
	// state.Transactor.
	writeMu sync.Mutex
}

type Option func(*Contract)

// WithClock sets the source of timestamp and lastModified. Chaincode passes
// the proposal timestamp so that every endorser computes the same record.
func WithClock(now func() time.Time) Option {
	return func(c *Contract) { c.now = now }
}

// WithDefaultIdentity sets the createdBy fallback.
func WithDefaultIdentity(id string) Option {
	return func(c *Contract) {
		if id != "" {
			c.identity = id
		}
	}
}

func WithScanPolicy(p ScanPolicy) Option {
	return func(c *Contract) { c.policy = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Contract) { c.logger = l }
}

func New(store state.Store, opts ...Option) *Contract {
	c := &Contract{
		store:    store,
		now:      time.Now,
		identity: DefaultIdentity,
		policy:   Lenient,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitLedger writes the seed set, overwriting records with the same IDs and
// leaving every other key alone.
func (c *Contract) InitLedger(ctx context.Context) error {
	return c.atomic(ctx, func(s state.Store) error {
		for _, tx := range SeedTransactions() {
			if err := c.put(ctx, s, &tx); err != nil {
				return err
			}
			c.logger.Debug().Str("transactionId", tx.TransactionID).Msg("Seed transaction written")
		}
		return nil
	})
}

func (c *Contract) CreateTransaction(ctx context.Context, p CreateParams) (*Transaction, error) {
	id := strings.TrimSpace(p.TransactionID)
	if id == "" {
		return nil, fmt.Errorf("%w: transactionID is required", ErrInvalidArgument)
	}
	amount, err := NormalizeAmount(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}

	createdBy := p.CreatedBy
	if createdBy == "" {
		createdBy = c.identity
	}

	var created *Transaction
	err = c.atomic(ctx, func(s state.Store) error {
		exists, err := c.exists(ctx, s, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("transaction %s: %w", id, ErrAlreadyExists)
		}

		tx := &Transaction{
			TransactionID: id,
			SMEID:         p.SMEID,
			Type:          p.Type,
			Amount:        amount,
			Category:      p.Category,
			Description:   p.Description,
			Date:          p.Date,
			Timestamp:     c.stamp(),
			CreatedBy:     createdBy,
		}
		if err := c.put(ctx, s, tx); err != nil {
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Contract) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	return c.get(ctx, c.store, id)
}

// UpdateTransaction replaces the mutable fields. transactionID, smeID,
// createdBy and timestamp keep their stored values.
func (c *Contract) UpdateTransaction(ctx context.Context, id string, p UpdateParams) (*Transaction, error) {
	amount, err := NormalizeAmount(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}

	var updated *Transaction
	err = c.atomic(ctx, func(s state.Store) error {
		tx, err := c.get(ctx, s, id)
		if err != nil {
			return err
		}

		tx.Type = p.Type
		tx.Amount = amount
		tx.Category = p.Category
		tx.Description = p.Description
		tx.Date = p.Date
		tx.LastModified = c.stamp()

		if err := c.put(ctx, s, tx); err != nil {
			return err
		}
		updated = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransaction removes the key and returns the record it held. A value
// that no longer decodes is still removed; only its ID is returned then.
func (c *Contract) DeleteTransaction(ctx context.Context, id string) (*Transaction, error) {
	var deleted *Transaction
	err := c.atomic(ctx, func(s state.Store) error {
		value, err := c.read(ctx, s, id)
		if err != nil {
			return err
		}
		tx, err := decode(value)
		if err != nil {
			tx = &Transaction{TransactionID: id}
		}
		if err := s.Delete(ctx, id); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
			}
			return storeFailure("delete "+id, err)
		}
		deleted = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// TransactionExists reports whether id is present in the store.
func (c *Contract) TransactionExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, c.store, id)
}

// GetAllTransactions scans the store in key order using the contract's scan
// policy.
func (c *Contract) GetAllTransactions(ctx context.Context) ([]Record, error) {
	return c.ScanTransactions(ctx, c.policy)
}

func (c *Contract) ScanTransactions(ctx context.Context, policy ScanPolicy) ([]Record, error) {
	it, err := c.store.Scan(ctx)
	if err != nil {
		return nil, storeFailure("scan", err)
	}
	defer it.Close()

	records := []Record{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, storeFailure("scan", err)
		}

		tx, err := decode(kv.Value)
		if err != nil {
			if policy == Strict {
				return nil, fmt.Errorf("key %s: %w", kv.Key, err)
			}
			c.logger.Warn().Str("key", kv.Key).Err(err).Msg("Keeping undecodable value as raw record")
			records = append(records, Record{Raw: string(kv.Value)})
			continue
		}
		records = append(records, Record{Transaction: tx})
	}
	return records, nil
}

// GetTransactionsBySME filters the full scan, keeping scan order.
func (c *Contract) GetTransactionsBySME(ctx context.Context, smeID string) ([]Record, error) {
	all, err := c.GetAllTransactions(ctx)
	if err != nil {
		return nil, err
	}

	filtered := []Record{}
	for _, r := range all {
		if r.Transaction != nil && r.Transaction.SMEID == smeID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// GetCashFlowSummary totals inflows and outflows of one SME. Records of any
// other type are counted but contribute to neither total.
func (c *Contract) GetCashFlowSummary(ctx context.Context, smeID string) (*CashFlowSummary, error) {
	records, err := c.GetTransactionsBySME(ctx, smeID)
	if err != nil {
		return nil, err
	}

	inflow, outflow := decimal.Zero, decimal.Zero
	for _, r := range records {
		switch r.Transaction.Type {
		case Inflow:
			inflow = inflow.Add(decimal.NewFromFloat(r.Transaction.Amount))
		case Outflow:
			outflow = outflow.Add(decimal.NewFromFloat(r.Transaction.Amount))
		}
	}

	return &CashFlowSummary{
		SMEID:            smeID,
		TotalInflow:      inflow.InexactFloat64(),
		TotalOutflow:     outflow.InexactFloat64(),
		NetBalance:       inflow.Sub(outflow).InexactFloat64(),
		TransactionCount: len(records),
	}, nil
}

// GetTransactionHistory lists every committed version of id, oldest first.
func (c *Contract) GetTransactionHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	h, ok := c.store.(state.Historian)
	if !ok {
		return nil, fmt.Errorf("transaction history: %w", errors.ErrUnsupported)
	}

	versions, err := h.History(ctx, id)
	if err != nil {
		return nil, storeFailure("history "+id, err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}

	entries := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		entry := HistoryEntry{
			TxID:      v.TxID,
			Timestamp: v.Timestamp.UTC().Format(TimeLayout),
			IsDelete:  v.IsDelete,
		}
		if !v.IsDelete {
			if tx, err := decode(v.Value); err == nil {
				entry.Transaction = tx
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Contract) atomic(ctx context.Context, fn func(state.Store) error) error {
	if t, ok := c.store.(state.Transactor); ok {
		return t.Atomic(ctx, fn)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(c.store)
}

func (c *Contract) stamp() string {
	return c.now().UTC().Format(TimeLayout)
}

func (c *Contract) read(ctx context.Context, s state.Store, id string) ([]byte, error) {
	value, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, storeFailure("read "+id, err)
	}
	return value, nil
}

func (c *Contract) get(ctx context.Context, s state.Store, id string) (*Transaction, error) {
	value, err := c.read(ctx, s, id)
	if err != nil {
		return nil, err
	}
	tx, err := decode(value)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return tx, nil
}

func (c *Contract) exists(ctx context.Context, s state.Store, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, state.ErrNotFound):
		return false, nil
	default:
		return false, storeFailure("read "+id, err)
	}
}

func (c *Contract) put(ctx context.Context, s state.Store, tx *Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction %s: %w", tx.TransactionID, err)
	}
	if err := s.Put(ctx, tx.TransactionID, data); err != nil {
		return storeFailure("write "+tx.TransactionID, err)
	}
	return nil
}

// storeFailure tags err as ErrStoreUnavailable unless the store already did.
func storeFailure(op string, err error) error {
	if errors.Is(err, state.ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, state.ErrUnavailable, err)
}
