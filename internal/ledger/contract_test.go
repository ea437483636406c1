package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

// plainStore hides the optional capabilities of the wrapped store so the
// contract falls back to its own writer lock.
type plainStore struct {
	state.Store
}

// brokenStore fails every operation with a transport error.
type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (brokenStore) Put(context.Context, string, []byte) error       { return errDown }
func (brokenStore) Delete(context.Context, string) error            { return errDown }
func (brokenStore) Scan(context.Context) (state.Iterator, error) { return nil, errDown }

type backend struct {
	name string
	open func(t *testing.T) state.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(*testing.T) state.Store { return state.NewMemoryStore() }},
		{"memory-no-transactor", func(*testing.T) state.Store { return plainStore{state.NewMemoryStore()} }},
		{"sqlite", func(t *testing.T) state.Store {
			s, err := state.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), false)
			if err != nil {
				t.Fatalf("OpenSQLite error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, c *ledger.Contract, s state.Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			fn(t, ledger.New(s, ledger.WithClock(stepClock())), s)
		})
	}
}

func params(id, sme string, typ ledger.TxType, amount string) ledger.CreateParams {
	return ledger.CreateParams{
		TransactionID: id,
		SMEID:         sme,
		Type:          typ,
		Amount:        amount,
		Category:      "sales",
		Description:   "test " + id,
		Date:          "2025-11-01",
		CreatedBy:     "owner@" + sme,
	}
}

func TestCreateTransaction_Uniqueness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()

		first, err := c.CreateTransaction(ctx, params("TX100", "SME001", ledger.Inflow, "100"))
		if err != nil {
			t.Fatalf("first create error = %v", err)
		}

		second := params("TX100", "SME009", ledger.Outflow, "999")
		if _, err := c.CreateTransaction(ctx, second); !errors.Is(err, ledger.ErrAlreadyExists) {
			t.Fatalf("duplicate create error = %v, want ErrAlreadyExists", err)
		}

		stored, err := c.GetTransaction(ctx, "TX100")
		if err != nil {
			t.Fatal(err)
		}
		if *stored != *first {
			t.Errorf("stored record = %+v, want first write %+v", stored, first)
		}
	})
}

func TestCreateTransaction_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		p := params("TX200", "SME002", ledger.Outflow, " 45000.50 ")

		created, err := c.CreateTransaction(ctx, p)
		if err != nil {
			t.Fatalf("create error = %v", err)
		}
		if created.Timestamp == "" || created.LastModified != "" {
			t.Errorf("timestamp = %q lastModified = %q", created.Timestamp, created.LastModified)
		}

		exists, err := c.TransactionExists(ctx, "TX200")
		if err != nil || !exists {
			t.Fatalf("TransactionExists = %v, %v; want true", exists, err)
		}

		got, err := c.GetTransaction(ctx, "TX200")
		if err != nil {
			t.Fatal(err)
		}
		want := ledger.Transaction{
			TransactionID: "TX200",
			SMEID:         "SME002",
			Type:          ledger.Outflow,
			Amount:        45000.5,
			Category:      p.Category,
			Description:   p.Description,
			Date:          p.Date,
			Timestamp:     created.Timestamp,
			CreatedBy:     p.CreatedBy,
		}
		if *got != want {
			t.Errorf("GetTransaction = %+v, want %+v", got, want)
		}

		raw, err := s.Get(ctx, "TX200")
		if err != nil {
			t.Fatal(err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatal(err)
		}
		if _, ok := fields["amount"].(float64); !ok {
			t.Errorf("amount persisted as %T, want a JSON number", fields["amount"])
		}
		if _, ok := fields["lastModified"]; ok {
			t.Error("lastModified should be absent before any update")
		}
	})
}

func TestCreateTransaction_DefaultsCreatedBy(t *testing.T) {
	ctx := context.Background()
	c := ledger.New(state.NewMemoryStore(), ledger.WithDefaultIdentity("x509::appUser"))

	p := params("TX300", "SME001", ledger.Inflow, "1")
	p.CreatedBy = ""
	tx, err := c.CreateTransaction(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if tx.CreatedBy != "x509::appUser" {
		t.Errorf("createdBy = %q, want fallback identity", tx.CreatedBy)
	}

	plain := ledger.New(state.NewMemoryStore())
	tx, _ = plain.CreateTransaction(ctx, p)
	if tx.CreatedBy != ledger.DefaultIdentity {
		t.Errorf("createdBy = %q, want %q", tx.CreatedBy, ledger.DefaultIdentity)
	}
}

func TestCreateTransaction_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	c := ledger.New(s)

	cases := []struct {
		name string
		p    ledger.CreateParams
		want error
	}{
		{"empty id", params(" ", "SME001", ledger.Inflow, "1"), ledger.ErrInvalidArgument},
		{"empty amount", params("TX1", "SME001", ledger.Inflow, ""), ledger.ErrInvalidAmount},
		{"text amount", params("TX1", "SME001", ledger.Inflow, "ten"), ledger.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.CreateTransaction(ctx, tc.p)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("rejected creates left %d keys behind", s.Len())
	}
}

func TestUpdateTransaction_PreservesIdentity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		created, err := c.CreateTransaction(ctx, params("TX400", "SME001", ledger.Inflow, "100"))
		if err != nil {
			t.Fatal(err)
		}

		updated, err := c.UpdateTransaction(ctx, "TX400", ledger.UpdateParams{
			Type:        ledger.Outflow,
			Amount:      "250.25",
			Category:    "rent",
			Description: "office rent",
			Date:        "2025-11-05",
		})
		if err != nil {
			t.Fatalf("update error = %v", err)
		}

		if updated.TransactionID != created.TransactionID ||
			updated.SMEID != created.SMEID ||
			updated.CreatedBy != created.CreatedBy ||
			updated.Timestamp != created.Timestamp {
			t.Errorf("identity fields changed: before %+v after %+v", created, updated)
		}
		if updated.Type != ledger.Outflow || updated.Amount != 250.25 || updated.Category != "rent" ||
			updated.Description != "office rent" || updated.Date != "2025-11-05" {
			t.Errorf("mutable fields not applied: %+v", updated)
		}
		if updated.LastModified == "" || updated.LastModified < created.Timestamp {
			t.Errorf("lastModified = %q, want >= %q", updated.LastModified, created.Timestamp)
		}

		stored, _ := c.GetTransaction(ctx, "TX400")
		if *stored != *updated {
			t.Errorf("stored = %+v, want %+v", stored, updated)
		}
	})
}

func TestDeleteTransaction_Removes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		created, _ := c.CreateTransaction(ctx, params("TX500", "SME001", ledger.Inflow, "10"))
		_, _ = c.CreateTransaction(ctx, params("TX501", "SME001", ledger.Inflow, "10"))

		deleted, err := c.DeleteTransaction(ctx, "TX500")
		if err != nil {
			t.Fatalf("delete error = %v", err)
		}
		if *deleted != *created {
			t.Errorf("deleted record = %+v, want %+v", deleted, created)
		}

		if _, err := c.GetTransaction(ctx, "TX500"); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("GetTransaction after delete error = %v, want ErrNotFound", err)
		}
		if ok, _ := c.TransactionExists(ctx, "TX500"); ok {
			t.Error("TransactionExists true after delete")
		}

		all, err := c.GetAllTransactions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range all {
			if r.Transaction != nil && r.Transaction.TransactionID == "TX500" {
				t.Error("deleted record still listed")
			}
		}
		if len(all) != 1 {
			t.Errorf("got %d records, want 1", len(all))
		}
	})
}

func TestNotFoundPropagation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()

		_, err := c.GetTransaction(ctx, "TX404")
		if !errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrStoreUnavailable) {
			t.Errorf("GetTransaction error = %v", err)
		}

		_, err = c.UpdateTransaction(ctx, "TX404", ledger.UpdateParams{Type: ledger.Inflow, Amount: "1"})
		if !errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrStoreUnavailable) {
			t.Errorf("UpdateTransaction error = %v", err)
		}

		_, err = c.DeleteTransaction(ctx, "TX404")
		if !errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrStoreUnavailable) {
			t.Errorf("DeleteTransaction error = %v", err)
		}

		if ok, err := c.TransactionExists(ctx, "TX404"); ok || err != nil {
			t.Errorf("TransactionExists = %v, %v; want false, nil", ok, err)
		}
	})
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	c := ledger.New(brokenStore{})

	checks := map[string]error{}
	_, checks["get"] = c.GetTransaction(ctx, "TX1")
	_, checks["create"] = c.CreateTransaction(ctx, params("TX1", "SME001", ledger.Inflow, "1"))
	_, checks["update"] = c.UpdateTransaction(ctx, "TX1", ledger.UpdateParams{Amount: "1"})
	_, checks["delete"] = c.DeleteTransaction(ctx, "TX1")
	_, checks["exists"] = c.TransactionExists(ctx, "TX1")
	_, checks["all"] = c.GetAllTransactions(ctx)
	_, checks["summary"] = c.GetCashFlowSummary(ctx, "SME001")

	for op, err := range checks {
		if !errors.Is(err, ledger.ErrStoreUnavailable) {
			t.Errorf("%s error = %v, want ErrStoreUnavailable", op, err)
		}
		if errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("%s reported a store failure as not found", op)
		}
		if !errors.Is(err, errDown) {
			t.Errorf("%s lost the underlying cause: %v", op, err)
		}
	}
}

func TestGetCashFlowSummary(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		rows := []ledger.CreateParams{
			params("TX001", "SME001", ledger.Inflow, "150000"),
			params("TX002", "SME001", ledger.Outflow, "45000"),
			params("TX003", "SME001", ledger.Inflow, "85000"),
			params("TX004", "SME001", ledger.Outflow, "12000"),
			params("TX005", "SME002", ledger.Inflow, "999"),
		}
		for _, p := range rows {
			if _, err := c.CreateTransaction(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		got, err := c.GetCashFlowSummary(ctx, "SME001")
		if err != nil {
			t.Fatal(err)
		}
		want := ledger.CashFlowSummary{
			SMEID:            "SME001",
			TotalInflow:      235000,
			TotalOutflow:     57000,
			NetBalance:       178000,
			TransactionCount: 4,
		}
		if *got != want {
			t.Errorf("summary = %+v, want %+v", got, want)
		}
	})
}

func TestGetCashFlowSummary_UnknownTypeCountedOnly(t *testing.T) {
	ctx := context.Background()
	c := ledger.New(state.NewMemoryStore())
	_, _ = c.CreateTransaction(ctx, params("TX1", "SME001", ledger.Inflow, "0.1"))
	_, _ = c.CreateTransaction(ctx, params("TX2", "SME001", ledger.Inflow, "0.2"))
	_, _ = c.CreateTransaction(ctx, params("TX3", "SME001", ledger.TxType("transfer"), "500"))

	got, err := c.GetCashFlowSummary(ctx, "SME001")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalInflow != 0.3 || got.TotalOutflow != 0 || got.NetBalance != 0.3 || got.TransactionCount != 3 {
		t.Errorf("summary = %+v", got)
	}

	empty, err := c.GetCashFlowSummary(ctx, "SME404")
	if err != nil {
		t.Fatal(err)
	}
	if *empty != (ledger.CashFlowSummary{SMEID: "SME404"}) {
		t.Errorf("summary of unknown SME = %+v", empty)
	}
}

func TestGetTransactionsBySME(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		order := []struct{ id, sme string }{
			{"TX001", "SME001"}, {"TX002", "SME002"}, {"TX003", "SME001"},
			{"TX004", "SME002"}, {"TX005", "SME002"},
		}
		for _, o := range order {
			if _, err := c.CreateTransaction(ctx, params(o.id, o.sme, ledger.Inflow, "1")); err != nil {
				t.Fatal(err)
			}
		}

		got, err := c.GetTransactionsBySME(ctx, "SME002")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"TX002", "TX004", "TX005"}
		if len(got) != len(want) {
			t.Fatalf("got %d records, want %d", len(got), len(want))
		}
		for i, id := range want {
			if got[i].Transaction.TransactionID != id || got[i].Transaction.SMEID != "SME002" {
				t.Errorf("record %d = %+v, want %s", i, got[i].Transaction, id)
			}
		}

		none, err := c.GetTransactionsBySME(ctx, "SME404")
		if err != nil || none == nil || len(none) != 0 {
			t.Errorf("unknown SME = %v, %v; want empty non-nil list", none, err)
		}
	})
}

func TestInitLedger_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		seed := ledger.SeedTransactions()

		if err := c.InitLedger(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := c.UpdateTransaction(ctx, seed[0].TransactionID, ledger.UpdateParams{Type: ledger.Outflow, Amount: "1"}); err != nil {
			t.Fatal(err)
		}
		if err := c.InitLedger(ctx); err != nil {
			t.Fatal(err)
		}

		all, err := c.GetAllTransactions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != len(seed) {
			t.Fatalf("got %d records, want exactly the %d seeds", len(all), len(seed))
		}
		for i := range seed {
			if *all[i].Transaction != seed[i] {
				t.Errorf("record %d = %+v, want seed %+v", i, all[i].Transaction, seed[i])
			}
		}
	})
}

func TestInitLedger_KeepsOtherRecords(t *testing.T) {
	ctx := context.Background()
	c := ledger.New(state.NewMemoryStore())
	if _, err := c.CreateTransaction(ctx, params("ZZ1", "SME002", ledger.Inflow, "5")); err != nil {
		t.Fatal(err)
	}
	if err := c.InitLedger(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.TransactionExists(ctx, "ZZ1"); !ok {
		t.Error("InitLedger removed a record outside the seed set")
	}

	summary, _ := c.GetCashFlowSummary(ctx, "SME001")
	if summary.TotalInflow != 555000 || summary.TotalOutflow != 100000 || summary.TransactionCount != 8 {
		t.Errorf("seed summary = %+v", summary)
	}
}

func TestScanPolicy(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	c := ledger.New(s)
	_, _ = c.CreateTransaction(ctx, params("TX001", "SME001", ledger.Inflow, "10"))
	_ = s.Put(ctx, "TX002", []byte("not json"))
	_, _ = c.CreateTransaction(ctx, params("TX003", "SME001", ledger.Outflow, "4"))

	lenient, err := c.ScanTransactions(ctx, ledger.Lenient)
	if err != nil {
		t.Fatalf("lenient scan error = %v", err)
	}
	if len(lenient) != 3 || !lenient[1].Malformed() || lenient[1].Raw != "not json" {
		t.Fatalf("lenient scan = %+v", lenient)
	}

	out, _ := json.Marshal(lenient)
	var decoded []ledger.Record
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded[1].Malformed() || decoded[0].Transaction.TransactionID != "TX001" {
		t.Errorf("records did not survive the wire: %s", out)
	}

	if _, err := c.ScanTransactions(ctx, ledger.Strict); !errors.Is(err, ledger.ErrMalformedRecord) {
		t.Errorf("strict scan error = %v, want ErrMalformedRecord", err)
	}
	strict := ledger.New(s, ledger.WithScanPolicy(ledger.Strict))
	if _, err := strict.GetAllTransactions(ctx); !errors.Is(err, ledger.ErrMalformedRecord) {
		t.Errorf("strict contract scan error = %v, want ErrMalformedRecord", err)
	}

	summary, err := c.GetCashFlowSummary(ctx, "SME001")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TransactionCount != 2 || summary.NetBalance != 6 {
		t.Errorf("summary over malformed store = %+v", summary)
	}

	if _, err := c.GetTransaction(ctx, "TX002"); !errors.Is(err, ledger.ErrMalformedRecord) {
		t.Errorf("GetTransaction of malformed value error = %v", err)
	}
	deleted, err := c.DeleteTransaction(ctx, "TX002")
	if err != nil || deleted.TransactionID != "TX002" {
		t.Errorf("DeleteTransaction of malformed value = %+v, %v", deleted, err)
	}
}

func TestParseScanPolicy(t *testing.T) {
	for in, want := range map[string]ledger.ScanPolicy{"": ledger.Lenient, "Lenient": ledger.Lenient, "strict": ledger.Strict} {
		got, err := ledger.ParseScanPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseScanPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ledger.ParseScanPolicy("loose"); err == nil {
		t.Error("ParseScanPolicy accepted an unknown policy")
	}
}

func TestConcurrentCreates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *ledger.Contract, s state.Store) {
		ctx := context.Background()
		const n = 20

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := c.CreateTransaction(ctx, params(fmt.Sprintf("TX%03d", i), "SME001", ledger.Inflow, "1")); err != nil {
					t.Errorf("create %d error = %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		all, err := c.GetAllTransactions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != n {
			t.Errorf("got %d records, want %d", len(all), n)
		}

		var wins, dups atomic.Int32
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.CreateTransaction(ctx, params("DUP", "SME001", ledger.Inflow, "1"))
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ledger.ErrAlreadyExists):
					dups.Add(1)
				default:
					t.Errorf("unexpected error %v", err)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 || dups.Load() != n-1 {
			t.Errorf("wins = %d dups = %d, want 1 and %d", wins.Load(), dups.Load(), n-1)
		}
	})
}

func TestGetTransactionHistory(t *testing.T) {
	ctx := context.Background()
	c := ledger.New(state.NewMemoryStore(), ledger.WithClock(stepClock()))
	_, _ = c.CreateTransaction(ctx, params("TX001", "SME001", ledger.Inflow, "10"))
	_, _ = c.UpdateTransaction(ctx, "TX001", ledger.UpdateParams{Type: ledger.Inflow, Amount: "20"})
	_, _ = c.DeleteTransaction(ctx, "TX001")

	history, err := c.GetTransactionHistory(ctx, "TX001")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d entries, want 3", len(history))
	}
	if history[0].Transaction.Amount != 10 || history[1].Transaction.Amount != 20 {
		t.Errorf("history amounts = %v, %v", history[0].Transaction.Amount, history[1].Transaction.Amount)
	}
	if !history[2].IsDelete || history[2].Transaction != nil {
		t.Errorf("last entry = %+v, want a delete marker", history[2])
	}

	if _, err := c.GetTransactionHistory(ctx, "TX404"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("history of unknown key error = %v, want ErrNotFound", err)
	}

	noHistory := ledger.New(plainStore{state.NewMemoryStore()})
	if _, err := noHistory.GetTransactionHistory(ctx, "TX001"); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("history without Historian error = %v, want ErrUnsupported", err)
	}
}
