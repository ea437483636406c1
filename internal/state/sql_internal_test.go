package state

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/ledger.db", "data/ledger.db?_busy_timeout=5000&_journal_mode=WAL"},
		{":memory:", ":memory:?_busy_timeout=5000"},
		{"file:ledger?mode=memory&cache=shared", "file:ledger?mode=memory&cache=shared&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.path); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatal(err)
	}

	// Hold two connections at once so the pool cannot hand back the same one.
	for i := 0; i < 2; i++ {
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		var timeout int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatal(err)
		}
		if timeout != 5000 {
			t.Errorf("connection %d busy_timeout = %d, want 5000", i, timeout)
		}

		var mode string
		if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatal(err)
		}
		if mode != "wal" {
			t.Errorf("connection %d journal_mode = %q, want wal", i, mode)
		}
	}
}
