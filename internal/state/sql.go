package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// stateEntry is one row of the world_state table. Values are stored as the
// opaque serialized blob handed to Put.
type stateEntry struct {
	Key   string `gorm:"column:state_key;primaryKey"`
	Value []byte `gorm:"column:state_value;not null"`
}

func (stateEntry) TableName() string {
	return "world_state"
}

// SQLStore keeps the world state in a relational table through gorm.
type SQLStore struct {
	db *gorm.DB
	mu *sync.Mutex // serializes Atomic units
}

// OpenSQLite opens (creating if needed) a SQLite database file and migrates
// the world_state table.
func OpenSQLite(path string, logMode bool) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." && !isMemoryDSN(path) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	gormLogger := logger.Default
	if !logMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewSQLStore(db)
}

// NewSQLStore wraps an open gorm handle and migrates the world_state table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&stateEntry{}); err != nil {
		return nil, fmt.Errorf("migrate world_state: %w", err)
	}
	return &SQLStore{db: db, mu: &sync.Mutex{}}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var e stateEntry
	err := s.db.WithContext(ctx).Where("state_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	return e.Value, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	e := stateEntry{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_value"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Where("state_key = ?", key).Delete(&stateEntry{})
	if res.Error != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	return nil
}

// Scan streams rows ordered by key. A single SELECT reads one consistent
// snapshot of the table.
func (s *SQLStore) Scan(ctx context.Context) (Iterator, error) {
	db := s.db.WithContext(ctx)
	rows, err := db.Model(&stateEntry{}).Order("state_key asc").Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
	}

	fetch := func() (*KV, error) {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
			}
			return nil, nil
		}
		var e stateEntry
		if err := db.ScanRows(rows, &e); err != nil {
			return nil, fmt.Errorf("%w: scan row: %w", ErrUnavailable, err)
		}
		return &KV{Key: e.Key, Value: e.Value}, nil
	}
	return newCursorIterator(fetch, rows.Close), nil
}

// Atomic runs fn inside a database transaction. Units from this process are
// additionally serialized so concurrent writers queue instead of failing
// with a busy database.
func (s *SQLStore) Atomic(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLStore{db: tx, mu: s.mu})
	})
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteDSN appends the connection pragmas to path. The driver applies DSN
// parameters to every connection it opens, so pooled connections all wait
// on a locked database instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	params := "_busy_timeout=5000"
	if !isMemoryDSN(path) {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}
