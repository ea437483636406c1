// Package state provides the ordered key-value world state that ledger
// records are persisted into.
package state

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable wraps failures of the underlying store. It is distinct
	// from ErrNotFound and is never retried by this package.
	ErrUnavailable = errors.New("state store unavailable")
)

// KV is one entry produced by a scan.
type KV struct {
	Key   string
	Value []byte
}

// Iterator walks a scan in ascending key order. Callers must Close it.
type Iterator interface {
	HasNext() bool
	Next() (*KV, error)
	Close() error
}

// Store is the world state contract shared by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context) (Iterator, error)
}

// Transactor is implemented by stores that can run a read-modify-write
// unit exclusively. fn receives a Store bound to the unit.
type Transactor interface {
	Atomic(ctx context.Context, fn func(Store) error) error
}

// Version is one committed value of a key.
type Version struct {
	TxID      string
	Timestamp time.Time
	IsDelete  bool
	Value     []byte
}

// Historian is implemented by stores that keep every version of a key.
type Historian interface {
	History(ctx context.Context, key string) ([]Version, error)
}

// sliceIterator serves a snapshot taken at scan time.
type sliceIterator struct {
	entries []KV
	pos     int
}

func newSliceIterator(entries []KV) *sliceIterator {
	return &sliceIterator{entries: entries}
}

func (it *sliceIterator) HasNext() bool {
	return it.pos < len(it.entries)
}

func (it *sliceIterator) Next() (*KV, error) {
	if !it.HasNext() {
		return nil, errors.New("iterator exhausted")
	}
	kv := it.entries[it.pos]
	it.pos++
	return &kv, nil
}

func (it *sliceIterator) Close() error {
	it.entries = nil
	return nil
}

// Collect drains a scan into a slice. It is meant for tests and small stores.
func Collect(ctx context.Context, s Store) ([]KV, error) {
	it, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []KV
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, *kv)
	}
	return out, nil
}

// cursorIterator adapts a pull-style cursor to Iterator by reading one entry
// ahead. fetch returns nil, nil once the cursor is exhausted.
type cursorIterator struct {
	fetch   func() (*KV, error)
	release func() error

	head *KV
	err  error
}

func newCursorIterator(fetch func() (*KV, error), release func() error) *cursorIterator {
	it := &cursorIterator{fetch: fetch, release: release}
	it.advance()
	return it
}

func (it *cursorIterator) advance() {
	it.head, it.err = it.fetch()
}

func (it *cursorIterator) HasNext() bool {
	return it.head != nil || it.err != nil
}

func (it *cursorIterator) Next() (*KV, error) {
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	if it.head == nil {
		return nil, errors.New("iterator exhausted")
	}
	kv := it.head
	it.advance()
	return kv, nil
}

func (it *cursorIterator) Close() error {
	return it.release()
}
