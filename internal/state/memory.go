package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local ordered map. Writers are serialized by a
// mutex; readers share a read lock and never observe a partial write.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string][]byte
	keys    []string // sorted
	history map[string][]Version
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string][]byte),
		history: make(map[string][]Version),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(key)
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, value)
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.del(key)
}

// Scan copies the current contents so the iterator is unaffected by later
// writes.
func (m *MemoryStore) Scan(ctx context.Context) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]KV, 0, len(m.keys))
	for _, k := range m.keys {
		entries = append(entries, KV{Key: k, Value: clone(m.values[k])})
	}
	return newSliceIterator(entries), nil
}

// Atomic holds the write lock for the whole of fn.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(lockedMemory{m})
}

func (m *MemoryStore) History(ctx context.Context, key string) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.history[key]
	out := make([]Version, len(versions))
	for i, v := range versions {
		v.Value = clone(v.Value)
		out[i] = v
	}
	return out, nil
}

// Len reports the number of keys currently stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *MemoryStore) get(key string) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	return clone(v), nil
}

func (m *MemoryStore) put(key string, value []byte) error {
	if _, ok := m.values[key]; !ok {
		i := sort.SearchStrings(m.keys, key)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = key
	}
	m.values[key] = clone(value)
	m.record(key, value, false)
	return nil
}

func (m *MemoryStore) del(key string) error {
	if _, ok := m.values[key]; !ok {
		return fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	delete(m.values, key)
	i := sort.SearchStrings(m.keys, key)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.record(key, nil, true)
	return nil
}

func (m *MemoryStore) record(key string, value []byte, isDelete bool) {
	m.history[key] = append(m.history[key], Version{
		TxID:      uuid.NewString(),
		Timestamp: m.now().UTC(),
		IsDelete:  isDelete,
		Value:     clone(value),
	})
}

// lockedMemory is the view handed to Atomic callbacks; the caller already
// holds the write lock.
type lockedMemory struct {
	m *MemoryStore
}

func (l lockedMemory) Get(ctx context.Context, key string) ([]byte, error) {
	return l.m.get(key)
}

func (l lockedMemory) Put(ctx context.Context, key string, value []byte) error {
	return l.m.put(key, value)
}

func (l lockedMemory) Delete(ctx context.Context, key string) error {
	return l.m.del(key)
}

func (l lockedMemory) Scan(ctx context.Context) (Iterator, error) {
	entries := make([]KV, 0, len(l.m.keys))
	for _, k := range l.m.keys {
		entries = append(entries, KV{Key: k, Value: clone(l.m.values[k])})
	}
	return newSliceIterator(entries), nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
