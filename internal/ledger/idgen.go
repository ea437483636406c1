package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

// IDGenerator assigns transaction IDs to create requests that carry none.
type IDGenerator interface {
	NextID(ctx context.Context) (string, error)
}

// Sequence hands out TX001, TX002, ... for one store. It starts after the
// highest numbered key already present and skips IDs that are taken.
type Sequence struct {
	store  state.Store
	prefix string

	mu     sync.Mutex
	next   int
	primed bool
}

func NewSequence(store state.Store) *Sequence {
	return &Sequence{store: store, prefix: "TX"}
}

func (s *Sequence) NextID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		highest, err := s.highest(ctx)
		if err != nil {
			return "", err
		}
		s.next = highest + 1
		s.primed = true
	}

	for {
		id := fmt.Sprintf("%s%03d", s.prefix, s.next)
		s.next++

		_, err := s.store.Get(ctx, id)
		if errors.Is(err, state.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", storeFailure("read "+id, err)
		}
	}
}

func (s *Sequence) highest(ctx context.Context) (int, error) {
	it, err := s.store.Scan(ctx)
	if err != nil {
		return 0, storeFailure("scan", err)
	}
	defer it.Close()

	highest := 0
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return 0, storeFailure("scan", err)
		}
		suffix, ok := strings.CutPrefix(kv.Key, s.prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// UUIDGenerator issues random IDs. It is used where no single process owns
// the key space, such as a shared Fabric channel.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID(context.Context) (string, error) {
	return uuid.NewString(), nil
}
