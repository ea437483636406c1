package main

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

// StubStore exposes the world state of one chaincode invocation as a
// state.Store. Fabric applies the invocation's writes atomically at commit,
// so it does not need to implement state.Transactor.
type StubStore struct {
	stub shim.ChaincodeStubInterface
}

func NewStubStore(stub shim.ChaincodeStubInterface) *StubStore {
	return &StubStore{stub: stub}
}

func (s *StubStore) Get(_ context.Context, key string) ([]byte, error) {
	value, err := s.stub.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read state: %v", state.ErrUnavailable, err)
	}
	if value == nil {
		return nil, fmt.Errorf("key %s: %w", key, state.ErrNotFound)
	}
	return value, nil
}

func (s *StubStore) Put(_ context.Context, key string, value []byte) error {
	if err := s.stub.PutState(key, value); err != nil {
		return fmt.Errorf("%w: failed to put state: %v", state.ErrUnavailable, err)
	}
	return nil
}

// Delete checks for the key first since DelState succeeds on missing keys.
func (s *StubStore) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	if err := s.stub.DelState(key); err != nil {
		return fmt.Errorf("%w: failed to delete state: %v", state.ErrUnavailable, err)
	}
	return nil
}

// Scan runs an open-ended range query over the namespace.
func (s *StubStore) Scan(_ context.Context) (state.Iterator, error) {
	iterator, err := s.stub.GetStateByRange("", "")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get state: %v", state.ErrUnavailable, err)
	}
	return &rangeIterator{it: iterator}, nil
}

func (s *StubStore) History(_ context.Context, key string) ([]state.Version, error) {
	iterator, err := s.stub.GetHistoryForKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get history: %v", state.ErrUnavailable, err)
	}
	defer iterator.Close()

	var versions []state.Version
	for iterator.HasNext() {
		result, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to iterate: %v", state.ErrUnavailable, err)
		}
		versions = append(versions, state.Version{
			TxID:      result.TxId,
			Timestamp: result.Timestamp.AsTime(),
			IsDelete:  result.IsDelete,
			Value:     result.Value,
		})
	}
	return versions, nil
}

type rangeIterator struct {
	it shim.StateQueryIteratorInterface
}

func (r *rangeIterator) HasNext() bool {
	return r.it.HasNext()
}

func (r *rangeIterator) Next() (*state.KV, error) {
	result, err := r.it.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to iterate: %v", state.ErrUnavailable, err)
	}
	return &state.KV{Key: result.Key, Value: result.Value}, nil
}

func (r *rangeIterator) Close() error {
	return r.it.Close()
}
