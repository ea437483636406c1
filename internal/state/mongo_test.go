package state_test

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
)

func stateDoc(key, value string) bson.D {
	return bson.D{
		bson.E{Key: "_id", Value: key},
		bson.E{Key: "value", Value: []byte(value)},
	}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("get found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "ledger.world_state", mtest.FirstBatch, stateDoc("TX001", "payload")))

		got, err := state.NewMongoStore(mt.Coll).Get(ctx, "TX001")
		if err != nil {
			mt.Fatalf("Get error = %v", err)
		}
		if string(got) != "payload" {
			mt.Errorf("Get = %q, want %q", got, "payload")
		}
	})

	mt.Run("get missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "ledger.world_state", mtest.FirstBatch))

		_, err := state.NewMongoStore(mt.Coll).Get(ctx, "TX404")
		if !errors.Is(err, state.ErrNotFound) {
			mt.Errorf("Get error = %v, want ErrNotFound", err)
		}
	})

	mt.Run("put upserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		if err := state.NewMongoStore(mt.Coll).Put(ctx, "TX001", []byte("v")); err != nil {
			mt.Errorf("Put error = %v", err)
		}
	})

	mt.Run("put failure is unavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad value",
		}))

		err := state.NewMongoStore(mt.Coll).Put(ctx, "TX001", []byte("v"))
		if !errors.Is(err, state.ErrUnavailable) {
			mt.Errorf("Put error = %v, want ErrUnavailable", err)
		}
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := state.NewMongoStore(mt.Coll).Delete(ctx, "TX404")
		if !errors.Is(err, state.ErrNotFound) {
			mt.Errorf("Delete error = %v, want ErrNotFound", err)
		}
	})

	mt.Run("scan", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "ledger.world_state", mtest.FirstBatch,
			stateDoc("TX001", "a"),
			stateDoc("TX002", "b"),
		))

		kvs, err := state.Collect(ctx, state.NewMongoStore(mt.Coll))
		if err != nil {
			mt.Fatalf("Collect error = %v", err)
		}
		if len(kvs) != 2 || kvs[0].Key != "TX001" || string(kvs[1].Value) != "b" {
			mt.Errorf("scan = %+v", kvs)
		}
	})

	mt.Run("scan reads every batch up front", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, "ledger.world_state", mtest.FirstBatch, stateDoc("TX001", "a")),
			mtest.CreateCursorResponse(0, "ledger.world_state", mtest.NextBatch, stateDoc("TX002", "b")),
		)

		it, err := state.NewMongoStore(mt.Coll).Scan(ctx)
		if err != nil {
			mt.Fatalf("Scan error = %v", err)
		}
		defer it.Close()

		// No server round trips are left for the iterator to make.
		mt.ClearMockResponses()

		var keys []string
		for it.HasNext() {
			kv, err := it.Next()
			if err != nil {
				mt.Fatalf("Next error = %v", err)
			}
			keys = append(keys, kv.Key)
		}
		if len(keys) != 2 || keys[0] != "TX001" || keys[1] != "TX002" {
			mt.Errorf("scan keys = %v", keys)
		}
	})

	mt.Run("scan failure is unavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		_, err := state.NewMongoStore(mt.Coll).Scan(ctx)
		if !errors.Is(err, state.ErrUnavailable) {
			mt.Errorf("Scan error = %v, want ErrUnavailable", err)
		}
	})
}
