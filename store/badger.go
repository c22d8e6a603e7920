package store

import (
	"errors"

	"github.com/canopy-network/smt/lib"
	"github.com/dgraph-io/badger/v4"
)

var _ KVStoreI = &BadgerKV{}

// BadgerKV wraps badger for the KVStoreI interface
type BadgerKV struct {
	db *badger.DB
}

// NewBadgerKV() opens a badger database at path, or an in-memory one
func NewBadgerKV(path string, inMemory bool) (*BadgerKV, lib.ErrorI) {
	opts := badger.DefaultOptions(path).WithLogger(nil).WithNumVersionsToKeep(1)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Get(key []byte) (value []byte, err error) {
	err = b.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get(key)
		if e != nil {
			if errors.Is(e, badger.ErrKeyNotFound) {
				return nil
			}
			return e
		}
		value, e = item.ValueCopy(nil)
		return e
	})
	return
}

// Write() sets all pairs in one read-write transaction
func (b *BadgerKV) Write(batch []KV) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, kv := range batch {
			if err := txn.Set(kv.Key, kv.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerKV) Close() error { return b.db.Close() }
func (b *BadgerKV) Name() string { return "badger" }
