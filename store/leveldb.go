package store

import (
	"errors"

	"github.com/canopy-network/smt/lib"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var _ KVStoreI = &LevelDBKV{}

// LevelDBKV wraps goleveldb for the KVStoreI interface
type LevelDBKV struct {
	db *leveldb.DB
}

// NewLevelDBKV() opens or creates a leveldb database at path
func NewLevelDBKV(path string) (*LevelDBKV, lib.ErrorI) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &LevelDBKV{db: db}, nil
}

// NewLevelDBKVInMemory() opens leveldb over memory backed storage
func NewLevelDBKVInMemory() (*LevelDBKV, lib.ErrorI) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &LevelDBKV{db: db}, nil
}

func (l *LevelDBKV) Get(key []byte) ([]byte, error) {
	bz, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return bz, err
}

// Write() applies the pairs as one leveldb batch
func (l *LevelDBKV) Write(batch []KV) error {
	b := new(leveldb.Batch)
	for _, kv := range batch {
		b.Put(kv.Key, kv.Value)
	}
	return l.db.Write(b, nil)
}

func (l *LevelDBKV) Close() error { return l.db.Close() }
func (l *LevelDBKV) Name() string { return "leveldb" }
