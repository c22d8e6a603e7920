package store

import (
	"errors"

	"github.com/canopy-network/smt/lib"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var _ KVStoreI = &PebbleKV{}

// PebbleKV wraps pebble for the KVStoreI interface
type PebbleKV struct {
	db *pebble.DB
}

// NewPebbleKV() opens or creates a pebble database at path
func NewPebbleKV(path string) (*PebbleKV, lib.ErrorI) {
	return openPebble(path, &pebble.Options{})
}

// NewPebbleKVInMemory() opens pebble over an in-memory filesystem
func NewPebbleKVInMemory() (*PebbleKV, lib.ErrorI) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleKV, lib.ErrorI) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Get(key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	// the value is only valid until the closer is released
	return append([]byte(nil), val...), nil
}

// Write() commits the pairs as one synced pebble batch
func (p *PebbleKV) Write(batch []KV) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, kv := range batch {
		if err := b.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (p *PebbleKV) Close() error { return p.db.Close() }
func (p *PebbleKV) Name() string { return "pebble" }
