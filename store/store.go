package store

import (
	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/canopy-network/smt/metrics"
)

var (
	nodePrefix = lib.JoinLenPrefix([]byte("n/")) // prefix designated for tree nodes keyed by digest
	rootKey    = lib.JoinLenPrefix([]byte("r/")) // the single key that holds the latest committed root

	_ StoreI = &Store{} // enforce the store interface
)

// StoreI is a node store that also remembers the latest root
type StoreI interface {
	lib.NodeStoreI
	lib.RootStoreI
}

// KV is a raw key value pair written to a backend
type KV struct {
	Key   []byte
	Value []byte
}

// KVStoreI is the minimal surface each database backend provides
type KVStoreI interface {
	Get(key []byte) ([]byte, error) // returns nil, nil if the key is absent
	Write(batch []KV) error         // applies all pairs atomically
	Close() error
	Name() string // the backend label used in logs and metrics
}

/*
The Store struct translates tree nodes into the flat key space of a database backend.

Nodes are content addressed: the key is nodePrefix ++ digest and the value is the protowire
encoding of the node. Because the digest is a function of the content, writing an existing key
rewrites identical bytes, so puts are idempotent and the store is append only from the tree's
point of view. Every root ever produced therefore stays readable.
*/

type Store struct {
	kv      KVStoreI         // underlying database
	metrics *metrics.Metrics // telemetry
	log     lib.LoggerI      // logger
}

// New() opens the configured backend, wrapping it with a node cache if enabled
func New(config lib.Config, m *metrics.Metrics, log lib.LoggerI) (StoreI, lib.ErrorI) {
	var (
		kv  KVStoreI
		err lib.ErrorI
	)
	switch config.Backend {
	case lib.MemoryBackend:
		kv = NewMemoryKV()
	case lib.BadgerBackend:
		kv, err = NewBadgerKV(config.DBPath(), false)
	case lib.LevelDBBackend:
		kv, err = NewLevelDBKV(config.DBPath())
	case lib.PebbleBackend:
		kv, err = NewPebbleKV(config.DBPath())
	default:
		return nil, lib.ErrUnknownBackend(config.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("Opened %s store at %s", kv.Name(), config.DBPath())
	var s StoreI = NewStore(kv, m, log)
	if config.CacheEnabled {
		if s, err = NewCachedStore(s, int64(config.CacheSize), m); err != nil {
			_ = kv.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewStore() wraps a backend as a node store
func NewStore(kv KVStoreI, m *metrics.Metrics, log lib.LoggerI) *Store {
	return &Store{kv: kv, metrics: m, log: log}
}

// NewMemoryStore() is a convenience constructor for a store that lives only in memory
func NewMemoryStore() *Store {
	return NewStore(NewMemoryKV(), nil, lib.NewNullLogger())
}

// Get() loads and decodes the node identified by digest
func (s *Store) Get(digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	s.metrics.ObserveStoreGet(s.kv.Name())
	bz, err := s.kv.Get(nodeKey(digest))
	if err != nil {
		return nil, ErrStoreGet(err)
	}
	if bz == nil {
		return nil, ErrNodeNotFound(digest)
	}
	return lib.NewNodeFromBytes(bz)
}

// Put() writes a single node
func (s *Store) Put(digest crypto.Digest, node *lib.Node) lib.ErrorI {
	return s.write([]KV{{Key: nodeKey(digest), Value: node.Bytes()}})
}

// PutBatch() writes every node of the batch in one atomic backend write
func (s *Store) PutBatch(batch *lib.NodeBatch) lib.ErrorI {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	kvs := make([]KV, 0, batch.Len())
	for _, e := range batch.Entries() {
		kvs = append(kvs, KV{Key: nodeKey(e.Digest), Value: e.Node.Bytes()})
	}
	return s.write(kvs)
}

// LatestRoot() returns the last root saved with SetLatestRoot(), zero if none
func (s *Store) LatestRoot() (crypto.Digest, lib.ErrorI) {
	bz, err := s.kv.Get(rootKey)
	if err != nil {
		return crypto.ZeroDigest, ErrStoreGet(err)
	}
	if bz == nil {
		return crypto.ZeroDigest, nil
	}
	d, err := crypto.DigestFromBytes(bz)
	if err != nil {
		return crypto.ZeroDigest, lib.ErrInvalidDigest(err)
	}
	return d, nil
}

// SetLatestRoot() persists the root so the tree can be reopened later
func (s *Store) SetLatestRoot(root crypto.Digest) lib.ErrorI {
	return s.write([]KV{{Key: rootKey, Value: root.Bytes()}})
}

// Close() gracefully stops the backend
func (s *Store) Close() lib.ErrorI {
	s.log.Debugf("Closing %s store", s.kv.Name())
	if err := s.kv.Close(); err != nil {
		return ErrCloseDB(err)
	}
	return nil
}

func (s *Store) write(kvs []KV) lib.ErrorI {
	if err := s.kv.Write(kvs); err != nil {
		return ErrStorePut(err)
	}
	s.metrics.ObserveStorePut(s.kv.Name(), len(kvs))
	return nil
}

// nodeKey() returns the database key for a node digest
func nodeKey(digest crypto.Digest) []byte {
	return append(append(make([]byte, 0, len(nodePrefix)+crypto.HashSize), nodePrefix...), digest[:]...)
}
