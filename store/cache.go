package store

import (
	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/canopy-network/smt/metrics"
	"github.com/dgraph-io/ristretto"
)

var _ StoreI = &CachedStore{}

// CachedStore keeps recently used decoded nodes in front of a parent store
// nodes are immutable under their digest, so the cache never needs invalidation
type CachedStore struct {
	parent  StoreI
	cache   *ristretto.Cache
	metrics *metrics.Metrics
}

// NewCachedStore() wraps parent with a cache holding at most maxBytes of encoded node data
func NewCachedStore(parent StoreI, maxBytes int64, m *metrics.Metrics) (*CachedStore, lib.ErrorI) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(maxBytes/64, 1000), // ~10x the expected number of cached nodes
		MaxCost:     maxBytes,
		BufferItems: 64, // recommended by ristretto
	})
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &CachedStore{parent: parent, cache: cache, metrics: m}, nil
}

// Get() serves from the cache, falling back to the parent and populating the cache
func (c *CachedStore) Get(digest crypto.Digest) (*lib.Node, lib.ErrorI) {
	if v, found := c.cache.Get(cacheKey(digest)); found {
		c.metrics.ObserveCache(true)
		return v.(*lib.Node), nil
	}
	c.metrics.ObserveCache(false)
	node, err := c.parent.Get(digest)
	if err != nil {
		return nil, err
	}
	c.add(digest, node)
	return node, nil
}

// Put() writes through to the parent
func (c *CachedStore) Put(digest crypto.Digest, node *lib.Node) lib.ErrorI {
	if err := c.parent.Put(digest, node); err != nil {
		return err
	}
	c.add(digest, node)
	return nil
}

// PutBatch() writes through to the parent and caches the batch only once the write succeeded
func (c *CachedStore) PutBatch(batch *lib.NodeBatch) lib.ErrorI {
	if err := c.parent.PutBatch(batch); err != nil {
		return err
	}
	for _, e := range batch.Entries() {
		c.add(e.Digest, e.Node)
	}
	return nil
}

func (c *CachedStore) LatestRoot() (crypto.Digest, lib.ErrorI) { return c.parent.LatestRoot() }

func (c *CachedStore) SetLatestRoot(root crypto.Digest) lib.ErrorI {
	return c.parent.SetLatestRoot(root)
}

// Close() releases the cache and closes the parent
func (c *CachedStore) Close() lib.ErrorI {
	c.cache.Close()
	return c.parent.Close()
}

// Wait() blocks until pending cache sets are applied
func (c *CachedStore) Wait() { c.cache.Wait() }

// add() caches a node; ristretto may drop the set under contention which only costs a later miss
func (c *CachedStore) add(digest crypto.Digest, node *lib.Node) {
	c.cache.Set(cacheKey(digest), node, int64(crypto.HashSize*2+len(node.Value)+16))
}

func cacheKey(digest crypto.Digest) string { return string(digest[:]) }
