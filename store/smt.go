package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/canopy-network/smt/metrics"
)

// =====================================================
// SMT: a compacted sparse Merkle tree
// =====================================================
//
// 1. Keys are 256 bit digests. Bit i of the key (most significant first)
//    selects the left (0) or right (1) child at depth i. Depth 0 is the root.
// 2. Empty subtrees are the zero digest and are never stored.
// 3. A subtree holding exactly one leaf is represented by the leaf itself,
//    placed at the highest depth where it is alone. An internal node
//    therefore never has an (empty, leaf) or (leaf, empty) pair of children,
//    and the root is a pure function of the key value mapping.
//
// -----------------------------------------------------
// Variables:
// -----------------------------------------------------
// - Target: the key being inserted, overwritten or deleted.
// - Path: the internal nodes visited from the root down to the terminal.
// - Terminal: the first empty or leaf subtree on the target's path.
// - Sub: the replacement digest for the subtree currently being rehashed.
//
// -----------------------------------------------------
// 1) Traversal
// -----------------------------------------------------
// - Start at the root with depth = 0.
// - LOOP:
//   1. If Current is empty or a leaf, it is the terminal; exit.
//   2. Push Current onto Path.
//   3. Move to the child selected by bit[depth] of Target; depth++.
//
// -----------------------------------------------------
// 2.a) Upsert
// -----------------------------------------------------
// - Terminal empty, or a leaf with the Target key: Sub = new leaf.
// - Terminal is a leaf with a different key K:
//   - p = common prefix length of Target and K.
//   - At depth p create an internal node whose children are the new leaf and
//     K's leaf, ordered by bit[p] of Target.
//   - Between the terminal depth and p, wrap Sub in internal nodes whose
//     other child is empty.
//
// -----------------------------------------------------
// 2.b) Delete
// -----------------------------------------------------
// - Terminal is a leaf with the Target key: Sub = empty.
// - Anything else: nothing to delete; exit.
//
// -----------------------------------------------------
// 3) ReHash: walk Path bottom up
// -----------------------------------------------------
// - If Sub is empty and the sibling is a leaf, the sibling rises: Sub = sibling.
// - If Sub is empty or a lone leaf and the sibling is empty, Sub rises unchanged.
// - Otherwise Sub = Hash(left, right) and the new internal node is batched.
// - The batch is written in a single store operation and only then does the
//   tree adopt the new root.
//
// =====================================================

// SMT is a sparse Merkle tree over values of type V
type SMT[V any] struct {
	store   lib.NodeStoreI       // where nodes are persisted by digest
	hasher  crypto.HasherFactory // the hashing strategy for every node
	codec   lib.ValueCodecI[V]   // maps values to leaf digests and stored bytes
	log     lib.LoggerI          // logger
	metrics *metrics.Metrics     // telemetry

	writer sync.Mutex   // serializes updates
	mu     sync.RWMutex // guards root
	root   crypto.Digest
}

// KeyValue is a single pending update
type KeyValue[V any] struct {
	Key   crypto.Digest
	Value V
}

// NewSMT() creates an empty tree over the store
func NewSMT[V any](store lib.NodeStoreI, hasher crypto.HasherFactory, codec lib.ValueCodecI[V], log lib.LoggerI, m *metrics.Metrics) *SMT[V] {
	if log == nil {
		log = lib.NewNullLogger()
	}
	return &SMT[V]{store: store, hasher: hasher, codec: codec, log: log, metrics: m}
}

// Root() returns the current root digest, zero for the empty tree
func (s *SMT[V]) Root() crypto.Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// SetRoot() points the tree at any root previously produced over the same store
func (s *SMT[V]) SetRoot(root crypto.Digest) lib.ErrorI {
	s.writer.Lock()
	defer s.writer.Unlock()
	if !root.IsZero() {
		if _, err := s.store.Get(root); err != nil {
			return err
		}
	}
	s.setRoot(root)
	return nil
}

// Hasher() returns the hashing strategy, which is all a verifier needs
func (s *SMT[V]) Hasher() crypto.HasherFactory { return s.hasher }

// Codec() returns the value codec of the tree
func (s *SMT[V]) Codec() lib.ValueCodecI[V] { return s.codec }

// Update() sets key to value, or removes key when value is the codec's zero value
func (s *SMT[V]) Update(key crypto.Digest, value V) (crypto.Digest, lib.ErrorI) {
	s.writer.Lock()
	defer s.writer.Unlock()
	start, deleting := time.Now(), s.codec.IsZero(value)
	old := s.Root()
	newRoot, batch, err := s.apply(old, key, value)
	if err != nil {
		return old, err
	}
	if newRoot == old {
		return old, nil
	}
	if err = s.store.PutBatch(batch); err != nil {
		s.log.Errorf("Update of key %s failed with err: %s", key, err.Error())
		return old, err
	}
	s.setRoot(newRoot)
	s.metrics.ObserveUpdate(deleting, start)
	s.log.Debugf("Updated key %s (delete=%t), %d new nodes, root %s", key, deleting, batch.Len(), newRoot)
	return newRoot, nil
}

// UpdateAll() applies the updates in order and returns the final root
func (s *SMT[V]) UpdateAll(updates []KeyValue[V]) (root crypto.Digest, err lib.ErrorI) {
	root = s.Root()
	for _, u := range updates {
		if root, err = s.Update(u.Key, u.Value); err != nil {
			return
		}
	}
	return
}

// Get() returns the value stored under key, or the codec's zero value if absent
func (s *SMT[V]) Get(key crypto.Digest) (V, lib.ErrorI) {
	leaf, err := s.lookup(key)
	if err != nil || leaf == nil {
		return s.codec.Zero(), err
	}
	return s.codec.Unmarshal(leaf.Value)
}

// GetDigest() returns the value digest committed under key, zero if absent
func (s *SMT[V]) GetDigest(key crypto.Digest) (crypto.Digest, lib.ErrorI) {
	leaf, err := s.lookup(key)
	if err != nil || leaf == nil {
		return crypto.ZeroDigest, err
	}
	return leaf.ValueDigest, nil
}

// lookup() returns the leaf holding key under the current root, nil if absent
func (s *SMT[V]) lookup(key crypto.Digest) (*lib.Node, lib.ErrorI) {
	t, err := s.traverse(s.Root(), key)
	if err != nil {
		return nil, err
	}
	if t.node == nil || t.node.Key != key {
		return nil, nil
	}
	return t.node, nil
}

// terminal is the outcome of a traversal
type terminal struct {
	path   []*lib.Node   // internal nodes from the root, path[i] sits at depth i
	digest crypto.Digest // the terminal digest, zero if empty
	node   *lib.Node     // the terminal leaf, nil if empty
}

// depth() is the depth of the terminal
func (t *terminal) depth() int { return len(t.path) }

// traverse() navigates from root along key until an empty subtree or a leaf
func (s *SMT[V]) traverse(root, key crypto.Digest) (*terminal, lib.ErrorI) {
	t, current := &terminal{}, root
	for depth := 0; !current.IsZero(); depth++ {
		node, err := s.store.Get(current)
		if err != nil {
			return nil, err
		}
		if node.IsLeaf() {
			t.digest, t.node = current, node
			return t, nil
		}
		if depth == crypto.KeyBits {
			return nil, ErrInvalidNode(fmt.Sprintf("internal node %s below the maximum depth", current))
		}
		t.path = append(t.path, node)
		current = node.Child(key.Bit(depth))
	}
	return t, nil
}

// apply() computes the root after setting key to value along with the nodes it creates
func (s *SMT[V]) apply(root, key crypto.Digest, value V) (crypto.Digest, *lib.NodeBatch, lib.ErrorI) {
	batch := lib.NewNodeBatch()
	t, err := s.traverse(root, key)
	if err != nil {
		return root, batch, err
	}
	valueDigest := s.codec.ToDigest(value)
	var sub crypto.Digest
	switch {
	case valueDigest.IsZero() && (t.node == nil || t.node.Key != key):
		// deleting an absent key
		return root, batch, nil
	case valueDigest.IsZero():
		sub = crypto.ZeroDigest
	case t.node == nil || t.node.Key == key:
		sub = s.addLeaf(batch, key, valueDigest, value)
	default:
		sub = s.split(batch, t, key, valueDigest, value)
	}
	// the terminal is a lone leaf or empty unless split() built internal nodes beneath it
	lone := sub.IsZero() || t.node == nil || t.node.Key == key
	for depth := t.depth() - 1; depth >= 0; depth-- {
		bit := key.Bit(depth)
		sibling := t.path[depth].Child(1 - bit)
		if lone && sibling.IsZero() {
			// compaction: the lone leaf (or nothing) rises to the parent's position
			continue
		}
		if sub.IsZero() {
			siblingIsLeaf, e := s.isLeaf(batch, sibling)
			if e != nil {
				return root, batch, e
			}
			if siblingIsLeaf {
				sub = sibling
				continue
			}
		}
		sub, lone = s.addInternal(batch, bit, sub, sibling), false
	}
	return sub, batch, nil
}

// split() replaces a foreign leaf with the smallest subtree holding both it and the new leaf
func (s *SMT[V]) split(batch *lib.NodeBatch, t *terminal, key, valueDigest crypto.Digest, value V) crypto.Digest {
	p := key.CommonPrefixLen(t.node.Key)
	bit := key.Bit(p)
	sub := s.addInternal(batch, bit, s.addLeaf(batch, key, valueDigest, value), t.digest)
	for depth := p - 1; depth >= t.depth(); depth-- {
		sub = s.addInternal(batch, key.Bit(depth), sub, crypto.ZeroDigest)
	}
	return sub
}

// addLeaf() creates and batches a leaf
func (s *SMT[V]) addLeaf(batch *lib.NodeBatch, key, valueDigest crypto.Digest, value V) crypto.Digest {
	leaf := lib.NewLeafNode(key, valueDigest, s.codec.Marshal(value))
	digest := leaf.Hash(s.hasher)
	batch.Add(digest, leaf)
	return digest
}

// addInternal() creates and batches an internal node with sub on the side selected by bit
func (s *SMT[V]) addInternal(batch *lib.NodeBatch, bit int, sub, sibling crypto.Digest) crypto.Digest {
	left, right := sub, sibling
	if bit == 1 {
		left, right = sibling, sub
	}
	node := lib.NewInternalNode(left, right)
	digest := node.Hash(s.hasher)
	batch.Add(digest, node)
	return digest
}

// isLeaf() reports whether the non-empty digest identifies a leaf
func (s *SMT[V]) isLeaf(batch *lib.NodeBatch, digest crypto.Digest) (bool, lib.ErrorI) {
	if digest.IsZero() {
		return false, nil
	}
	if n, ok := batch.Get(digest); ok {
		return n.IsLeaf(), nil
	}
	n, err := s.store.Get(digest)
	if err != nil {
		return false, err
	}
	return n.IsLeaf(), nil
}

func (s *SMT[V]) setRoot(root crypto.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
}
