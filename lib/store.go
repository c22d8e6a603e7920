package lib

import (
	"fmt"

	"github.com/canopy-network/smt/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

/* This file contains persistence module interfaces and the node structure that is persisted */

// NodeStoreI is the backing mapping from a node digest to its content
// CONTRACT: stores are append only from the tree's perspective; writing the same digest twice is a no-op
type NodeStoreI interface {
	NodeReaderI
	NodeWriterI
	Close() ErrorI // gracefully stop the database
}

// NodeReaderI defines the read side of a node store
type NodeReaderI interface {
	Get(digest crypto.Digest) (*Node, ErrorI) // returns a CodeNodeNotFound error if the digest is unknown
}

// NodeWriterI defines the write side of a node store
type NodeWriterI interface {
	Put(digest crypto.Digest, node *Node) ErrorI // idempotent single write
	PutBatch(batch *NodeBatch) ErrorI            // all or nothing write of many nodes
}

// RootStoreI persists the latest root so a tree can be reopened across runs
type RootStoreI interface {
	LatestRoot() (crypto.Digest, ErrorI) // zero digest if never set
	SetLatestRoot(root crypto.Digest) ErrorI
}

// NodeKind distinguishes the stored node types; the empty node is never stored
type NodeKind uint8

const (
	LeafNode     NodeKind = 1
	InternalNode NodeKind = 2
)

const (
	// domain tags appended to node preimages so leaves and internal nodes never collide
	LeafTag     byte = 0x01
	InternalTag byte = 0x02
)

// Node represents a single non-empty element of the sparse Merkle tree
type Node struct {
	Kind NodeKind
	// leaf fields
	Key         crypto.Digest // the full key path of the leaf
	ValueDigest crypto.Digest // the codec digest of the value
	Value       []byte        // the serialized application value
	// internal fields
	Left  crypto.Digest
	Right crypto.Digest
}

// NewLeafNode() constructs a leaf
func NewLeafNode(key, valueDigest crypto.Digest, value []byte) *Node {
	return &Node{Kind: LeafNode, Key: key, ValueDigest: valueDigest, Value: value}
}

// NewInternalNode() constructs an internal node over two child digests
func NewInternalNode(left, right crypto.Digest) *Node {
	return &Node{Kind: InternalNode, Left: left, Right: right}
}

// IsLeaf() returns true for leaves
func (n *Node) IsLeaf() bool { return n.Kind == LeafNode }

// Child() returns the left child for bit 0 and the right child for bit 1
func (n *Node) Child(bit int) crypto.Digest {
	if bit == 0 {
		return n.Left
	}
	return n.Right
}

// Hash() computes the digest that identifies the node
func (n *Node) Hash(hasher crypto.HasherFactory) crypto.Digest {
	if n.IsLeaf() {
		return HashLeaf(hasher, n.Key, n.ValueDigest)
	}
	return HashInternal(hasher, n.Left, n.Right)
}

// HashLeaf() returns H(key ++ valueDigest ++ LeafTag); a zero value digest is the empty leaf
func HashLeaf(hasher crypto.HasherFactory, key, valueDigest crypto.Digest) crypto.Digest {
	if valueDigest.IsZero() {
		return crypto.ZeroDigest
	}
	h := hasher()
	h.WriteDigest(key)
	h.WriteDigest(valueDigest)
	_ = h.WriteByte(LeafTag)
	return h.Sum()
}

// HashInternal() returns H(left ++ right ++ InternalTag); two empty children make an empty node
func HashInternal(hasher crypto.HasherFactory, left, right crypto.Digest) crypto.Digest {
	if left.IsZero() && right.IsZero() {
		return crypto.ZeroDigest
	}
	h := hasher()
	h.WriteDigest(left)
	h.WriteDigest(right)
	_ = h.WriteByte(InternalTag)
	return h.Sum()
}

// node wire fields
const (
	nodeFieldKind        protowire.Number = 1
	nodeFieldKey         protowire.Number = 2
	nodeFieldValueDigest protowire.Number = 3
	nodeFieldValue       protowire.Number = 4
	nodeFieldLeft        protowire.Number = 5
	nodeFieldRight       protowire.Number = 6
)

// Bytes() encodes the node in protobuf wire format
func (n *Node) Bytes() (bz []byte) {
	bz = protowire.AppendTag(bz, nodeFieldKind, protowire.VarintType)
	bz = protowire.AppendVarint(bz, uint64(n.Kind))
	switch n.Kind {
	case LeafNode:
		bz = appendDigest(bz, nodeFieldKey, n.Key)
		bz = appendDigest(bz, nodeFieldValueDigest, n.ValueDigest)
		bz = protowire.AppendTag(bz, nodeFieldValue, protowire.BytesType)
		bz = protowire.AppendBytes(bz, n.Value)
	case InternalNode:
		bz = appendDigest(bz, nodeFieldLeft, n.Left)
		bz = appendDigest(bz, nodeFieldRight, n.Right)
	}
	return
}

// NewNodeFromBytes() decodes a node written by Bytes()
func NewNodeFromBytes(bz []byte) (*Node, ErrorI) {
	n := new(Node)
	for len(bz) > 0 {
		num, typ, l := protowire.ConsumeTag(bz)
		if l < 0 {
			return nil, ErrDecodeNode(protowire.ParseError(l))
		}
		bz = bz[l:]
		switch {
		case num == nodeFieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(bz)
			if m < 0 {
				return nil, ErrDecodeNode(protowire.ParseError(m))
			}
			n.Kind, l = NodeKind(v), m
		case typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(bz)
			if m < 0 {
				return nil, ErrDecodeNode(protowire.ParseError(m))
			}
			if err := n.setBytesField(num, v); err != nil {
				return nil, ErrDecodeNode(err)
			}
			l = m
		default:
			// skip unknown fields
			if l = protowire.ConsumeFieldValue(num, typ, bz); l < 0 {
				return nil, ErrDecodeNode(protowire.ParseError(l))
			}
		}
		bz = bz[l:]
	}
	if n.Kind != LeafNode && n.Kind != InternalNode {
		return nil, ErrDecodeNode(fmt.Errorf("unknown node kind %d", n.Kind))
	}
	return n, nil
}

// setBytesField() assigns a length delimited field
func (n *Node) setBytesField(num protowire.Number, v []byte) (err error) {
	var target *crypto.Digest
	switch num {
	case nodeFieldValue:
		n.Value = append([]byte(nil), v...)
		return nil
	case nodeFieldKey:
		target = &n.Key
	case nodeFieldValueDigest:
		target = &n.ValueDigest
	case nodeFieldLeft:
		target = &n.Left
	case nodeFieldRight:
		target = &n.Right
	default:
		return nil
	}
	*target, err = crypto.DigestFromBytes(v)
	return
}

func appendDigest(bz []byte, num protowire.Number, d crypto.Digest) []byte {
	bz = protowire.AppendTag(bz, num, protowire.BytesType)
	return protowire.AppendBytes(bz, d[:])
}

// NodeEntry is a digest and the node it identifies
type NodeEntry struct {
	Digest crypto.Digest
	Node   *Node
}

// NodeBatch collects the nodes created by one tree operation so they can be written atomically
type NodeBatch struct {
	entries []NodeEntry
	index   map[crypto.Digest]int
}

// NewNodeBatch() creates an empty batch
func NewNodeBatch() *NodeBatch {
	return &NodeBatch{index: make(map[crypto.Digest]int)}
}

// Add() appends a node, ignoring digests already in the batch
func (b *NodeBatch) Add(digest crypto.Digest, node *Node) {
	if _, found := b.index[digest]; found {
		return
	}
	b.index[digest] = len(b.entries)
	b.entries = append(b.entries, NodeEntry{Digest: digest, Node: node})
}

// Get() returns a pending node
func (b *NodeBatch) Get(digest crypto.Digest) (*Node, bool) {
	i, found := b.index[digest]
	if !found {
		return nil, false
	}
	return b.entries[i].Node, true
}

// Entries() returns the pending nodes in insertion order
func (b *NodeBatch) Entries() []NodeEntry { return b.entries }

// Len() returns the number of pending nodes
func (b *NodeBatch) Len() int { return len(b.entries) }

func ErrDecodeNode(err error) ErrorI {
	return NewError(CodeDecodeNode, StorageModule, fmt.Sprintf("decodeNode() failed with err: %s", err.Error()))
}
