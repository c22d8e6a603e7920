package store

import (
	"context"
	"math/rand"
	"testing"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/stretchr/testify/require"
)

// newRandomTree() builds a tree of n random keys and returns the keys in insertion order
func newRandomTree(t *testing.T, n int, seed int64) (*SMT[string], []crypto.Digest) {
	t.Helper()
	tree, r := newTestTree(t), rand.New(rand.NewSource(seed))
	keys := make([]crypto.Digest, n)
	for i := range keys {
		keys[i] = randomKey(r)
		_, err := tree.Update(keys[i], string(rune('a'+i%26)))
		require.NoError(t, err)
	}
	return tree, keys
}

// entriesFor() claims what the tree currently holds for keys
func entriesFor(t *testing.T, tree *SMT[string], keys ...crypto.Digest) []Entry {
	t.Helper()
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		d, err := tree.GetDigest(k)
		require.NoError(t, err)
		entries[i] = Entry{Key: k, ValueDigest: d}
	}
	return entries
}

// newABCTree() builds the tree {000: a, 001: b, 1: c}
func newABCTree(t *testing.T) (tree *SMT[string], a, b, c crypto.Digest) {
	tree, a, b, c = newTestTree(t), keyFromBits("000"), keyFromBits("001"), keyFromBits("1")
	_, err := tree.UpdateAll([]KeyValue[string]{{a, "a"}, {b, "b"}, {c, "c"}})
	require.NoError(t, err)
	return
}

func TestProveSingleKey(t *testing.T) {
	tree, keys := newRandomTree(t, 40, 1)
	for _, k := range keys {
		proof, err := tree.Prove([]crypto.Digest{k})
		require.NoError(t, err)
		entries := entriesFor(t, tree, k)
		ok, err := proof.Verify(tree.Hasher(), tree.Root(), entries)
		require.NoError(t, err)
		require.True(t, ok)
		// flipping a single bit of the claimed value digest fails
		entries[0].ValueDigest[7] ^= 0x10
		ok, err = proof.Verify(tree.Hasher(), tree.Root(), entries)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestProveRightAfterInsert(t *testing.T) {
	tree, codec := newTestTree(t), lib.NewWordCodec()
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 30; i++ {
		k := randomKey(r)
		root, err := tree.Update(k, "word")
		require.NoError(t, err)
		proof, err := tree.Prove([]crypto.Digest{k})
		require.NoError(t, err)
		ok, err := proof.Verify(tree.Hasher(), root, []Entry{{Key: k, ValueDigest: codec.ToDigest("word")}})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestProveBatch(t *testing.T) {
	tree, keys := newRandomTree(t, 64, 2)
	r := rand.New(rand.NewSource(3))
	for _, size := range []int{1, 2, 3, 8, 17, 64} {
		subset := append([]crypto.Digest(nil), keys...)
		r.Shuffle(len(subset), func(i, j int) { subset[i], subset[j] = subset[j], subset[i] })
		subset = subset[:size]
		// mix in absent keys
		subset = append(subset, randomKey(r), randomKey(r))
		proof, err := tree.Prove(subset)
		require.NoError(t, err)
		require.Len(t, proof.Keys, size+2)
		ok, err := proof.Verify(tree.Hasher(), tree.Root(), entriesFor(t, tree, subset...))
		require.NoError(t, err)
		require.True(t, ok, "size %d", size)
		// a batch never carries more siblings than the individual proofs combined
		individual := 0
		for _, k := range subset {
			p, e := tree.Prove([]crypto.Digest{k})
			require.NoError(t, e)
			individual += len(p.Siblings)
		}
		require.LessOrEqual(t, len(proof.Siblings), individual)
	}
}

func TestBatchMergesSiblings(t *testing.T) {
	tree, a, b, c := newABCTree(t)
	proof, err := tree.Prove([]crypto.Digest{b, a})
	require.NoError(t, err)
	require.Equal(t, []crypto.Digest{a, b}, proof.Keys)
	require.Equal(t, []Terminal{{Depth: 3, Count: 1}, {Depth: 3, Count: 1}}, proof.Terminals)
	// a and b supply each other; only the empty subtree at 01 and the leaf c are needed
	leafC := lib.HashLeaf(tree.Hasher(), c, lib.NewWordCodec().ToDigest("c"))
	require.Equal(t, []Sibling{{Depth: 2, Digest: crypto.ZeroDigest}, {Depth: 1, Digest: leafC}}, proof.Siblings)
	ok, err := proof.Verify(tree.Hasher(), tree.Root(), entriesFor(t, tree, a, b))
	require.NoError(t, err)
	require.True(t, ok)
	compiled, err := proof.Compile()
	require.NoError(t, err)
	require.Equal(t, []Op{
		{Code: OpTerminal}, {Code: OpTerminal}, {Code: OpMerge},
		{Code: OpSibling}, {Code: OpSibling, Sibling: leafC},
	}, compiled.Ops)
}

func TestKeyMismatch(t *testing.T) {
	tree, a, b, c := newABCTree(t)
	proof, err := tree.Prove([]crypto.Digest{a, b})
	require.NoError(t, err)
	// one entry against a two key proof
	_, err = proof.Verify(tree.Hasher(), tree.Root(), entriesFor(t, tree, a))
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeKeyMismatch))
	// right count, wrong key
	_, err = proof.Verify(tree.Hasher(), tree.Root(), entriesFor(t, tree, a, c))
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeKeyMismatch))
	// identical duplicates collapse
	ok, err := proof.Verify(tree.Hasher(), tree.Root(), entriesFor(t, tree, a, b, a))
	require.NoError(t, err)
	require.True(t, ok)
	// conflicting duplicates are malformed
	entries := append(entriesFor(t, tree, a, b), Entry{Key: a})
	_, err = proof.Verify(tree.Hasher(), tree.Root(), entries)
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeMalformedProof))
}

func TestEmptyKeySet(t *testing.T) {
	tree, _, _, _ := newABCTree(t)
	_, err := tree.Prove(nil)
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeEmptyKeySet))
	_, err = (&Proof{}).Verify(tree.Hasher(), tree.Root(), nil)
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeEmptyKeySet))
}

func TestNonInclusion(t *testing.T) {
	tree, a, b, _ := newABCTree(t)
	word := lib.NewWordCodec().ToDigest("x")
	beside := keyFromBits("01")                                                          // ends in the empty subtree at 01
	underA := keyFromBits("00000000000000000000000000000000000000000000000000000000001") // ends at the leaf of a
	tests := []struct {
		name    string
		keys    []crypto.Digest
		claims  []Entry
		witness *Witness
		valid   bool
	}{
		{
			name:   "empty subtree",
			keys:   []crypto.Digest{beside},
			claims: []Entry{{Key: beside}},
			valid:  true,
		},
		{
			name:   "empty subtree claimed present",
			keys:   []crypto.Digest{beside},
			claims: []Entry{{Key: beside, ValueDigest: word}},
		},
		{
			name:    "foreign leaf",
			keys:    []crypto.Digest{underA},
			claims:  []Entry{{Key: underA}},
			witness: &Witness{Key: a, ValueDigest: lib.NewWordCodec().ToDigest("a")},
			valid:   true,
		},
		{
			name:    "foreign leaf claimed present",
			keys:    []crypto.Digest{underA},
			claims:  []Entry{{Key: underA, ValueDigest: word}},
			witness: &Witness{Key: a, ValueDigest: lib.NewWordCodec().ToDigest("a")},
		},
		{
			name:   "shared terminal with the present key",
			keys:   []crypto.Digest{a, underA, b},
			claims: append(entriesFor(t, tree, a, b), Entry{Key: underA}),
			valid:  true,
		},
		{
			name:   "shared terminal with the present key claimed absent",
			keys:   []crypto.Digest{a, underA},
			claims: []Entry{{Key: a}, {Key: underA}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proof, err := tree.Prove(test.keys)
			require.NoError(t, err)
			if test.witness != nil {
				require.Equal(t, test.witness, proof.Terminals[0].Witness)
			}
			ok, err := proof.Verify(tree.Hasher(), tree.Root(), test.claims)
			require.NoError(t, err)
			require.Equal(t, test.valid, ok)
		})
	}
	// two keys under one terminal cannot both be present: a mismatch, not a malformed proof
	proof, err := tree.Prove([]crypto.Digest{a, underA})
	require.NoError(t, err)
	require.Len(t, proof.Terminals, 1)
	both := []Entry{{Key: a, ValueDigest: word}, {Key: underA, ValueDigest: word}}
	ok, err := proof.Verify(tree.Hasher(), tree.Root(), both)
	require.NoError(t, err)
	require.False(t, ok)
	compiled, err := proof.Compile()
	require.NoError(t, err)
	_, err = compiled.ComputeRoot(tree.Hasher(), both)
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeNoRootForClaims))
	results, err := compiled.VerifyRoots(context.Background(), tree.Hasher(), []crypto.Digest{tree.Root(), crypto.ZeroDigest}, both)
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, results)
}

func TestSharedTerminalBitFlip(t *testing.T) {
	// {0000: a, 1: c}; key 01 ends at the empty subtree beside a, sharing its terminal at depth 1
	tree, present, absent := newTestTree(t), keyFromBits("0000"), keyFromBits("01")
	_, err := tree.UpdateAll([]KeyValue[string]{{present, "a"}, {keyFromBits("1"), "c"}})
	require.NoError(t, err)
	proof, err := tree.Prove([]crypto.Digest{present, absent})
	require.NoError(t, err)
	require.Equal(t, []Terminal{{Depth: 1, Count: 2}}, proof.Terminals)
	entries := entriesFor(t, tree, present, absent)
	ok, err := proof.Verify(tree.Hasher(), tree.Root(), entries)
	require.NoError(t, err)
	require.True(t, ok)
	// every single bit flip of either claimed digest fails without an error
	for i := range entries {
		for bit := 0; bit < 8*crypto.HashSize; bit++ {
			tampered := append([]Entry(nil), entries...)
			tampered[i].ValueDigest[bit/8] ^= 1 << (bit % 8)
			ok, err = proof.Verify(tree.Hasher(), tree.Root(), tampered)
			require.NoError(t, err, "entry %d bit %d", i, bit)
			require.False(t, ok, "entry %d bit %d", i, bit)
		}
	}
}

func TestProveEmptyTree(t *testing.T) {
	tree := newTestTree(t)
	k := keyFromBits("101")
	proof, err := tree.Prove([]crypto.Digest{k, keyFromBits("0")})
	require.NoError(t, err)
	require.Equal(t, []Terminal{{Depth: 0, Count: 2}}, proof.Terminals)
	require.Empty(t, proof.Siblings)
	ok, err := proof.Verify(tree.Hasher(), crypto.ZeroDigest, []Entry{{Key: k}, {Key: keyFromBits("0")}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMalformedProofs(t *testing.T) {
	tree, keys := newRandomTree(t, 32, 9)
	subset := keys[:6]
	entries := entriesFor(t, tree, subset...)
	tests := []struct {
		name   string
		mutate func(p *Proof)
	}{
		{name: "missing sibling", mutate: func(p *Proof) { p.Siblings = p.Siblings[:len(p.Siblings)-1] }},
		{name: "unused sibling", mutate: func(p *Proof) { p.Siblings = append(p.Siblings, Sibling{Depth: 1}) }},
		{name: "sibling depth", mutate: func(p *Proof) { p.Siblings[0].Depth++ }},
		{name: "terminal count", mutate: func(p *Proof) { p.Terminals[0].Count++ }},
		{name: "zero terminal count", mutate: func(p *Proof) { p.Terminals[0].Count = 0 }},
		{name: "root terminal", mutate: func(p *Proof) { p.Terminals[0].Depth = 0 }},
		{name: "terminal too deep", mutate: func(p *Proof) { p.Terminals[0].Depth = crypto.KeyBits + 1 }},
		{name: "unsorted keys", mutate: func(p *Proof) { p.Keys[0], p.Keys[1] = p.Keys[1], p.Keys[0] }},
		{name: "witness is a requested key", mutate: func(p *Proof) {
			p.Terminals[0].Witness = &Witness{Key: p.Keys[0], ValueDigest: entries[0].ValueDigest}
		}},
		{name: "witness off the path", mutate: func(p *Proof) {
			k := p.Keys[0]
			k[0] ^= 0x80
			p.Terminals[0].Witness = &Witness{Key: k, ValueDigest: entries[0].ValueDigest}
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proof, err := tree.Prove(subset)
			require.NoError(t, err)
			require.Greater(t, len(proof.Terminals), 1)
			test.mutate(proof)
			_, err = proof.Verify(tree.Hasher(), tree.Root(), entries)
			require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeMalformedProof), "got %v", err)
		})
	}
}

func TestMalformedPrograms(t *testing.T) {
	tree, a, b, _ := newABCTree(t)
	proof, err := tree.Prove([]crypto.Digest{a, b})
	require.NoError(t, err)
	entries := entriesFor(t, tree, a, b)
	tests := []struct {
		name string
		ops  []Op
	}{
		{name: "empty program", ops: nil},
		{name: "merge underflow", ops: []Op{{Code: OpTerminal}, {Code: OpMerge}}},
		{name: "too many terminals", ops: []Op{{Code: OpTerminal}, {Code: OpTerminal}, {Code: OpTerminal}}},
		{name: "sibling above root", ops: []Op{{Code: OpTerminal}, {Code: OpSibling}, {Code: OpSibling}, {Code: OpSibling}, {Code: OpSibling}}},
		{name: "unknown op", ops: []Op{{Code: 9}}},
		{name: "merge of non siblings", ops: []Op{{Code: OpTerminal}, {Code: OpSibling}, {Code: OpTerminal}, {Code: OpMerge}}},
		{name: "leftover stack", ops: []Op{{Code: OpTerminal}, {Code: OpSibling}, {Code: OpSibling}, {Code: OpSibling}, {Code: OpTerminal}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := &CompiledProof{Keys: proof.Keys, Terminals: proof.Terminals, Ops: test.ops}
			_, err := c.ComputeRoot(tree.Hasher(), entries)
			require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeMalformedProof), "got %v", err)
		})
	}
}

func TestProofEncoding(t *testing.T) {
	tree, keys := newRandomTree(t, 24, 4)
	subset := append(keys[:5:5], keyFromBits("1"))
	proof, err := tree.Prove(subset)
	require.NoError(t, err)
	// generation is deterministic
	again, err := tree.Prove(subset)
	require.NoError(t, err)
	require.Equal(t, proof.Bytes(), again.Bytes())
	// protobuf wire
	decoded, err := NewProofFromBytes(proof.Bytes())
	require.NoError(t, err)
	require.Equal(t, proof, decoded)
	// json
	bz, err := lib.MarshalJSONIndent(proof)
	require.NoError(t, err)
	fromJSON := new(Proof)
	require.NoError(t, lib.UnmarshalJSON(bz, fromJSON))
	require.Equal(t, proof, fromJSON)
	// compiled
	compiled, err := proof.Compile()
	require.NoError(t, err)
	decodedCompiled, err := NewCompiledProofFromBytes(compiled.Bytes())
	require.NoError(t, err)
	require.Equal(t, compiled, decodedCompiled)
	root, err := decodedCompiled.ComputeRoot(tree.Hasher(), entriesFor(t, tree, subset...))
	require.NoError(t, err)
	require.Equal(t, tree.Root(), root)
	// truncated input
	bz = proof.Bytes()
	_, err = NewProofFromBytes(bz[:len(bz)-1])
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeDecodeProof))
	bz = compiled.Bytes()
	_, err = NewCompiledProofFromBytes(bz[:len(bz)-1])
	require.True(t, lib.HasCode(err, lib.ProofModule, lib.CodeDecodeProof))
}

func TestCompiledZeroSiblingIsOneByte(t *testing.T) {
	tree, a, b, _ := newABCTree(t)
	proof, err := tree.Prove([]crypto.Digest{a, b})
	require.NoError(t, err)
	compiled, err := proof.Compile()
	require.NoError(t, err)
	withZero := len(compiled.Bytes())
	compiled.Ops[3].Sibling = keyFromBits("1") // the zero sibling at 01 made non-zero
	require.Equal(t, withZero+crypto.HashSize, len(compiled.Bytes()))
}

func TestVerifyRoots(t *testing.T) {
	tree, keys := newRandomTree(t, 16, 8)
	old := tree.Root()
	_, err := tree.Update(keys[3], "changed")
	require.NoError(t, err)
	proof, err := tree.Prove(keys[:4])
	require.NoError(t, err)
	compiled, err := proof.Compile()
	require.NoError(t, err)
	entries := entriesFor(t, tree, keys[:4]...)
	results, err := compiled.VerifyRoots(context.Background(), tree.Hasher(), []crypto.Digest{old, tree.Root(), crypto.ZeroDigest}, entries)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, false}, results)
	// proofs for historical roots
	historic, err := tree.ProveAt(old, keys[:4])
	require.NoError(t, err)
	oldEntries := append(entriesFor(t, tree, keys[:3]...), Entry{Key: keys[3], ValueDigest: lib.NewWordCodec().ToDigest("d")})
	ok, err := historic.Verify(tree.Hasher(), old, oldEntries)
	require.NoError(t, err)
	require.True(t, ok)
	// cancelled contexts stop the fan out
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = compiled.VerifyRoots(ctx, tree.Hasher(), []crypto.Digest{old}, entries)
	require.Error(t, err)
}

func TestHasherStrategies(t *testing.T) {
	for _, name := range []string{crypto.Blake2bName, crypto.SHA256Name, crypto.Blake3Name} {
		t.Run(name, func(t *testing.T) {
			h, err := crypto.HasherByName(name)
			require.NoError(t, err)
			tree := NewSMT[string](NewMemoryStore(), h, lib.NewWordCodec(), lib.NewNullLogger(), nil)
			k := keyFromBits("11")
			_, err = tree.UpdateAll([]KeyValue[string]{{k, "x"}, {keyFromBits("0"), "y"}})
			require.NoError(t, err)
			proof, err := tree.Prove([]crypto.Digest{k})
			require.NoError(t, err)
			entries := entriesFor(t, tree, k)
			ok, err := proof.Verify(h, tree.Root(), entries)
			require.NoError(t, err)
			require.True(t, ok)
			// a verifier using another strategy disagrees
			other := crypto.NewSHA256Hasher
			if name == crypto.SHA256Name {
				other = crypto.NewBlake3Hasher
			}
			ok, err = proof.Verify(other, tree.Root(), entries)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}
