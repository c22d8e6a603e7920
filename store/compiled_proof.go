package store

import (
	"context"
	"fmt"
	"runtime"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"golang.org/x/sync/errgroup"
)

// OpCode is an instruction of a compiled proof
type OpCode byte

const (
	OpTerminal OpCode = 1 // push the digest of the next terminal
	OpSibling  OpCode = 2 // hash the top of the stack with a sibling digest, one level up
	OpMerge    OpCode = 3 // hash the two top elements, which are left and right children of one node

	opZeroSibling OpCode = 4 // wire only: OpSibling with the zero digest
)

// Op is a single instruction; Sibling is set only for OpSibling
type Op struct {
	Code    OpCode
	Sibling crypto.Digest
}

// CompiledProof is a proof whose combination schedule has been resolved into a flat program
type CompiledProof struct {
	Keys      []crypto.Digest
	Terminals []Terminal
	Ops       []Op
}

// Verify() checks the entries against root
func (c *CompiledProof) Verify(hasher crypto.HasherFactory, root crypto.Digest, entries []Entry) (bool, lib.ErrorI) {
	values, err := c.align(entries)
	if err != nil {
		return false, err
	}
	computed, reachable, err := c.run(hasher, values)
	if err != nil {
		return false, err
	}
	return reachable && computed == root, nil
}

// ComputeRoot() returns the root implied by the proof and the entries
// entries that no tree could hold at once (two present keys under one terminal) give ErrNoRootForClaims
func (c *CompiledProof) ComputeRoot(hasher crypto.HasherFactory, entries []Entry) (crypto.Digest, lib.ErrorI) {
	values, err := c.align(entries)
	if err != nil {
		return crypto.ZeroDigest, err
	}
	computed, reachable, err := c.run(hasher, values)
	if err != nil {
		return crypto.ZeroDigest, err
	}
	if !reachable {
		return crypto.ZeroDigest, ErrNoRootForClaims()
	}
	return computed, nil
}

// VerifyRoots() checks the same entries against many candidate roots concurrently
func (c *CompiledProof) VerifyRoots(ctx context.Context, hasher crypto.HasherFactory, roots []crypto.Digest, entries []Entry) ([]bool, lib.ErrorI) {
	values, err := c.align(entries)
	if err != nil {
		return nil, err
	}
	results := make([]bool, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			if e := ctx.Err(); e != nil {
				return e
			}
			computed, reachable, e := c.run(hasher, values)
			if e != nil {
				return e
			}
			results[i] = reachable && computed == root
			return nil
		})
	}
	if e := g.Wait(); e != nil {
		if er, ok := e.(lib.ErrorI); ok {
			return nil, er
		}
		return nil, lib.ErrInvalidArgument(e)
	}
	return results, nil
}

// align() orders the entry digests like the proof keys
func (c *CompiledProof) align(entries []Entry) ([]crypto.Digest, lib.ErrorI) {
	if len(c.Keys) == 0 {
		return nil, ErrEmptyKeySet()
	}
	claims := make(map[crypto.Digest]crypto.Digest, len(entries))
	for _, e := range entries {
		if prev, found := claims[e.Key]; found && prev != e.ValueDigest {
			return nil, ErrMalformedProof(fmt.Sprintf("conflicting entries for key %s", e.Key))
		}
		claims[e.Key] = e.ValueDigest
	}
	if len(claims) != len(c.Keys) {
		return nil, ErrKeyMismatch()
	}
	values := make([]crypto.Digest, len(c.Keys))
	for i, k := range c.Keys {
		v, found := claims[k]
		if !found {
			return nil, ErrKeyMismatch()
		}
		values[i] = v
	}
	return values, nil
}

// run() executes the program with values aligned to the keys
// reachable is false when the values cannot describe any tree; the program is still fully validated
func (c *CompiledProof) run(hasher crypto.HasherFactory, values []crypto.Digest) (root crypto.Digest, reachable bool, err lib.ErrorI) {
	plan, err := validateShape(c.Keys, c.Terminals)
	if err != nil {
		return crypto.ZeroDigest, false, err
	}
	reachable = true
	type element struct {
		key    crypto.Digest
		depth  int
		digest crypto.Digest
	}
	var (
		stack         []element
		terminal, key int // next terminal and the index of its first key
	)
	for i, op := range c.Ops {
		n := len(stack)
		switch op.Code {
		case OpTerminal:
			if terminal >= len(c.Terminals) {
				return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("op %d: no terminal left", i))
			}
			t := c.Terminals[terminal]
			digest, ok := terminalDigest(hasher, t, c.Keys[key:key+t.Count], values[key:key+t.Count])
			reachable = reachable && ok
			stack = append(stack, element{key: plan[terminal].key, depth: t.Depth, digest: digest})
			terminal, key = terminal+1, key+t.Count
		case OpSibling:
			if n == 0 || stack[n-1].depth == 0 {
				return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("op %d: sibling above the root", i))
			}
			top := &stack[n-1]
			top.depth--
			if top.key.Bit(top.depth) == 0 {
				top.digest = lib.HashInternal(hasher, top.digest, op.Sibling)
			} else {
				top.digest = lib.HashInternal(hasher, op.Sibling, top.digest)
			}
		case OpMerge:
			if n < 2 {
				return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("op %d: stack underflow", i))
			}
			left, right := stack[n-2], stack[n-1]
			d := right.depth
			if d == 0 || left.depth != d || left.key.CommonPrefixLen(right.key) != d-1 || left.key.Bit(d-1) != 0 {
				return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("op %d: merged elements are not siblings", i))
			}
			stack = append(stack[:n-2], element{key: left.key, depth: d - 1, digest: lib.HashInternal(hasher, left.digest, right.digest)})
		default:
			return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("op %d: unknown code %d", i, op.Code))
		}
	}
	if terminal != len(c.Terminals) {
		return crypto.ZeroDigest, false, ErrMalformedProof(fmt.Sprintf("%d terminals never pushed", len(c.Terminals)-terminal))
	}
	if len(stack) != 1 || stack[0].depth != 0 {
		return crypto.ZeroDigest, false, ErrMalformedProof("program does not end with a single root")
	}
	return stack[0].digest, reachable, nil
}

// terminalDigest() computes a terminal subtree digest from what the entries claim
// at most one key of a terminal can be present, otherwise ok is false; with none present the terminal
// holds the witness or nothing
func terminalDigest(hasher crypto.HasherFactory, t Terminal, keys, values []crypto.Digest) (digest crypto.Digest, ok bool) {
	present := -1
	for i, v := range values {
		if v.IsZero() {
			continue
		}
		if present >= 0 {
			return crypto.ZeroDigest, false
		}
		present = i
	}
	switch {
	case present >= 0:
		return lib.HashLeaf(hasher, keys[present], values[present]), true
	case t.Witness != nil:
		return lib.HashLeaf(hasher, t.Witness.Key, t.Witness.ValueDigest), true
	default:
		return crypto.ZeroDigest, true
	}
}
