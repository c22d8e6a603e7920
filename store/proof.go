package store

import (
	"fmt"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
)

/*
	A batched proof covers a sorted set of keys. Walking each key from the root ends at a terminal:
	an empty subtree, the key's own leaf, or a foreign leaf (the witness of a non-inclusion proof).
	Keys ending at the same terminal share it.

	The verifier rebuilds the root with a stack machine over the terminals in key order. After
	pushing a terminal the top of the stack is raised one level at a time, either by merging with the
	element below it (when both are the two children of one node) or by hashing with the next sibling
	digest of the proof. It stops raising when the next terminal lives in the top's sibling subtree,
	since that sibling will be produced by the stack itself. The prover runs the same schedule to decide
	which siblings to emit, so siblings supplied by another key of the batch are never included.
*/

// Proof is a batched inclusion and non-inclusion proof
type Proof struct {
	Keys      []crypto.Digest `json:"keys"`      // sorted and unique
	Terminals []Terminal      `json:"terminals"` // in key order
	Siblings  []Sibling       `json:"siblings"`  // in consumption order
}

// Terminal is where the path of one or more consecutive keys ends
type Terminal struct {
	Depth   int      `json:"depth"`             // depth of the terminal subtree
	Count   int      `json:"count"`             // number of consecutive keys ending here
	Witness *Witness `json:"witness,omitempty"` // the leaf found here if it belongs to none of the keys
}

// Witness is a leaf occupying the path of keys that are absent
type Witness struct {
	Key         crypto.Digest `json:"key"`
	ValueDigest crypto.Digest `json:"valueDigest"`
}

// Sibling is a subtree digest the verifier cannot derive from the keys
type Sibling struct {
	Depth  int           `json:"depth"` // depth of the sibling subtree itself
	Digest crypto.Digest `json:"digest"`
}

// Entry is a claim that Key maps to ValueDigest; a zero digest claims absence
type Entry struct {
	Key         crypto.Digest `json:"key"`
	ValueDigest crypto.Digest `json:"valueDigest"`
}

// Prove() generates a proof for keys against the current root
func (s *SMT[V]) Prove(keys []crypto.Digest) (*Proof, lib.ErrorI) {
	return s.ProveAt(s.Root(), keys)
}

// ProveAt() generates a proof for keys against any root reachable in the store
func (s *SMT[V]) ProveAt(root crypto.Digest, keys []crypto.Digest) (*Proof, lib.ErrorI) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeySet()
	}
	p := &Proof{Keys: lib.SortedUniqueDigests(keys)}
	requested := make(map[crypto.Digest]struct{}, len(p.Keys))
	for _, k := range p.Keys {
		requested[k] = struct{}{}
	}
	var (
		paths [][]*lib.Node   // the path of each terminal's first key
		plan  []planTerminal  // schedule input
		first crypto.Digest   // first key of the current terminal
	)
	for _, key := range p.Keys {
		t, err := s.traverse(root, key)
		if err != nil {
			return nil, err
		}
		// keys sharing the terminal of the previous key join it
		if n := len(p.Terminals); n > 0 && p.Terminals[n-1].Depth == t.depth() && first.CommonPrefixLen(key) >= t.depth() {
			p.Terminals[n-1].Count++
			continue
		}
		term := Terminal{Depth: t.depth(), Count: 1}
		if t.node != nil {
			if _, found := requested[t.node.Key]; !found {
				term.Witness = &Witness{Key: t.node.Key, ValueDigest: t.node.ValueDigest}
			}
		}
		first = key
		p.Terminals = append(p.Terminals, term)
		paths = append(paths, t.path)
		plan = append(plan, planTerminal{key: key, depth: t.depth()})
	}
	ops, err := schedule(plan)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.code != OpSibling {
			continue
		}
		// the sibling of the element at depth d hangs off the path node at depth d-1
		key, parent := plan[op.terminal].key, paths[op.terminal][op.depth-1]
		p.Siblings = append(p.Siblings, Sibling{
			Depth:  op.depth,
			Digest: parent.Child(1 - key.Bit(op.depth-1)),
		})
	}
	s.metrics.ObserveProof(len(p.Keys), len(p.Siblings))
	s.log.Debugf("Generated proof for %d keys with %d terminals and %d siblings", len(p.Keys), len(p.Terminals), len(p.Siblings))
	return p, nil
}

// Verify() checks the entries against root
// a false result with a nil error means the proof is well formed but does not match
func (p *Proof) Verify(hasher crypto.HasherFactory, root crypto.Digest, entries []Entry) (bool, lib.ErrorI) {
	c, err := p.Compile()
	if err != nil {
		return false, err
	}
	return c.Verify(hasher, root, entries)
}

// Compile() validates the proof and flattens its schedule into a replayable program
func (p *Proof) Compile() (*CompiledProof, lib.ErrorI) {
	plan, err := validateShape(p.Keys, p.Terminals)
	if err != nil {
		return nil, err
	}
	ops, err := schedule(plan)
	if err != nil {
		return nil, err
	}
	c := &CompiledProof{Keys: p.Keys, Terminals: p.Terminals, Ops: make([]Op, 0, len(ops))}
	next := 0
	for _, op := range ops {
		switch op.code {
		case OpSibling:
			if next >= len(p.Siblings) {
				return nil, ErrMalformedProof("not enough siblings")
			}
			if sib := p.Siblings[next]; sib.Depth != op.depth {
				return nil, ErrMalformedProof(fmt.Sprintf("sibling %d at depth %d, expected %d", next, sib.Depth, op.depth))
			}
			c.Ops = append(c.Ops, Op{Code: OpSibling, Sibling: p.Siblings[next].Digest})
			next++
		default:
			c.Ops = append(c.Ops, Op{Code: op.code})
		}
	}
	if next != len(p.Siblings) {
		return nil, ErrMalformedProof(fmt.Sprintf("%d unused siblings", len(p.Siblings)-next))
	}
	return c, nil
}

// validateShape() checks the keys and terminals and returns the schedule input
func validateShape(keys []crypto.Digest, terminals []Terminal) ([]planTerminal, lib.ErrorI) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeySet()
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Compare(keys[i]) >= 0 {
			return nil, ErrMalformedProof("keys are not sorted and unique")
		}
	}
	plan, next := make([]planTerminal, 0, len(terminals)), 0
	for i, t := range terminals {
		if t.Count < 1 || next+t.Count > len(keys) {
			return nil, ErrMalformedProof(fmt.Sprintf("terminal %d covers %d keys", i, t.Count))
		}
		if t.Depth < 0 || t.Depth > crypto.KeyBits {
			return nil, ErrMalformedProof(fmt.Sprintf("terminal %d at depth %d", i, t.Depth))
		}
		group := keys[next : next+t.Count]
		// sorted keys share a prefix if the first and last do
		if group[0].CommonPrefixLen(group[len(group)-1]) < t.Depth {
			return nil, ErrMalformedProof(fmt.Sprintf("terminal %d does not cover its keys", i))
		}
		if w := t.Witness; w != nil {
			if w.ValueDigest.IsZero() || w.Key.CommonPrefixLen(group[0]) < t.Depth {
				return nil, ErrMalformedProof(fmt.Sprintf("witness of terminal %d is not on its path", i))
			}
			for _, k := range group {
				if k == w.Key {
					return nil, ErrMalformedProof(fmt.Sprintf("witness of terminal %d is a requested key", i))
				}
			}
		}
		plan = append(plan, planTerminal{key: group[0], depth: t.Depth})
		next += t.Count
	}
	if next != len(keys) {
		return nil, ErrMalformedProof(fmt.Sprintf("%d keys not covered by a terminal", len(keys)-next))
	}
	return plan, nil
}

// planTerminal is the position of a terminal: the first key ending there and its depth
type planTerminal struct {
	key   crypto.Digest
	depth int
}

// planOp is one step of the combination schedule
type planOp struct {
	code     OpCode
	terminal int // the terminal whose path the element on top of the stack follows
	depth    int // for siblings, the depth of the sibling subtree
}

// schedule() decides, from positions alone, how the terminals combine into the root
func schedule(terms []planTerminal) ([]planOp, lib.ErrorI) {
	type element struct {
		key      crypto.Digest
		depth    int
		terminal int
	}
	var (
		ops   []planOp
		stack []element
	)
	for i, term := range terms {
		if i > 0 && terms[i-1].key.Compare(term.key) >= 0 {
			return nil, ErrMalformedProof("terminals out of order")
		}
		stack = append(stack, element{key: term.key, depth: term.depth, terminal: i})
		ops = append(ops, planOp{code: OpTerminal, terminal: i})
		var next *planTerminal
		if i+1 < len(terms) {
			next = &terms[i+1]
			if term.key.CommonPrefixLen(next.key) >= term.depth {
				return nil, ErrMalformedProof(fmt.Sprintf("terminal %d overlaps terminal %d", i+1, i))
			}
		}
		for top := stack[len(stack)-1]; top.depth > 0; top = stack[len(stack)-1] {
			d := top.depth
			// the next terminal lives in the sibling subtree and will produce it
			if next != nil && top.key.CommonPrefixLen(next.key) == d-1 {
				break
			}
			n := len(stack)
			if n > 1 && stack[n-2].key.CommonPrefixLen(top.key) >= d-1 {
				left := stack[n-2]
				if left.depth != d || left.key.CommonPrefixLen(top.key) != d-1 {
					return nil, ErrMalformedProof(fmt.Sprintf("terminals %d and %d are misaligned", left.terminal, top.terminal))
				}
				stack = append(stack[:n-2], element{key: left.key, depth: d - 1, terminal: left.terminal})
				ops = append(ops, planOp{code: OpMerge, terminal: left.terminal})
				continue
			}
			ops = append(ops, planOp{code: OpSibling, terminal: top.terminal, depth: d})
			stack[n-1].depth = d - 1
		}
	}
	if len(stack) != 1 || stack[0].depth != 0 {
		return nil, ErrMalformedProof("terminals do not combine into a single root")
	}
	return ops, nil
}
