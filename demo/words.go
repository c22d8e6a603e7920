package demo

import (
	"encoding/binary"
	"strings"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"github.com/canopy-network/smt/metrics"
	"github.com/canopy-network/smt/store"
)

// Sentence is the text whose words populate the demo tree
const Sentence = "The quick brown fox jumps over the lazy dog"

// corruption is appended to a stored word to tamper with it
const corruption = "~"

// Demo drives the factor check and the word tree over an env
type Demo struct {
	tree    *store.SMT[string]
	log     lib.LoggerI
	metrics *metrics.Metrics
}

// New() creates a driver over a word tree
func New(tree *store.SMT[string], log lib.LoggerI, m *metrics.Metrics) *Demo {
	return &Demo{tree: tree, log: log, metrics: m}
}

// NewInMemory() creates a driver over a fresh in-memory word tree
func NewInMemory(log lib.LoggerI, m *metrics.Metrics) *Demo {
	tree := store.NewSMT[string](store.NewMemoryStore(), crypto.NewBlake2bHasher, lib.NewWordCodec(), log, m)
	return New(tree, log, m)
}

// Words() splits the sentence on whitespace
func Words() []string { return strings.Fields(Sentence) }

// WordKey() derives the key of the i-th word: the "SMT" personalized blake2b of the little endian index
func WordKey(i uint32) crypto.Digest {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], i)
	return crypto.Sum(crypto.NewBlake2bHasherWithPersonalization(lib.WordValuePersonalization), le[:])
}

// ConstructWordTree() inserts each word and verifies a fresh proof for it against the new root
// the words at the corrupt indices are tampered with in the tree right before their proof is generated
// returns true only if every proof verifies
func (d *Demo) ConstructWordTree(words []string, corrupt ...int) (bool, lib.ErrorI) {
	tampered := make(map[int]bool, len(corrupt))
	for _, i := range corrupt {
		tampered[i] = true
	}
	codec, result := d.tree.Codec(), true
	for i, word := range words {
		key := WordKey(uint32(i))
		if _, err := d.tree.Update(key, word); err != nil {
			return false, err
		}
		if tampered[i] {
			d.log.Warnf("Corrupting word %d (%q) before proving it", i, word)
			if _, err := d.tree.Update(key, word+corruption); err != nil {
				return false, err
			}
		}
		root := d.tree.Root()
		proof, err := d.tree.ProveAt(root, []crypto.Digest{key})
		if err != nil {
			return false, err
		}
		ok, err := proof.Verify(d.tree.Hasher(), root, []store.Entry{{Key: key, ValueDigest: codec.ToDigest(word)}})
		d.metrics.ObserveVerify(ok, err)
		if err != nil {
			return false, err
		}
		d.log.Debugf("Word %d (%q) verified=%t root=%s", i, word, ok, root)
		result = result && ok
	}
	return result, nil
}

// Run() reads two factors, checks them, then commits whether the word tree verified
func (d *Demo) Run(env Env, corrupt ...int) lib.ErrorI {
	var a, b uint64
	if err := env.Read(&a); err != nil {
		return err
	}
	if err := env.Read(&b); err != nil {
		return err
	}
	product, wrapped, err := CheckFactors(a, b)
	if err != nil {
		return err
	}
	if wrapped {
		d.log.Warnf("Product of %d and %d wrapped to %d", a, b, product)
	}
	d.log.Infof("Factors %d and %d are non-trivial, product %d", a, b, product)
	result, err := d.ConstructWordTree(Words(), corrupt...)
	if err != nil {
		return err
	}
	d.log.Infof("Word tree verified=%t with root %s", result, d.tree.Root())
	return env.Commit(result)
}
