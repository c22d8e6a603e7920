package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"math/bits"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

const (
	HashSize = 32 // every digest in the tree is 256 bits
	KeyBits  = HashSize * 8

	// DefaultPersonalization separates the tree's hashing from any other use of the same primitive
	DefaultPersonalization = "sparsemerkletree"

	Blake2bName = "blake2b"
	SHA256Name  = "sha256"
	Blake3Name  = "blake3"
)

/*
	Hashing in the tree is a pluggable strategy: a HasherFactory produces a fresh, domain separated Hasher
	for every digest computed. The tree, the value codecs and the proof verifier all take the factory so
	two parties that agree on the factory agree on every digest.
*/

// Digest is a fixed width 256-bit hash output, used both as a node identity and as a key path
type Digest [HashSize]byte

// ZeroDigest is the reserved 'empty' sentinel
var ZeroDigest Digest

// Hasher consumes bytes and digests and produces exactly one Digest
type Hasher interface {
	io.Writer
	io.ByteWriter
	WriteDigest(d Digest)
	Sum() Digest
}

// HasherFactory creates a new Hasher for each digest computation
type HasherFactory func() Hasher

// hasher adapts a standard library hash.Hash to the Hasher interface
type hasher struct{ h hash.Hash }

func (h *hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

func (h *hasher) WriteByte(b byte) error {
	_, err := h.h.Write([]byte{b})
	return err
}

func (h *hasher) WriteDigest(d Digest) { _, _ = h.h.Write(d[:]) }

func (h *hasher) Sum() (d Digest) {
	copy(d[:], h.h.Sum(nil))
	return
}

// NewBlake2bHasher() returns the default tree hasher: 256-bit blake2b personalized for the tree
func NewBlake2bHasher() Hasher { return blake2bDefault() }

var blake2bDefault = NewBlake2bHasherWithPersonalization(DefaultPersonalization)

// NewBlake2bHasherWithPersonalization() returns a factory of 256-bit blake2b hashers keyed by the personalization
// NOTE: x/crypto/blake2b has no personalization parameter, the MAC key serves the same separation purpose
func NewBlake2bHasherWithPersonalization(personalization string) HasherFactory {
	if len(personalization) > blake2b.Size {
		panic(fmt.Sprintf("blake2b personalization is limited to %d bytes", blake2b.Size))
	}
	key := []byte(personalization)
	return func() Hasher {
		h, err := blake2b.New256(key)
		if err != nil {
			panic(err) // unreachable: the key length is checked above
		}
		return &hasher{h: h}
	}
}

// NewSHA256Hasher() returns a sha256 hasher prefixed with the default personalization
func NewSHA256Hasher() Hasher {
	h := sha256.New()
	_, _ = h.Write([]byte(DefaultPersonalization))
	return &hasher{h: h}
}

// NewBlake3Hasher() returns a blake3 hasher in derive-key mode using the personalization as context
func NewBlake3Hasher() Hasher {
	return &hasher{h: blake3.NewDeriveKey(DefaultPersonalization)}
}

// HasherByName() resolves a configured hasher name to its factory
func HasherByName(name string) (HasherFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Blake2bName, "":
		return NewBlake2bHasher, nil
	case SHA256Name:
		return NewSHA256Hasher, nil
	case Blake3Name:
		return NewBlake3Hasher, nil
	}
	return nil, fmt.Errorf("unknown hasher %q", name)
}

// Sum() hashes the parts in order with a fresh hasher from the factory
func Sum(newHasher HasherFactory, parts ...[]byte) Digest {
	h := newHasher()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum()
}

// DigestFromBytes() converts a 32 byte slice into a Digest
func DigestFromBytes(bz []byte) (d Digest, err error) {
	if len(bz) != HashSize {
		return d, fmt.Errorf("digest must be %d bytes, got %d", HashSize, len(bz))
	}
	copy(d[:], bz)
	return
}

// DigestFromHex() parses a hex string (with or without 0x) into a Digest
func DigestFromHex(s string) (d Digest, err error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, err
	}
	return DigestFromBytes(bz)
}

// IsZero() returns true for the empty sentinel
func (d Digest) IsZero() bool { return d == ZeroDigest }

// Bytes() returns a copy of the digest as a slice
func (d Digest) Bytes() []byte { return append([]byte(nil), d[:]...) }

// String() returns the hex encoding
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Compare() orders digests lexicographically, which is also the left-to-right order of key paths
func (d Digest) Compare(o Digest) int { return bytes.Compare(d[:], o[:]) }

// Bit() returns the path bit at depth i, 0 is left and 1 is right
// CONTRACT: 0 <= i < KeyBits
func (d Digest) Bit(i int) int { return int(d[i/8]>>(7-uint(i%8))) & 1 }

// CommonPrefixLen() returns the number of leading bits shared with o
func (d Digest) CommonPrefixLen(o Digest) int {
	for i := 0; i < HashSize; i++ {
		if x := d[i] ^ o[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KeyBits
}

// MarshalJSON() encodes the digest as a hex string
func (d Digest) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// UnmarshalJSON() decodes a hex string into the digest
func (d *Digest) UnmarshalJSON(b []byte) (err error) {
	var s string
	if err = json.Unmarshal(b, &s); err != nil {
		return
	}
	*d, err = DigestFromHex(s)
	return
}
