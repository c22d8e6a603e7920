package lib

import (
	"encoding/json"

	"github.com/canopy-network/smt/lib/crypto"
)

// ValueCodecI maps an application level value to its leaf digest and to the bytes persisted in the leaf
// CONTRACT: ToDigest(Zero()) == crypto.ZeroDigest and ToDigest is collision resistant for non-zero values
type ValueCodecI[V any] interface {
	ToDigest(v V) crypto.Digest      // the committed leaf value digest
	Zero() V                         // the 'absent' sentinel
	IsZero(v V) bool                 // true if v is the absent sentinel
	Marshal(v V) []byte              // bytes stored in the leaf node
	Unmarshal(bz []byte) (V, ErrorI) // inverse of Marshal
}

var (
	_ ValueCodecI[string] = WordCodec{}
	_ ValueCodecI[[]byte] = BytesCodec{}
)

// WordValuePersonalization separates value digests from the tree's own hashing
const WordValuePersonalization = "SMT"

// WordCodec treats values as strings; the empty string is absent
type WordCodec struct {
	hasher crypto.HasherFactory
}

// NewWordCodec() hashes words with blake2b personalized as WordValuePersonalization
func NewWordCodec() WordCodec {
	return WordCodec{hasher: crypto.NewBlake2bHasherWithPersonalization(WordValuePersonalization)}
}

func (c WordCodec) ToDigest(w string) crypto.Digest {
	if c.IsZero(w) {
		return crypto.ZeroDigest
	}
	return crypto.Sum(c.hasher, []byte(w))
}

func (c WordCodec) Zero() string                          { return "" }
func (c WordCodec) IsZero(w string) bool                  { return w == "" }
func (c WordCodec) Marshal(w string) []byte               { return []byte(w) }
func (c WordCodec) Unmarshal(bz []byte) (string, ErrorI) { return string(bz), nil }

// BytesCodec treats values as raw bytes; nil and empty are absent
type BytesCodec struct {
	hasher crypto.HasherFactory
}

// NewBytesCodec() hashes values with the given factory
func NewBytesCodec(hasher crypto.HasherFactory) BytesCodec { return BytesCodec{hasher: hasher} }

func (c BytesCodec) ToDigest(v []byte) crypto.Digest {
	if c.IsZero(v) {
		return crypto.ZeroDigest
	}
	return crypto.Sum(c.hasher, v)
}

func (c BytesCodec) Zero() []byte                          { return nil }
func (c BytesCodec) IsZero(v []byte) bool                  { return len(v) == 0 }
func (c BytesCodec) Marshal(v []byte) []byte               { return append([]byte(nil), v...) }
func (c BytesCodec) Unmarshal(bz []byte) ([]byte, ErrorI) { return append([]byte(nil), bz...), nil }

// JSONCodec stores any JSON serializable value; the Go zero value of V is absent
type JSONCodec[V comparable] struct {
	hasher crypto.HasherFactory
}

// NewJSONCodec() hashes the JSON encoding of values with the given factory
func NewJSONCodec[V comparable](hasher crypto.HasherFactory) JSONCodec[V] {
	return JSONCodec[V]{hasher: hasher}
}

func (c JSONCodec[V]) ToDigest(v V) crypto.Digest {
	if c.IsZero(v) {
		return crypto.ZeroDigest
	}
	return crypto.Sum(c.hasher, c.Marshal(v))
}

func (c JSONCodec[V]) Zero() (v V) { return }

func (c JSONCodec[V]) IsZero(v V) bool {
	var zero V
	return v == zero
}

// Marshal() panics only for types json cannot encode, which is a programming error
func (c JSONCodec[V]) Marshal(v V) []byte {
	bz, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bz
}

func (c JSONCodec[V]) Unmarshal(bz []byte) (v V, e ErrorI) {
	if err := json.Unmarshal(bz, &v); err != nil {
		return v, ErrDecodeValue(err)
	}
	return v, nil
}
