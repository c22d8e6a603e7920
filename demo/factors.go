package demo

import (
	"math/bits"

	"github.com/canopy-network/smt/lib"
)

// CheckFactors() rejects trivial factors and returns the product modulo 2^64
// wrapped reports that the true product does not fit in 64 bits; the product is never published
func CheckFactors(a, b uint64) (product uint64, wrapped bool, err lib.ErrorI) {
	if a == 1 || b == 1 {
		return 0, false, ErrTrivialFactor(a, b)
	}
	hi, lo := bits.Mul64(a, b)
	return lo, hi != 0, nil
}
