// Package codec implements the bidirectional mapping between a structured
// vote intent and the non-negative integer used as the ElGamal plaintext
// (C2), plus the fixed-byte wire encoding of that integer.
package codec

import (
	"fmt"
	"math/big"
)

// EncodeMixedRadix evaluates n = Σ values[i] * Π_{j<i} bases[j]. bases and
// values must have equal length; values[i] must lie in [0, bases[i]).
func EncodeMixedRadix(bases, values []uint64) (*big.Int, error) {
	if len(bases) != len(values) {
		return nil, fmt.Errorf("codec: bases/values length mismatch: %d != %d", len(bases), len(values))
	}
	n := new(big.Int)
	mult := big.NewInt(1)
	for i := range bases {
		if bases[i] < 2 {
			return nil, fmt.Errorf("codec: base[%d]=%d is not a valid radix", i, bases[i])
		}
		if values[i] >= bases[i] {
			return nil, fmt.Errorf("codec: value[%d]=%d out of range for base %d", i, values[i], bases[i])
		}
		term := new(big.Int).Mul(big.NewInt(int64(values[i])), mult)
		n.Add(n, term)
		mult.Mul(mult, big.NewInt(int64(bases[i])))
	}
	return n, nil
}

// DecodeMixedRadix recovers values such that EncodeMixedRadix(bases,
// values) == n, by repeated division by successive bases, reversing
// EncodeMixedRadix. It returns an error if n does not fit within the
// product of all bases.
func DecodeMixedRadix(n *big.Int, bases []uint64) ([]uint64, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("codec: negative integer %s", n.String())
	}
	remaining := new(big.Int).Set(n)
	values := make([]uint64, len(bases))
	for i, b := range bases {
		if b < 2 {
			return nil, fmt.Errorf("codec: base[%d]=%d is not a valid radix", i, b)
		}
		base := big.NewInt(int64(b))
		q, r := new(big.Int), new(big.Int)
		q.DivMod(remaining, base, r)
		values[i] = r.Uint64()
		remaining = q
	}
	if remaining.Sign() != 0 {
		return nil, fmt.Errorf("codec: %w", ErrBallotTooLarge)
	}
	return values, nil
}
