// Package group implements the cryptographic primitives the voting core
// is built on: the elliptic-curve group used for ElGamal encryption, the
// ElGamal cryptosystem itself, Schnorr/Chaum-Pedersen proofs of knowledge,
// a verifiable shuffle proof, and domain-separated hashing. There is no
// global singleton; callers pass points and scalars explicitly.
package group

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Point is an element of the G1 group used throughout the voting core,
// trimmed to the operations this module actually needs.
type Point interface {
	New() Point
	Order() *big.Int
	Add(a, b Point) Point
	SafeAdd(a, b Point) Point
	ScalarMult(a Point, scalar *big.Int) Point
	ScalarBaseMult(scalar *big.Int) Point
	Neg(a Point) Point
	Equal(a Point) bool
	IsZero() bool
	Marshal() []byte
	Unmarshal(buf []byte) error
	String() string
}

// G1 wraps a bn254.G1Affine point.
type G1 struct {
	inner bn254.G1Affine
	mu    sync.Mutex
}

// NewPoint returns the identity element of G1.
func NewPoint() *G1 {
	return &G1{}
}

// Order returns the order of the scalar field (the group's prime order).
func (g *G1) Order() *big.Int {
	return fr.Modulus()
}

// New returns a fresh zero-valued point on the same curve.
func (g *G1) New() Point {
	return &G1{}
}

// Generator returns the standard G1 generator.
func Generator() *G1 {
	_, _, g1, _ := bn254.Generators()
	return &G1{inner: g1}
}

// Add sets g = a + b and returns g.
func (g *G1) Add(a, b Point) Point {
	var res bn254.G1Affine
	res.Add(&a.(*G1).inner, &b.(*G1).inner)
	g.inner = res
	return g
}

// SafeAdd is Add guarded by a mutex on the receiver, mirroring the
// teacher's concurrent-accumulation helper used when combining partial
// results from multiple goroutines into one shared point.
func (g *G1) SafeAdd(a, b Point) Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Add(a, b)
}

// ScalarMult sets g = scalar*a and returns g.
func (g *G1) ScalarMult(a Point, scalar *big.Int) Point {
	var res bn254.G1Affine
	res.ScalarMultiplication(&a.(*G1).inner, reduce(scalar))
	g.inner = res
	return g
}

// ScalarBaseMult sets g = scalar*Generator and returns g.
func (g *G1) ScalarBaseMult(scalar *big.Int) Point {
	_, _, gen, _ := bn254.Generators()
	var res bn254.G1Affine
	res.ScalarMultiplication(&gen, reduce(scalar))
	g.inner = res
	return g
}

// Neg sets g = -a and returns g.
func (g *G1) Neg(a Point) Point {
	var res bn254.G1Affine
	res.Neg(&a.(*G1).inner)
	g.inner = res
	return g
}

// Equal reports whether g and a represent the same point.
func (g *G1) Equal(a Point) bool {
	other, ok := a.(*G1)
	if !ok {
		return false
	}
	return g.inner.Equal(&other.inner)
}

// IsZero reports whether g is the identity element.
func (g *G1) IsZero() bool {
	return g.inner.IsInfinity()
}

// Marshal returns the compressed byte encoding of g.
func (g *G1) Marshal() []byte {
	b := g.inner.Bytes()
	return b[:]
}

// Unmarshal decodes a compressed point into g.
func (g *G1) Unmarshal(buf []byte) error {
	if len(buf) != fr.Bytes {
		return fmt.Errorf("invalid point encoding length: got %d, want %d", len(buf), fr.Bytes)
	}
	var arr [fr.Bytes]byte
	copy(arr[:], buf)
	if _, err := g.inner.SetBytes(arr[:]); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	return nil
}

// String returns the hex encoding of g.
func (g *G1) String() string {
	return fmt.Sprintf("%x", g.Marshal())
}

// reduce folds an arbitrary scalar into [0, order).
func reduce(scalar *big.Int) *big.Int {
	return new(big.Int).Mod(scalar, fr.Modulus())
}
