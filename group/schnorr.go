package group

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// SchnorrProof is a standard Schnorr proof of knowledge of a discrete log:
// given P = xG, it proves knowledge of x without revealing it. Used for
// the DKG's channel key PoK (S0) and public key PoK (S2).
type SchnorrProof struct {
	Commitment *G1      // A = kG
	Response   *big.Int // s = k + c*x mod order
}

// ProveSchnorr proves knowledge of x such that pub = xG.
func ProveSchnorr(domain string, x *big.Int, pub *G1) (*SchnorrProof, error) {
	k, err := RandK()
	if err != nil {
		return nil, err
	}
	a := NewPoint().ScalarBaseMult(k).(*G1)
	c := Challenge(domain, pub, a)
	s := new(big.Int).Mul(c, x)
	s.Add(s, k)
	s.Mod(s, fr.Modulus())
	return &SchnorrProof{Commitment: a, Response: s}, nil
}

// VerifySchnorr checks a SchnorrProof against the claimed public point.
func VerifySchnorr(domain string, pub *G1, proof *SchnorrProof) bool {
	if proof == nil || proof.Commitment == nil || proof.Response == nil {
		return false
	}
	c := Challenge(domain, pub, proof.Commitment)
	lhs := NewPoint().ScalarBaseMult(proof.Response).(*G1)
	rhs := NewPoint().Add(proof.Commitment, NewPoint().ScalarMult(pub, c)).(*G1)
	return lhs.Equal(rhs)
}

// EncryptionProof is a compound Schnorr proof over the two generators G
// and Y (the election public key) for a Ciphertext C1=kG, C2=mG+kY, with
// a single challenge over C1, C2 and both commitments. It does not bound
// the plaintext to any set of values.
type EncryptionProof struct {
	CommitC1 *G1      // t1 = uG
	CommitC2 *G1      // t2 = uY
	Response *big.Int // s = u + c*k mod order
}

// ProveEncryption proves knowledge of the randomness k used to produce c =
// EncryptWithK(pk, m, k), without revealing k or m.
func ProveEncryption(domain string, pk *G1, c *Ciphertext, k *big.Int) (*EncryptionProof, error) {
	u, err := RandK()
	if err != nil {
		return nil, err
	}
	t1 := NewPoint().ScalarBaseMult(u).(*G1)
	t2 := NewPoint().ScalarMult(pk, u).(*G1)
	ch := Challenge(domain, pk, c.C1, c.C2, t1, t2)
	s := new(big.Int).Mul(ch, k)
	s.Add(s, u)
	s.Mod(s, fr.Modulus())
	return &EncryptionProof{CommitC1: t1, CommitC2: t2, Response: s}, nil
}

// VerifyEncryption checks that proof demonstrates knowledge of the
// randomness behind ciphertext c under public key pk, i.e. that C1 is of
// the form kG for some k the prover knows. It does not bound the
// plaintext to any set of values, and no package in this module adds
// such a check.
func VerifyEncryption(domain string, pk *G1, c *Ciphertext, proof *EncryptionProof) bool {
	if proof == nil {
		return false
	}
	ch := Challenge(domain, pk, c.C1, c.C2, proof.CommitC1, proof.CommitC2)
	lhs1 := NewPoint().ScalarBaseMult(proof.Response).(*G1)
	rhs1 := NewPoint().Add(proof.CommitC1, NewPoint().ScalarMult(c.C1, ch)).(*G1)
	if !lhs1.Equal(rhs1) {
		return false
	}
	lhs2 := NewPoint().ScalarMult(pk, proof.Response).(*G1)
	rhs2 := NewPoint().Add(proof.CommitC2, NewPoint().ScalarMult(c.C2, ch)).(*G1)
	return lhs2.Equal(rhs2)
}

// DLEQProof (Chaum-Pedersen) proves that two pairs (G, P) and (H, Q) share
// the same discrete log x: P=xG and Q=xH. Used to prove a decryption
// factor d_i = sk_i*C1 was computed with the same secret share that
// produced the trustee's published public key share pk_i = sk_i*G (T4).
type DLEQProof struct {
	CommitG *G1
	CommitH *G1
	Response *big.Int
}

// ProveDLEQ proves that q = x*h given p = x*g, for the shared secret x.
func ProveDLEQ(domain string, g, p, h, q *G1, x *big.Int) (*DLEQProof, error) {
	k, err := RandK()
	if err != nil {
		return nil, err
	}
	a := NewPoint().ScalarMult(g, k).(*G1)
	b := NewPoint().ScalarMult(h, k).(*G1)
	c := Challenge(domain, g, p, h, q, a, b)
	s := new(big.Int).Mul(c, x)
	s.Add(s, k)
	s.Mod(s, fr.Modulus())
	return &DLEQProof{CommitG: a, CommitH: b, Response: s}, nil
}

// VerifyDLEQ checks a DLEQProof over the stated bases and images.
func VerifyDLEQ(domain string, g, p, h, q *G1, proof *DLEQProof) bool {
	if proof == nil {
		return false
	}
	c := Challenge(domain, g, p, h, q, proof.CommitG, proof.CommitH)
	lhs1 := NewPoint().ScalarMult(g, proof.Response).(*G1)
	rhs1 := NewPoint().Add(proof.CommitG, NewPoint().ScalarMult(p, c)).(*G1)
	if !lhs1.Equal(rhs1) {
		return false
	}
	lhs2 := NewPoint().ScalarMult(h, proof.Response).(*G1)
	rhs2 := NewPoint().Add(proof.CommitH, NewPoint().ScalarMult(q, c)).(*G1)
	return lhs2.Equal(rhs2)
}

// ScalarFromBytes reduces an arbitrary byte string into a scalar, used when
// deriving deterministic per-trustee secret shares from seed material.
func ScalarFromBytes(b []byte) *big.Int {
	s := new(big.Int).SetBytes(b)
	return s.Mod(s, fr.Modulus())
}

// ValidateScalar reports an error if s is not in [0, order).
func ValidateScalar(s *big.Int) error {
	if s == nil || s.Sign() < 0 || s.Cmp(fr.Modulus()) >= 0 {
		return fmt.Errorf("scalar out of range")
	}
	return nil
}
