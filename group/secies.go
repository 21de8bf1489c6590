package group

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// EncryptScalar encrypts an arbitrary scalar message (not just a small
// exponent) to recipientPub using an ECDH-derived additive mask, the way
// a DKG share gets encrypted to a trustee's ephemeral Channel key. Unlike
// exponential ElGamal this does not require solving a discrete log to
// decrypt, which is what makes it suitable for full-width scalars like a
// Shamir share.
func EncryptScalar(recipientPub *G1, message *big.Int) (ciphertext *big.Int, ephemeral *G1, err error) {
	r, err := RandK()
	if err != nil {
		return nil, nil, err
	}
	ephemeral = NewPoint().ScalarBaseMult(r).(*G1)
	shared := NewPoint().ScalarMult(recipientPub, r).(*G1)
	mask := maskFromSharedPoint(shared)

	c := new(big.Int).Add(message, mask)
	c.Mod(c, fr.Modulus())
	return c, ephemeral, nil
}

// DecryptScalar reverses EncryptScalar given the recipient's private key.
func DecryptScalar(recipientPriv *big.Int, ciphertext *big.Int, ephemeral *G1) *big.Int {
	shared := NewPoint().ScalarMult(ephemeral, recipientPriv).(*G1)
	mask := maskFromSharedPoint(shared)
	m := new(big.Int).Sub(ciphertext, mask)
	return m.Mod(m, fr.Modulus())
}

func maskFromSharedPoint(shared *G1) *big.Int {
	h := sha256.Sum256(append([]byte("secies-mask"), shared.Marshal()...))
	mask := new(big.Int).SetBytes(h[:])
	return mask.Mod(mask, fr.Modulus())
}

// VerifyChannelShare is a convenience wrapper used by the DKG's Shares
// step: it decrypts share ciphertext under the recipient's own channel
// private key and checks it against the sender's published Feldman
// commitment polynomial evaluated at the recipient's position.
func VerifyChannelShare(recipientPriv *big.Int, ciphertext *big.Int, ephemeral *G1, position int, commitments []*G1) error {
	share := DecryptScalar(recipientPriv, ciphertext, ephemeral)
	expected := EvaluateCommitment(commitments, position)
	got := NewPoint().ScalarBaseMult(share).(*G1)
	if !got.Equal(expected) {
		return fmt.Errorf("group: share fails Feldman commitment check at position %d", position)
	}
	return nil
}

// EvaluateCommitment evaluates Σ commitments[k] * position^k in the
// exponent, i.e. the public commitment to poly(position) = Σ a_k *
// position^k, without revealing poly's coefficients.
func EvaluateCommitment(commitments []*G1, position int) *G1 {
	result := NewPoint()
	posPow := big.NewInt(1)
	pos := big.NewInt(int64(position))
	for _, c := range commitments {
		term := NewPoint().ScalarMult(c, posPow).(*G1)
		result = NewPoint().Add(result, term).(*G1)
		posPow = new(big.Int).Mul(posPow, pos)
		posPow.Mod(posPow, fr.Modulus())
	}
	return result
}

// EvaluatePolynomial evaluates Σ coeffs[k] * x^k mod order, the private
// counterpart of EvaluateCommitment used by the dealer to compute each
// recipient's share.
func EvaluatePolynomial(coeffs []*big.Int, x int) *big.Int {
	result := big.NewInt(0)
	xPow := big.NewInt(1)
	xb := big.NewInt(int64(x))
	order := fr.Modulus()
	for _, a := range coeffs {
		term := new(big.Int).Mul(a, xPow)
		result.Add(result, term)
		result.Mod(result, order)
		xPow.Mul(xPow, xb)
		xPow.Mod(xPow, order)
	}
	return result
}
