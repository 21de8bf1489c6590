package group

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Ciphertext is an exponential-ElGamal ciphertext (C1, C2) = (rG, mG + rY)
// over G1, where Y is the election public key. Addition of ciphertexts is
// homomorphic over the encoded message's exponent, which is what lets the
// bulletin board accumulate encrypted tallies without ever decrypting an
// individual ballot.
type Ciphertext struct {
	C1 *G1
	C2 *G1
}

// NewCiphertext returns the identity ciphertext (encryption of 0 with r=0).
func NewCiphertext() *Ciphertext {
	return &Ciphertext{C1: NewPoint(), C2: NewPoint()}
}

// RandK draws a uniformly random scalar in [1, order).
func RandK() (*big.Int, error) {
	order := fr.Modulus()
	for {
		k, err := rand.Int(rand.Reader, order)
		if err != nil {
			return nil, fmt.Errorf("random scalar: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// Encrypt draws fresh randomness and returns Enc_pk(mG).
func Encrypt(pk *G1, m *big.Int) (*Ciphertext, *big.Int, error) {
	k, err := RandK()
	if err != nil {
		return nil, nil, err
	}
	return EncryptWithK(pk, m, k), k, nil
}

// EncryptWithK encrypts mG under pk using the supplied randomness k. Used
// both for normal encryption and for re-encryption during a shuffle, where
// the caller needs to know k to later prove correctness.
func EncryptWithK(pk *G1, m *big.Int, k *big.Int) *Ciphertext {
	c1 := NewPoint().ScalarBaseMult(k)
	mg := NewPoint().ScalarBaseMult(m)
	ky := NewPoint().ScalarMult(pk, k)
	c2 := NewPoint().Add(mg, ky)
	return &Ciphertext{C1: c1.(*G1), C2: c2.(*G1)}
}

// ReEncrypt adds a fresh encryption of zero under randomness k, producing a
// ciphertext that decrypts to the same plaintext but is unlinkable to c
// without knowledge of k. This is the primitive the shuffle proof is built
// from (T1-T3).
func ReEncrypt(pk *G1, c *Ciphertext, k *big.Int) *Ciphertext {
	zero := EncryptWithK(pk, big.NewInt(0), k)
	return Add(c, zero)
}

// Add returns the homomorphic sum a+b, i.e. Enc(m_a+m_b, r_a+r_b).
func Add(a, b *Ciphertext) *Ciphertext {
	c1 := NewPoint().Add(a.C1, b.C1)
	c2 := NewPoint().Add(a.C2, b.C2)
	return &Ciphertext{C1: c1.(*G1), C2: c2.(*G1)}
}

// PartialDecrypt computes trustee i's decryption factor d_i = sk_i * C1,
// the building block combined via Lagrange interpolation in CombineFactors.
func PartialDecrypt(c *Ciphertext, sk *big.Int) *G1 {
	return NewPoint().ScalarMult(c.C1, sk).(*G1)
}

// CombineFactors combines t decryption factors d_i, indexed by their
// trustee position (1-based, matching the DKG share indices), into the
// full blinding factor sk*C1 via Lagrange interpolation in the exponent.
func CombineFactors(factors map[int]*G1) *G1 {
	order := fr.Modulus()
	result := NewPoint()
	for i, di := range factors {
		coeff := lagrangeCoefficient(i, factors, order)
		term := NewPoint().ScalarMult(di, coeff)
		result = NewPoint().Add(result, term).(*G1)
	}
	return result
}

// lagrangeCoefficient computes L_i(0) mod order over the index set of
// factors (the set of trustees that submitted a decryption factor).
func lagrangeCoefficient(i int, factors map[int]*G1, order *big.Int) *big.Int {
	num := big.NewInt(1)
	den := big.NewInt(1)
	for j := range factors {
		if j == i {
			continue
		}
		// term = (0 - j) / (i - j) = -j / (i-j)
		negJ := new(big.Int).Neg(big.NewInt(int64(j)))
		negJ.Mod(negJ, order)
		num.Mul(num, negJ)
		num.Mod(num, order)

		diff := big.NewInt(int64(i - j))
		diff.Mod(diff, order)
		den.Mul(den, diff)
		den.Mod(den, order)
	}
	denInv := new(big.Int).ModInverse(den, order)
	if denInv == nil {
		return big.NewInt(0)
	}
	coeff := new(big.Int).Mul(num, denInv)
	return coeff.Mod(coeff, order)
}

// Decrypt recovers mG = C2 - factor, then brute-forces m via DiscreteLog.
// Only usable for small message spaces: a per-candidate tally count, not
// an arbitrary packed integer, since the search cost is O(sqrt(maxValue)).
func Decrypt(c *Ciphertext, factor *G1, maxValue int64) (*big.Int, error) {
	mg := NewPoint().Add(c.C2, NewPoint().Neg(factor)).(*G1)
	return DiscreteLog(mg, maxValue)
}

// DiscreteLog recovers m in [0, maxValue] such that mG = target, using a
// baby-step-giant-step search over the additive group of points.
func DiscreteLog(target *G1, maxValue int64) (*big.Int, error) {
	if target.IsZero() {
		return big.NewInt(0), nil
	}
	m := int64(1)
	for m*m <= maxValue {
		m++
	}
	if m == 0 {
		m = 1
	}

	// baby steps: table of j*G for j in [0, m)
	table := make(map[string]int64, m)
	acc := NewPoint()
	table[acc.String()] = 0
	step := Generator()
	for j := int64(1); j < m; j++ {
		acc = NewPoint().Add(acc, step).(*G1)
		table[acc.String()] = j
	}

	// giant steps: target - i*m*G for i in [0, m)
	giantStep := NewPoint().ScalarMult(Generator(), big.NewInt(m)).(*G1)
	negGiant := NewPoint().Neg(giantStep).(*G1)
	gamma := target
	for i := int64(0); i < m; i++ {
		if j, ok := table[gamma.String()]; ok {
			result := i*m + j
			if result <= maxValue {
				return big.NewInt(result), nil
			}
		}
		gamma = NewPoint().Add(gamma, negGiant).(*G1)
	}
	return nil, fmt.Errorf("discrete log not found within bound %d", maxValue)
}
