package group

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := qt.New(t)

	sk, err := RandK()
	c.Assert(err, qt.IsNil)
	pk := NewPoint().ScalarBaseMult(sk).(*G1)

	for _, m := range []int64{0, 1, 7, 42} {
		ct, k, err := Encrypt(pk, big.NewInt(m))
		c.Assert(err, qt.IsNil)
		c.Assert(EncryptWithK(pk, big.NewInt(m), k).C1.Equal(ct.C1), qt.IsTrue)

		factor := PartialDecrypt(ct, sk)
		got, err := Decrypt(ct, factor, 100)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Int64(), qt.Equals, m)
	}
}

func TestReEncryptPreservesPlaintext(t *testing.T) {
	c := qt.New(t)

	sk, err := RandK()
	c.Assert(err, qt.IsNil)
	pk := NewPoint().ScalarBaseMult(sk).(*G1)

	ct, _, err := Encrypt(pk, big.NewInt(5))
	c.Assert(err, qt.IsNil)

	k, err := RandK()
	c.Assert(err, qt.IsNil)
	reenc := ReEncrypt(pk, ct, k)
	c.Assert(reenc.C1.Equal(ct.C1), qt.IsFalse)

	factor := PartialDecrypt(reenc, sk)
	got, err := Decrypt(reenc, factor, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(5))
}

func TestCombineFactorsSingleShareIsIdentity(t *testing.T) {
	c := qt.New(t)

	sk, err := RandK()
	c.Assert(err, qt.IsNil)
	pk := NewPoint().ScalarBaseMult(sk).(*G1)

	ct, _, err := Encrypt(pk, big.NewInt(3))
	c.Assert(err, qt.IsNil)

	factor := PartialDecrypt(ct, sk)
	combined := CombineFactors(map[int]*G1{1: factor})
	c.Assert(combined.Equal(factor), qt.IsTrue)
}

func TestDiscreteLogBruteForce(t *testing.T) {
	c := qt.New(t)

	for _, m := range []int64{0, 1, 13, 250} {
		target := NewPoint().ScalarBaseMult(big.NewInt(m)).(*G1)
		got, err := DiscreteLog(target, 1000)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Int64(), qt.Equals, m)
	}
}

func TestDiscreteLogOutOfBoundFails(t *testing.T) {
	c := qt.New(t)
	target := NewPoint().ScalarBaseMult(big.NewInt(500)).(*G1)
	_, err := DiscreteLog(target, 10)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestSchnorrProveVerify(t *testing.T) {
	c := qt.New(t)

	x, err := RandK()
	c.Assert(err, qt.IsNil)
	pub := NewPoint().ScalarBaseMult(x).(*G1)

	proof, err := ProveSchnorr("test-domain", x, pub)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifySchnorr("test-domain", pub, proof), qt.IsTrue)

	other := NewPoint().ScalarBaseMult(big.NewInt(99)).(*G1)
	c.Assert(VerifySchnorr("test-domain", other, proof), qt.IsFalse)
}

func TestEncryptionProofProveVerify(t *testing.T) {
	c := qt.New(t)

	sk, err := RandK()
	c.Assert(err, qt.IsNil)
	pk := NewPoint().ScalarBaseMult(sk).(*G1)

	ct, k, err := Encrypt(pk, big.NewInt(9))
	c.Assert(err, qt.IsNil)

	proof, err := ProveEncryption("ballot-pok", pk, ct, k)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyEncryption("ballot-pok", pk, ct, proof), qt.IsTrue)

	otherCt, _, err := Encrypt(pk, big.NewInt(10))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyEncryption("ballot-pok", pk, otherCt, proof), qt.IsFalse)
}

func TestDLEQProveVerify(t *testing.T) {
	c := qt.New(t)

	x, err := RandK()
	c.Assert(err, qt.IsNil)
	g := Generator()
	h := NewPoint().ScalarBaseMult(big.NewInt(7)).(*G1)
	p := NewPoint().ScalarMult(g, x).(*G1)
	q := NewPoint().ScalarMult(h, x).(*G1)

	proof, err := ProveDLEQ("decryption-factor", g, p, h, q, x)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyDLEQ("decryption-factor", g, p, h, q, proof), qt.IsTrue)

	wrongQ := NewPoint().ScalarBaseMult(big.NewInt(123)).(*G1)
	c.Assert(VerifyDLEQ("decryption-factor", g, p, h, wrongQ, proof), qt.IsFalse)
}

func TestConfigHashDeterministicAndSensitive(t *testing.T) {
	c := qt.New(t)

	type cfg struct {
		SessionID string
		Threshold int
	}

	h1, err := ConfigHash(cfg{SessionID: "election-1", Threshold: 2})
	c.Assert(err, qt.IsNil)
	h2, err := ConfigHash(cfg{SessionID: "election-1", Threshold: 2})
	c.Assert(err, qt.IsNil)
	c.Assert(h1, qt.DeepEquals, h2)

	h3, err := ConfigHash(cfg{SessionID: "election-2", Threshold: 2})
	c.Assert(err, qt.IsNil)
	c.Assert(h1, qt.Not(qt.DeepEquals), h3)
}
