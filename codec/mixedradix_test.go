package codec

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestMixedRadixScenario1Smoke(t *testing.T) {
	c := qt.New(t)
	bases := []uint64{2, 2, 2, 2, 2, 2}
	values := []uint64{0, 1, 0, 0, 1, 1}

	n, err := EncodeMixedRadix(bases, values)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Cmp(big.NewInt(50)), qt.Equals, 0)

	wire, err := EncodeWire(n)
	c.Assert(err, qt.IsNil)
	c.Assert(wire, qt.DeepEquals, []byte{0x01, 0x32})

	back, err := DecodeMixedRadix(n, bases)
	c.Assert(err, qt.IsNil)
	c.Assert(back, qt.DeepEquals, values)
}

func TestMixedRadixScenario2Borda(t *testing.T) {
	c := qt.New(t)
	bases := []uint64{2, 4, 4, 4, 4, 4, 4, 4}
	values := []uint64{0, 1, 3, 0, 0, 0, 2, 0}

	n, err := EncodeMixedRadix(bases, values)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Cmp(big.NewInt(4122)), qt.Equals, 0)

	wire, err := EncodeWire(n)
	c.Assert(err, qt.IsNil)
	c.Assert(wire, qt.DeepEquals, []byte{0x02, 0x1A, 0x10})
}

func TestMixedRadixScenario3ExplicitInvalidWriteIn(t *testing.T) {
	c := qt.New(t)
	bases := []uint64{2, 3, 3, 3, 3, 3, 3, 32, 32, 32}
	values := []uint64{1, 1, 0, 0, 1, 2, 0, 4, 0, 0}

	n, err := EncodeMixedRadix(bases, values)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Cmp(big.NewInt(6213)), qt.Equals, 0)

	wire, err := EncodeWire(n)
	c.Assert(err, qt.IsNil)
	c.Assert(wire, qt.DeepEquals, []byte{0x02, 0x45, 0x18})

	back, err := DecodeMixedRadix(n, bases)
	c.Assert(err, qt.IsNil)
	c.Assert(back, qt.DeepEquals, values)
}

func TestMixedRadixOverflowIsBallotTooLarge(t *testing.T) {
	c := qt.New(t)
	bases := []uint64{2, 2}
	n := big.NewInt(10) // exceeds 2*2=4 possible states
	_, err := DecodeMixedRadix(n, bases)
	c.Assert(err, qt.ErrorIs, ErrBallotTooLarge)
}

func TestWireRoundTripRandom(t *testing.T) {
	c := qt.New(t)
	for _, v := range []int64{0, 1, 255, 256, 65535, 1 << 20} {
		n := big.NewInt(v)
		wire, err := EncodeWire(n)
		c.Assert(err, qt.IsNil)
		back, err := DecodeWire(wire)
		c.Assert(err, qt.IsNil)
		c.Assert(back.Cmp(n), qt.Equals, 0)
	}
}
