package localboard

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	qt "github.com/frankban/quicktest"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

func newSignedMessage(t *testing.T, keys *ethereum.SignKeys, seq uint64, key StatementKey, payload []byte) RawMessage {
	t.Helper()
	st := Statement{Key: key, Payload: payload}
	enc, err := cbor.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := keys.SignEthereum(enc)
	if err != nil {
		t.Fatal(err)
	}
	pub, _ := keys.HexString()
	return RawMessage{ExternalSeq: seq, SignerPK: pub, Signature: sig, Statement: enc}
}

func TestOverwriteRejectionScenario5(t *testing.T) {
	c := qt.New(t)
	store, err := pebbledb.NewMem()
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = store.Close() })

	keys := ethereum.NewSignKeys()
	c.Assert(keys.Generate(), qt.IsNil)
	pub, _ := keys.HexString()

	lb := New(store, func(pos int) (string, bool) { return pub, true })

	key := StatementKey{Kind: KindShares, SignerPosition: 1, Batch: 0, MixNumber: 0}
	msg1 := newSignedMessage(t, keys, 1, key, []byte("payload-a"))
	_, err = lb.StoreAndReturnMessages([]RawMessage{msg1}, false)
	c.Assert(err, qt.IsNil)

	msg2 := newSignedMessage(t, keys, 2, key, []byte("payload-b"))
	_, err = lb.StoreAndReturnMessages([]RawMessage{msg2}, false)
	c.Assert(errors.Is(err, ErrBoardOverwriteAttempt), qt.IsTrue)
}

func TestIdempotentReplayIsNoOp(t *testing.T) {
	c := qt.New(t)
	store, err := pebbledb.NewMem()
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = store.Close() })

	keys := ethereum.NewSignKeys()
	c.Assert(keys.Generate(), qt.IsNil)
	pub, _ := keys.HexString()
	lb := New(store, func(pos int) (string, bool) { return pub, true })

	key := StatementKey{Kind: KindChannel, SignerPosition: 0}
	msg := newSignedMessage(t, keys, 1, key, []byte("same-payload"))

	accepted1, err := lb.StoreAndReturnMessages([]RawMessage{msg}, false)
	c.Assert(err, qt.IsNil)
	c.Assert(accepted1, qt.HasLen, 1)

	accepted2, err := lb.StoreAndReturnMessages([]RawMessage{msg}, false)
	c.Assert(err, qt.IsNil)
	c.Assert(accepted2, qt.HasLen, 0)
}

func TestMaxMessagesFormula(t *testing.T) {
	c := qt.New(t)
	c.Assert(MaxMessages(3, 2, 0), qt.Equals, 1+5*3)
	perBatch := 1 + 2*2 + 2*(2-1) + 3
	c.Assert(MaxMessages(3, 2, 1), qt.Equals, 1+5*3+perBatch)
}
