package board

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

func newTestService(t *testing.T) (*Service, *ethereum.SignKeys) {
	t.Helper()
	store, err := pebbledb.NewMem()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	keys := ethereum.NewSignKeys()
	if err := keys.Generate(); err != nil {
		t.Fatal(err)
	}
	return New(store, keys), keys
}

func signedEntry(t *testing.T, keys *ethereum.SignKeys, data []byte) NewDataEntry {
	t.Helper()
	pub, _ := keys.HexString()
	sig, err := keys.SignEthereum(data)
	if err != nil {
		t.Fatal(err)
	}
	return NewDataEntry{Data: data, SignerPK: pub, Signature: sig}
}

func signedCreateBoard(t *testing.T, svc *Service, keys *ethereum.SignKeys, id uuid.UUID, name string, perms Permissions) (*Board, *Checkpoint, *Error) {
	t.Helper()
	pub, _ := keys.HexString()
	payload, err := CreateBoardSigningBytes(id, name, perms)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := keys.SignEthereum(payload)
	if err != nil {
		t.Fatal(err)
	}
	return svc.CreateBoard(id, name, perms, pub, sig)
}

func signedModifyBoard(t *testing.T, svc *Service, keys *ethereum.SignKeys, id uuid.UUID, update Board) (*Board, *Error) {
	t.Helper()
	pub, _ := keys.HexString()
	payload, err := ModifyBoardSigningBytes(id, update)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := keys.SignEthereum(payload)
	if err != nil {
		t.Fatal(err)
	}
	return svc.ModifyBoard(id, update, pub, sig)
}

func TestCreateAddListScenario4(t *testing.T) {
	c := qt.New(t)
	svc, keys := newTestService(t)
	pub, _ := keys.HexString()

	id := uuid.New()
	perms := Permissions{
		ActionAddEntries:  {pub},
		ActionModifyBoard: {pub},
	}
	b, cp, err := signedCreateBoard(t, svc, keys, id, "election-1", perms)
	c.Assert(err, qt.IsNil)
	c.Assert(b.LastSequenceID, qt.Equals, uint64(0))
	c.Assert(cp.Size, qt.Equals, uint64(1))

	_, _, err = svc.AddEntries(id, []NewDataEntry{
		signedEntry(t, keys, []byte("one")),
		signedEntry(t, keys, []byte("two")),
		signedEntry(t, keys, []byte("three")),
	})
	c.Assert(err, qt.IsNil)

	entries, lastSeq, err := svc.ListEntries(id, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 4)
	c.Assert(lastSeq, qt.Equals, uint64(3))

	_, modErr := signedModifyBoard(t, svc, keys, id, Board{Name: "election-1", Permissions: perms, IsArchived: true})
	c.Assert(modErr, qt.IsNil)

	_, _, addErr := svc.AddEntries(id, []NewDataEntry{signedEntry(t, keys, []byte("after-archive"))})
	c.Assert(addErr, qt.Not(qt.IsNil))
	c.Assert(addErr.Kind, qt.Equals, KindInvalidArgument)
}

func TestAddEntriesRejectsBadSignature(t *testing.T) {
	c := qt.New(t)
	svc, keys := newTestService(t)
	pub, _ := keys.HexString()
	id := uuid.New()
	perms := Permissions{ActionAddEntries: {pub}}
	_, _, err := signedCreateBoard(t, svc, keys, id, "election-1", perms)
	c.Assert(err, qt.IsNil)

	entry := signedEntry(t, keys, []byte("one"))
	entry.Data = []byte("tampered")
	_, _, addErr := svc.AddEntries(id, []NewDataEntry{entry})
	c.Assert(addErr, qt.Not(qt.IsNil))
	c.Assert(addErr.Kind, qt.Equals, KindPermissionDenied)
}

func TestCreateBoardRejectsBadSignature(t *testing.T) {
	c := qt.New(t)
	svc, keys := newTestService(t)
	pub, _ := keys.HexString()
	id := uuid.New()
	perms := Permissions{ActionAddEntries: {pub}}

	payload, err := CreateBoardSigningBytes(id, "wrong-name", perms)
	c.Assert(err, qt.IsNil)
	sig, err := keys.SignEthereum(payload)
	c.Assert(err, qt.IsNil)

	_, _, cerr := svc.CreateBoard(id, "election-1", perms, pub, sig)
	c.Assert(cerr, qt.Not(qt.IsNil))
	c.Assert(cerr.Kind, qt.Equals, KindPermissionDenied)
}

func TestAppendOnlyPrefixProperty(t *testing.T) {
	c := qt.New(t)
	svc, keys := newTestService(t)
	id := uuid.New()
	pub, _ := keys.HexString()
	perms := Permissions{ActionAddEntries: {pub}}
	_, cp1, err := signedCreateBoard(t, svc, keys, id, "p1", perms)
	c.Assert(err, qt.IsNil)

	entries1, _, _ := svc.ListEntries(id, 0)

	_, cp2, err := svc.AddEntries(id, []NewDataEntry{signedEntry(t, keys, []byte("x"))})
	c.Assert(err, qt.IsNil)
	c.Assert(cp2.Size > cp1.Size, qt.IsTrue)

	entries2, _, _ := svc.ListEntries(id, 0)
	c.Assert(entries2[:len(entries1)], qt.DeepEquals, entries1)
}
