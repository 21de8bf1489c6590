package boardrpc

import (
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

func newTestServer(t *testing.T) (*httptest.Server, *ethereum.SignKeys) {
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
	a := &API{service: board.New(store, keys)}
	a.initRouter()
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)
	return srv, keys
}

func TestCreateAddListEntriesOverHTTP(t *testing.T) {
	c := qt.New(t)
	srv, keys := newTestServer(t)
	pub, _ := keys.HexString()

	client, err := NewClient(srv.URL)
	c.Assert(err, qt.IsNil)

	id := uuid.New()
	createResp, err := client.CreateBoard(id, "election-1", board.Permissions{board.ActionAddEntries: []string{pub}}, keys)
	c.Assert(err, qt.IsNil)
	c.Assert(createResp.Board.LastSequenceID, qt.Equals, uint64(0))

	sig, err := keys.SignEthereum([]byte("one"))
	c.Assert(err, qt.IsNil)
	addResp, err := client.AddEntries(id, []board.NewDataEntry{{Data: []byte("one"), SignerPK: pub, Signature: sig}})
	c.Assert(err, qt.IsNil)
	c.Assert(addResp.Entries, qt.HasLen, 1)

	listResp, err := client.ListEntries(id, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(listResp.Entries, qt.HasLen, 2) // config entry at 0 plus the data entry

	boardsResp, err := client.ListBoards()
	c.Assert(err, qt.IsNil)
	c.Assert(boardsResp.Boards, qt.HasLen, 1)
}

func TestAddEntriesRejectsUnknownBoard(t *testing.T) {
	c := qt.New(t)
	srv, keys := newTestServer(t)
	pub, _ := keys.HexString()

	client, err := NewClient(srv.URL)
	c.Assert(err, qt.IsNil)

	_, err = client.AddEntries(uuid.New(), []board.NewDataEntry{{Data: []byte("x"), SignerPK: pub}})
	c.Assert(err, qt.Not(qt.IsNil))
}
