package trustee

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

// serviceClient adapts a board.Service into the BoardClient interface a
// Trustee drives against, so the engine's polling loop can be exercised
// against the same in-process board used by board's own tests, with no
// RPC transport involved.
type serviceClient struct {
	svc      *board.Service
	boardID  uuid.UUID
	signerPK string
}

func (c *serviceClient) FetchEntries(_ context.Context, fromSeq uint64) ([]localboard.RawMessage, uint64, error) {
	entries, last, err := c.svc.ListEntries(c.boardID, fromSeq)
	if err != nil {
		return nil, fromSeq, err
	}
	var out []localboard.RawMessage
	for _, e := range entries {
		if e.Kind != board.KindDataEntry {
			continue
		}
		out = append(out, localboard.RawMessage{ExternalSeq: e.SequenceID, SignerPK: e.SignerPK, Signature: e.Signature, Statement: e.Payload})
	}
	return out, last + 1, nil
}

func (c *serviceClient) PostEntries(_ context.Context, msgs []OutgoingMessage) error {
	entries := make([]board.NewDataEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = board.NewDataEntry{Data: m.Statement, Timestamp: time.Now().Unix(), SignerPK: c.signerPK, Signature: m.Signature}
	}
	_, _, err := c.svc.AddEntries(c.boardID, entries)
	if err != nil {
		return err
	}
	return nil
}

// TestTrusteeEngineDrivesDKGToCompletion runs three Trustee engines
// concurrently, each polling the same in-process board, until their
// PublicKeySignature count reaches threshold, verifying the polling loop
// (not just the pure step functions) carries a DKG to completion.
func TestTrusteeEngineDrivesDKGToCompletion(t *testing.T) {
	c := qt.New(t)
	const n = 3
	const threshold = 2

	trusteeKeys := make([]*ethereum.SignKeys, n)
	trusteePubs := make([]string, n)
	for i := 0; i < n; i++ {
		trusteeKeys[i] = ethereum.NewSignKeys()
		c.Assert(trusteeKeys[i].Generate(), qt.IsNil)
		trusteePubs[i], _ = trusteeKeys[i].HexString()
	}
	boardKey := ethereum.NewSignKeys()
	c.Assert(boardKey.Generate(), qt.IsNil)
	boardPub, _ := boardKey.HexString()

	resolver := func(pos int) (string, bool) {
		if pos >= 0 && pos < n {
			return trusteePubs[pos], true
		}
		return "", false
	}

	store, err := pebbledb.NewMem()
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = store.Close() })
	svc := board.New(store, boardKey)
	boardID := uuid.New()
	perms := board.Permissions{board.ActionAddEntries: append(append([]string{}, trusteePubs...), boardPub)}
	createPayload, err := board.CreateBoardSigningBytes(boardID, "dkg-log", perms)
	c.Assert(err, qt.IsNil)
	createSig, err := boardKey.SignEthereum(createPayload)
	c.Assert(err, qt.IsNil)
	_, _, bErr := svc.CreateBoard(boardID, "dkg-log", perms, boardPub, createSig)
	c.Assert(bErr, qt.IsNil)

	trusteeRaw := make([][]byte, n)
	for i := range trusteeRaw {
		trusteeRaw[i] = []byte(trusteePubs[i])
	}
	cfg := Cfg{SessionID: "engine-test", TrusteePKs: trusteeRaw, Threshold: threshold, GroupParams: "bn254-g1"}
	cfgHash, err := cfg.Hash()
	c.Assert(err, qt.IsNil)

	locals := make([]*localboard.LocalBoard, n)
	engines := make([]*Trustee, n)
	for i := 0; i < n; i++ {
		lbStore, err := pebbledb.NewMem()
		c.Assert(err, qt.IsNil)
		t.Cleanup(func() { _ = lbStore.Close() })
		locals[i] = localboard.New(lbStore, resolver)

		channelPriv, err := group.RandK()
		c.Assert(err, qt.IsNil)
		coeffs := make([]*big.Int, threshold)
		for k := range coeffs {
			coeffs[k], err = group.RandK()
			c.Assert(err, qt.IsNil)
		}
		st := DKGState{
			MyPosition:   i,
			Cfg:          cfg,
			CfgHash:      cfgHash,
			ChannelPriv:  channelPriv,
			DealerCoeffs: coeffs,
			SignKey:      trusteeKeys[i],
		}
		client := &serviceClient{svc: svc, boardID: boardID, signerPK: trusteePubs[i]}
		engines[i] = NewTrustee(i, client, locals[i], trusteeKeys[i], st)
		engines[i].PollInterval = 5 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	runErrs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			runErrs[i] = engines[i].Run(ctx)
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		done := true
		for i := 0; i < n; i++ {
			if locals[i].CountByKindAndBatch(localboard.KindPublicKeySignature, 0) < threshold {
				done = false
				break
			}
		}
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	for i := 0; i < n; i++ {
		c.Assert(errors.Is(runErrs[i], context.Canceled), qt.IsTrue)
		c.Assert(locals[i].CountByKindAndBatch(localboard.KindPublicKeySignature, 0) >= threshold, qt.IsTrue)
	}
}
