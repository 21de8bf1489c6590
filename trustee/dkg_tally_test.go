package trustee

import (
	"math/big"
	"sort"
	"testing"

	"github.com/fxamacker/cbor/v2"
	qt "github.com/frankban/quicktest"

	"github.com/sequent-io/e2e-core/codec"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

// setupDKG drives n trustees through the full DKG in-process (every
// trustee's local board is fed every message, simulating a perfectly
// synchronous board) and returns the combined election public key, each
// trustee's secret share, and the broadcast plumbing a tally batch can
// reuse.
func setupDKG(c *qt.C, t *testing.T, n, threshold int) (pk *group.G1, secretShares []*big.Int, boards []*localboard.LocalBoard, trusteeKeys []*ethereum.SignKeys, trusteePubs []string, managerKeys *ethereum.SignKeys, managerPub string, cfg Cfg, cfgHash []byte, broadcast func(OutgoingMessage, string)) {
	trusteeKeys = make([]*ethereum.SignKeys, n)
	trusteePubs = make([]string, n)
	for i := 0; i < n; i++ {
		trusteeKeys[i] = ethereum.NewSignKeys()
		c.Assert(trusteeKeys[i].Generate(), qt.IsNil)
		trusteePubs[i], _ = trusteeKeys[i].HexString()
	}
	managerKeys = ethereum.NewSignKeys()
	c.Assert(managerKeys.Generate(), qt.IsNil)
	managerPub, _ = managerKeys.HexString()

	resolver := func(pos int) (string, bool) {
		if pos == localboard.ProtocolManager {
			return managerPub, true
		}
		if pos >= 0 && pos < n {
			return trusteePubs[pos], true
		}
		return "", false
	}

	boards = make([]*localboard.LocalBoard, n)
	for i := 0; i < n; i++ {
		store, err := pebbledb.NewMem()
		c.Assert(err, qt.IsNil)
		t.Cleanup(func() { _ = store.Close() })
		boards[i] = localboard.New(store, resolver)
	}

	trusteeRaw := make([][]byte, n)
	for i := range trusteeRaw {
		trusteeRaw[i] = []byte(trusteePubs[i])
	}
	cfg = Cfg{SessionID: "test-election", TrusteePKs: trusteeRaw, Threshold: threshold, GroupParams: "bn254-g1"}
	var err error
	cfgHash, err = cfg.Hash()
	c.Assert(err, qt.IsNil)

	var seq uint64
	broadcast = func(msg OutgoingMessage, senderPub string) {
		seq++
		raw := localboard.RawMessage{ExternalSeq: seq, SignerPK: senderPub, Signature: msg.Signature, Statement: msg.Statement}
		for _, lb := range boards {
			_, err := lb.StoreAndReturnMessages([]localboard.RawMessage{raw}, true)
			c.Assert(err, qt.IsNil)
		}
	}

	dkgStates := make([]DKGState, n)
	for i := 0; i < n; i++ {
		channelPriv, err := group.RandK()
		c.Assert(err, qt.IsNil)
		coeffs := make([]*big.Int, threshold)
		for k := range coeffs {
			coeffs[k], err = group.RandK()
			c.Assert(err, qt.IsNil)
		}
		dkgStates[i] = DKGState{
			MyPosition:   i,
			Cfg:          cfg,
			CfgHash:      cfgHash,
			ChannelPriv:  channelPriv,
			DealerCoeffs: coeffs,
			SignKey:      trusteeKeys[i],
		}
	}

	for round := 0; round < 10; round++ {
		for i := 0; i < n; i++ {
			msgs, err := StepDKG(boards[i], dkgStates[i])
			c.Assert(err, qt.IsNil)
			for _, m := range msgs {
				broadcast(m, trusteePubs[i])
			}
		}
	}

	pubKeysRaw := boards[0].AllByKindAndBatch(localboard.KindPublicKey, 0)
	c.Assert(pubKeysRaw, qt.HasLen, n)
	pk, err = CombinePublicKeys(pubKeysRaw)
	c.Assert(err, qt.IsNil)

	secretShares = make([]*big.Int, n)
	for i := 0; i < n; i++ {
		secretShares[i], err = CombineSecretShare(boards[i], dkgStates[i])
		c.Assert(err, qt.IsNil)
	}
	return pk, secretShares, boards, trusteeKeys, trusteePubs, managerKeys, managerPub, cfg, cfgHash, broadcast
}

// TestDKGThenTallyRecoversPlaintexts drives three trustees through the full
// DKG and a single tally batch purely in-process (every trustee's local
// board is fed every message, simulating a perfectly synchronous board) and
// checks the final Plaintexts_b match the originally cast votes as a
// multiset (P6, P7).
func TestDKGThenTallyRecoversPlaintexts(t *testing.T) {
	c := qt.New(t)
	const n = 3
	const threshold = 2

	pk, secretShares, boards, trusteeKeys, trusteePubs, managerKeys, managerPub, cfg, cfgHash, broadcast := setupDKG(c, t, n, threshold)

	votes := []int64{1, 0, 2}
	rows := make([]group.BallotRow, len(votes))
	for i, v := range votes {
		ct, _, err := group.Encrypt(pk, big.NewInt(v))
		c.Assert(err, qt.IsNil)
		rows[i] = group.BallotRow{ct}
	}
	ballotsMsg, err := PostBallots(1, rows, managerKeys)
	c.Assert(err, qt.IsNil)
	broadcast(ballotsMsg, managerPub)

	tallyStates := make([]TallyState, n)
	for i := 0; i < n; i++ {
		tallyStates[i] = TallyState{
			MyPosition:    i,
			Cfg:           cfg,
			CfgHash:       cfgHash,
			SecretShare:   secretShares[i],
			PK:            pk,
			SignKey:       trusteeKeys[i],
			MaxValue:      10,
			ShuffleRounds: 8,
		}
	}

	for round := 0; round < 40; round++ {
		for i := 0; i < n; i++ {
			msgs, err := StepTally(boards[i], 1, tallyStates[i])
			c.Assert(err, qt.IsNil)
			for _, m := range msgs {
				broadcast(m, trusteePubs[i])
			}
		}
	}

	plaintextsHash, ok := boards[0].Has(localboard.StatementKey{Kind: localboard.KindPlaintexts, SignerPosition: localboard.ProtocolManager, Batch: 1})
	c.Assert(ok, qt.IsTrue)
	raw, err := boards[0].GetPlaintexts(1, plaintextsHash)
	c.Assert(err, qt.IsNil)
	var payload PlaintextsPayload
	c.Assert(cbor.Unmarshal(raw, &payload), qt.IsNil)
	c.Assert(payload.Rows, qt.HasLen, len(votes))

	var got, want []int64
	for _, row := range payload.Rows {
		c.Assert(row, qt.HasLen, 1)
		got = append(got, row[0])
	}
	want = append(want, votes...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	c.Assert(got, qt.DeepEquals, want)
}

// TestDKGThenTallyRecoversCodecEncodedBallot routes real codec-encoded
// ballots through cast (per-slot encryption) -> mix -> threshold decrypt
// -> codec decode, confirming the tally never has to brute-force a
// discrete log wider than a single raw-ballot slot even though one of
// the ballots carries a write-in.
func TestDKGThenTallyRecoversCodecEncodedBallot(t *testing.T) {
	c := qt.New(t)
	const n = 3
	const threshold = 2

	pk, secretShares, boards, trusteeKeys, trusteePubs, managerKeys, managerPub, cfg, cfgHash, broadcast := setupDKG(c, t, n, threshold)

	policy := codec.ContestPolicy{
		ContestID: "contest-1",
		System:    codec.SystemPlurality,
		Candidates: []codec.CandidatePolicy{
			{CandidateID: "alice"},
			{CandidateID: "bob"},
			{CandidateID: "other", WriteIn: true},
		},
		MinSelections:    0,
		MaxSelections:    1,
		WriteInBase:      256,
		WriteInSlotCount: 8,
	}

	writeInText := "carol"
	intents := []codec.DecodedVoteContest{
		{ContestID: policy.ContestID, Choices: []codec.Choice{{CandidateID: "alice", Selected: 0}, {CandidateID: "bob", Selected: -1}, {CandidateID: "other", Selected: -1}}},
		{ContestID: policy.ContestID, Choices: []codec.Choice{{CandidateID: "alice", Selected: -1}, {CandidateID: "bob", Selected: 0}, {CandidateID: "other", Selected: -1}}},
		{ContestID: policy.ContestID, Choices: []codec.Choice{{CandidateID: "alice", Selected: -1}, {CandidateID: "bob", Selected: -1}, {CandidateID: "other", Selected: 0, WriteInText: &writeInText}}},
	}

	rawBallots := make([]codec.RawBallot, len(intents))
	rows := make([]group.BallotRow, len(intents))
	for i, intent := range intents {
		raw, err := policy.ToRawBallot(intent)
		c.Assert(err, qt.IsNil)
		rawBallots[i] = raw
		row := make(group.BallotRow, len(raw.Values))
		for s, v := range raw.Values {
			ct, _, err := group.Encrypt(pk, big.NewInt(int64(v)))
			c.Assert(err, qt.IsNil)
			row[s] = ct
		}
		rows[i] = row
	}
	ballotsMsg, err := PostBallots(1, rows, managerKeys)
	c.Assert(err, qt.IsNil)
	broadcast(ballotsMsg, managerPub)

	tallyStates := make([]TallyState, n)
	for i := 0; i < n; i++ {
		tallyStates[i] = TallyState{
			MyPosition:    i,
			Cfg:           cfg,
			CfgHash:       cfgHash,
			SecretShare:   secretShares[i],
			PK:            pk,
			SignKey:       trusteeKeys[i],
			MaxValue:      256, // covers the widest slot radix: raw write-in bytes
			ShuffleRounds: 8,
		}
	}

	for round := 0; round < 40; round++ {
		for i := 0; i < n; i++ {
			msgs, err := StepTally(boards[i], 1, tallyStates[i])
			c.Assert(err, qt.IsNil)
			for _, m := range msgs {
				broadcast(m, trusteePubs[i])
			}
		}
	}

	plaintextsHash, ok := boards[0].Has(localboard.StatementKey{Kind: localboard.KindPlaintexts, SignerPosition: localboard.ProtocolManager, Batch: 1})
	c.Assert(ok, qt.IsTrue)
	raw, err := boards[0].GetPlaintexts(1, plaintextsHash)
	c.Assert(err, qt.IsNil)
	var payload PlaintextsPayload
	c.Assert(cbor.Unmarshal(raw, &payload), qt.IsNil)
	c.Assert(payload.Rows, qt.HasLen, len(intents))

	decoded := make([]codec.DecodedVoteContest, len(payload.Rows))
	for i, row := range payload.Rows {
		c.Assert(row, qt.HasLen, len(rawBallots[i].Bases))
		values := make([]uint64, len(row))
		for s, v := range row {
			values[s] = uint64(v)
		}
		decoded[i] = policy.FromRawBallot(codec.RawBallot{Bases: rawBallots[i].Bases, Values: values})
	}

	foundWriteIn := false
	for _, d := range decoded {
		c.Assert(d.Errors, qt.HasLen, 0)
		for _, ch := range d.Choices {
			if ch.CandidateID == "other" && ch.Selected >= 0 {
				c.Assert(ch.WriteInText, qt.Not(qt.IsNil))
				c.Assert(*ch.WriteInText, qt.Equals, writeInText)
				foundWriteIn = true
			}
		}
	}
	c.Assert(foundWriteIn, qt.IsTrue)
}
