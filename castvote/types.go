// Package castvote implements the cast-vote pipeline: it binds a ballot
// to its claimed id, verifies each contest's proof of plaintext
// knowledge, enforces voter authorisation and revote policy, signs and
// persists the vote, and publishes an entry to the electoral log.
package castvote

import (
	"fmt"
	"math/big"

	"github.com/sequent-io/e2e-core/group"
)

const domainPoPK = "e2e-core/castvote/popk"

// ciphertextWire and proofWire mirror the CBOR wire-format helpers used
// throughout the trustee package: group.G1/EncryptionProof carry no CBOR
// marshaler of their own, so every package that puts them on the wire
// defines its own byte-slice projection and conversion pair.
type ciphertextWire struct {
	C1 []byte
	C2 []byte
}

type proofWire struct {
	CommitC1 []byte
	CommitC2 []byte
	Response []byte
}

func toCiphertextWire(c *group.Ciphertext) ciphertextWire {
	return ciphertextWire{C1: c.C1.Marshal(), C2: c.C2.Marshal()}
}

func fromCiphertextWire(w ciphertextWire) (*group.Ciphertext, error) {
	c1 := group.NewPoint()
	if err := c1.Unmarshal(w.C1); err != nil {
		return nil, err
	}
	c2 := group.NewPoint()
	if err := c2.Unmarshal(w.C2); err != nil {
		return nil, err
	}
	return &group.Ciphertext{C1: c1, C2: c2}, nil
}

func toProofWire(p *group.EncryptionProof) proofWire {
	return proofWire{CommitC1: p.CommitC1.Marshal(), CommitC2: p.CommitC2.Marshal(), Response: p.Response.Bytes()}
}

func fromProofWire(w proofWire) (*group.EncryptionProof, error) {
	c1 := group.NewPoint()
	if err := c1.Unmarshal(w.CommitC1); err != nil {
		return nil, err
	}
	c2 := group.NewPoint()
	if err := c2.Unmarshal(w.CommitC2); err != nil {
		return nil, err
	}
	return &group.EncryptionProof{CommitC1: c1, CommitC2: c2, Response: new(big.Int).SetBytes(w.Response)}, nil
}

// BallotContest is one contest's encrypted raw-ballot slots and their
// proofs of plaintext knowledge, the unit HashableBallot.contests is
// built from. Each slot is encrypted and proved independently (one
// ciphertext per codec.RawBallot entry for this contest) rather than
// packed into a single integer, so that the tally never has to recover
// a discrete log over a value wider than a single slot's radix.
type BallotContest struct {
	ContestID string
	Slots     []ciphertextWire
	Proofs    []proofWire
}

// Ballot is the deserialised form of an InsertCastVoteInput's content.
type Ballot struct {
	Contests []BallotContest
}

// NewBallotContest builds a BallotContest around already-produced
// per-slot ciphertexts and their encryption proofs. cts and proofs must
// be the same length: one pair per raw-ballot slot for this contest.
func NewBallotContest(contestID string, cts []*group.Ciphertext, proofs []*group.EncryptionProof) (BallotContest, error) {
	if len(cts) != len(proofs) {
		return BallotContest{}, fmt.Errorf("castvote: %d ciphertexts but %d proofs for contest %s", len(cts), len(proofs), contestID)
	}
	slots := make([]ciphertextWire, len(cts))
	wireProofs := make([]proofWire, len(proofs))
	for i, c := range cts {
		slots[i] = toCiphertextWire(c)
		wireProofs[i] = toProofWire(proofs[i])
	}
	return BallotContest{ContestID: contestID, Slots: slots, Proofs: wireProofs}, nil
}

// ToBallotRow flattens every contest's per-slot ciphertexts, in contest
// order, into the single group.BallotRow the mix-net and tally operate
// on. The election-wide slot order this produces must match the order
// the bulletin board expects ballots in, since the row carries no
// per-slot contest/position labels of its own once it leaves this
// package.
func (b Ballot) ToBallotRow() (group.BallotRow, error) {
	var row group.BallotRow
	for _, contest := range b.Contests {
		for _, w := range contest.Slots {
			c, err := fromCiphertextWire(w)
			if err != nil {
				return nil, fmt.Errorf("castvote: contest %s: %w", contest.ContestID, err)
			}
			row = append(row, c)
		}
	}
	return row, nil
}

// VotingChannel identifies which channel a ballot was cast through.
type VotingChannel int

const (
	ChannelOnline VotingChannel = iota
	ChannelInPerson
	ChannelEarlyVoting
)

// VotingStatus is the coarse election/channel status the authorisation
// check compares against.
type VotingStatus int

const (
	StatusNotStarted VotingStatus = iota
	StatusOpen
	StatusPaused
	StatusClosed
)

// GracePeriodPolicy selects whether late casts are tolerated past a
// channel's close date.
type GracePeriodPolicy int

const (
	NoGracePeriod GracePeriodPolicy = iota
	ApplyGracePeriod
)

// InsertCastVoteInput is the pipeline's entry request.
type InsertCastVoteInput struct {
	BallotID   string
	ElectionID string
	Content    []byte // CBOR-encoded Ballot
}

// CastVote is the pipeline's successful result, and also the row shape
// persisted by Store.InsertCastVote.
type CastVote struct {
	ElectionID   string
	VoterID      string
	AreaID       string
	BallotID     string
	Content      []byte
	Signature    []byte
	VoterIP      string
	VoterCountry string
}
