package castvote

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
)

// PostCastVotePayload is the electoral-log entry shape for a successful
// cast. PseudonymHash/VoteHash let an auditor confirm a specific voter
// cast a specific ballot without the log itself carrying the plaintext
// content.
type PostCastVotePayload struct {
	ElectionID    string
	VoterID       string
	AreaID        string
	PseudonymHash [32]byte
	VoteHash      [32]byte
	VoterIP       string
	VoterCountry  string
}

// PostCastVoteErrorPayload is the electoral-log entry shape for a failed
// cast attempt, carrying the taxonomy string rather than the raw error so
// the log never leaks internal detail to an auditor.
type PostCastVoteErrorPayload struct {
	PostCastVotePayload
	Error string
}

// ElectoralLog posts cast-vote outcomes to a dedicated board instance. It
// is a thin wrapper: all ordering, locking and checkpointing is the
// board.Service's concern.
type ElectoralLog struct {
	service *board.Service
	boardID uuid.UUID
	signKey *ethereum.SignKeys
}

// NewElectoralLog returns an ElectoralLog posting to boardID on service,
// signing every entry with signKey.
func NewElectoralLog(service *board.Service, boardID uuid.UUID, signKey *ethereum.SignKeys) *ElectoralLog {
	return &ElectoralLog{service: service, boardID: boardID, signKey: signKey}
}

// PostCastVote logs a successful cast.
func (l *ElectoralLog) PostCastVote(p PostCastVotePayload) error {
	return l.post(p)
}

// PostCastVoteError logs a failed cast attempt.
func (l *ElectoralLog) PostCastVoteError(p PostCastVoteErrorPayload) error {
	return l.post(p)
}

func (l *ElectoralLog) post(payload any) error {
	enc, err := cbor.Marshal(payload)
	if err != nil {
		return err
	}
	sig, err := l.signKey.SignEthereum(enc)
	if err != nil {
		return err
	}
	pub, _ := l.signKey.HexString()
	_, _, bErr := l.service.AddEntries(l.boardID, []board.NewDataEntry{{
		Data:      enc,
		Timestamp: time.Now().Unix(),
		SignerPK:  pub,
		Signature: sig,
	}})
	if bErr != nil {
		return bErr
	}
	return nil
}
