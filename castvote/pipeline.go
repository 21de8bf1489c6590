package castvote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/log"
)

// CastRequest bundles an InsertCastVoteInput with everything the pipeline
// needs to authorise and persist it but cannot derive from the ballot
// bytes alone. Callers resolve VoterID/AreaID/Channel/Window from their
// own identity and election-configuration sources before calling
// TryInsertCastVote; this package never looks those up itself.
type CastRequest struct {
	Input           InsertCastVoteInput
	VoterID         string
	AreaID          string
	Channel         VotingChannel
	Window          ChannelWindow
	AuthTime        time.Time
	VoterIP         string
	VoterCountry    string
	VoterSigningKey *ethereum.SignKeys // non-nil only under VoterSigningPolicy=WITH_SIGNATURE
}

// Pipeline runs the cast-vote pipeline (C5) against one election.
type Pipeline struct {
	PK      *group.G1 // election public key, for PoPK verification
	Store   Store
	Log     *ElectoralLog
	SignKey *ethereum.SignKeys // signs the persisted ballot record
}

// TryInsertCastVote runs the full pipeline: ballot_id binding, per-contest
// PoPK verification, voter authorisation, revote enforcement, signing,
// persistence, and electoral-log publication. A non-nil *Error
// whose Terminal() is true must never be retried by the caller; any other
// failure may be retried.
func (p *Pipeline) TryInsertCastVote(ctx context.Context, req CastRequest) (CastVote, *Error) {
	pseudonymHash := sha256.Sum256([]byte(req.VoterID))
	voteHash := sha256.Sum256(req.Input.Content)

	logPayload := PostCastVotePayload{
		ElectionID:    req.Input.ElectionID,
		VoterID:       req.VoterID,
		AreaID:        req.AreaID,
		PseudonymHash: pseudonymHash,
		VoteHash:      voteHash,
		VoterIP:       req.VoterIP,
		VoterCountry:  req.VoterCountry,
	}

	cv, cvErr := p.tryInsert(ctx, req)
	if cvErr != nil {
		if p.Log != nil {
			if logErr := p.Log.PostCastVoteError(PostCastVoteErrorPayload{PostCastVotePayload: logPayload, Error: cvErr.Kind.String()}); logErr != nil {
				log.Errorw("failed to post cast-vote error to electoral log", "error", logErr)
			}
		}
		return CastVote{}, cvErr
	}

	if p.Log != nil {
		if logErr := p.Log.PostCastVote(logPayload); logErr != nil {
			// A successful cast is never unwound because its audit-log
			// entry failed to post; the failure is logged for operators
			// to notice and the vote stands.
			log.Errorw("failed to post cast vote to electoral log", "error", logErr)
		}
	}
	return cv, nil
}

func (p *Pipeline) tryInsert(ctx context.Context, req CastRequest) (CastVote, *Error) {
	computedID := sha256.Sum256(req.Input.Content)
	if hex.EncodeToString(computedID[:]) != req.Input.BallotID {
		return CastVote{}, newErr(KindBallotIdMismatch, "ballot_id does not match H(content)")
	}

	var ballot Ballot
	if err := cbor.Unmarshal(req.Input.Content, &ballot); err != nil {
		return CastVote{}, wrapErr(KindDeserializeBallotFailed, err)
	}
	if err := p.checkPoPK(ballot); err != nil {
		return CastVote{}, err
	}

	g, gctx := errgroup.WithContext(ctx)

	var statusErr error
	g.Go(func() error {
		statusErr = CheckStatus(req.Window, req.Channel, time.Now(), req.AuthTime)
		return nil
	})

	var otherAreasErr error
	g.Go(func() error {
		otherAreasErr = p.checkOtherAreas(gctx, req)
		return nil
	})

	var ballotSig []byte
	var sigErr error
	g.Go(func() error {
		ballotSig, sigErr = p.signBallot(req)
		return nil
	})

	_ = g.Wait() // the three goroutines only ever set local error vars, never return one

	if statusErr != nil {
		return CastVote{}, statusErr.(*Error)
	}
	if otherAreasErr != nil {
		return CastVote{}, otherAreasErr.(*Error)
	}
	if sigErr != nil {
		return CastVote{}, wrapErr(KindBallotSignFailed, sigErr)
	}

	cv := CastVote{
		ElectionID:   req.Input.ElectionID,
		VoterID:      req.VoterID,
		AreaID:       req.AreaID,
		BallotID:     req.Input.BallotID,
		Content:      req.Input.Content,
		Signature:    ballotSig,
		VoterIP:      req.VoterIP,
		VoterCountry: req.VoterCountry,
	}

	err := p.Store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertCastVote(ctx, cv)
	})
	if err != nil {
		if ie, ok := err.(*Error); ok {
			return CastVote{}, ie
		}
		if isMaxRevotesViolation(err) {
			return CastVote{}, newErr(KindInsertFailedExceedsAllowedRevotes, "maximum revotes reached")
		}
		return CastVote{}, wrapErr(KindInternal, err)
	}
	return cv, nil
}

func (p *Pipeline) checkPoPK(ballot Ballot) *Error {
	for _, contest := range ballot.Contests {
		if len(contest.Slots) != len(contest.Proofs) {
			return newErr(KindPokValidationFailed, "mismatched slot/proof count for contest "+contest.ContestID)
		}
		for i, slot := range contest.Slots {
			ciphertext, err := fromCiphertextWire(slot)
			if err != nil {
				return wrapErr(KindPokValidationFailed, err)
			}
			proof, err := fromProofWire(contest.Proofs[i])
			if err != nil {
				return wrapErr(KindPokValidationFailed, err)
			}
			if !group.VerifyEncryption(domainPoPK, p.PK, ciphertext, proof) {
				return newErr(KindPokValidationFailed, "popk validation failed for contest "+contest.ContestID)
			}
		}
	}
	return nil
}

// checkOtherAreas enforces the "voter not previously voted in another
// area" half of voter authorisation; the revote-count limit itself is
// enforced authoritatively by the store's insert (a database constraint
// under concurrent casts is race-safe where an app-level pre-check is
// not).
func (p *Pipeline) checkOtherAreas(ctx context.Context, req CastRequest) error {
	return p.Store.WithTx(ctx, func(tx Tx) error {
		records, err := tx.CastVotesByVoter(ctx, req.Input.ElectionID, req.VoterID)
		if err != nil {
			return wrapErr(KindInternal, err)
		}
		for _, r := range records {
			if r.AreaID != req.AreaID {
				return newErr(KindCheckVotesInOtherAreasFailed, "votes already present in another area")
			}
		}
		return nil
	})
}

func (p *Pipeline) signBallot(req CastRequest) ([]byte, error) {
	if req.VoterSigningKey != nil {
		if _, err := req.VoterSigningKey.SignEthereum(req.Input.Content); err != nil {
			return nil, err
		}
	}
	return p.SignKey.SignEthereum(req.Input.Content)
}
