package castvote

import "errors"

// Kind is the cast-vote error taxonomy surfaced to the ingest client.
// InsertFailedExceedsAllowedRevotes and BallotIdMismatch are terminal:
// the caller must not retry them.
type Kind int

const (
	KindVotingChannelNotEnabled Kind = iota
	KindCheckStatusFailed
	KindCheckVotesInOtherAreasFailed
	KindInsertFailedExceedsAllowedRevotes
	KindPokValidationFailed
	KindBallotIdMismatch
	KindBallotSignFailed
	KindDeserializeBallotFailed
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindVotingChannelNotEnabled:
		return "voting_channel_not_enabled"
	case KindCheckStatusFailed:
		return "check_status_failed"
	case KindCheckVotesInOtherAreasFailed:
		return "check_votes_in_other_areas_failed"
	case KindInsertFailedExceedsAllowedRevotes:
		return "insert_failed_exceeds_allowed_revotes"
	case KindPokValidationFailed:
		return "pok_validation_failed"
	case KindBallotIdMismatch:
		return "ballot_id_mismatch"
	case KindBallotSignFailed:
		return "ballot_sign_failed"
	case KindDeserializeBallotFailed:
		return "deserialize_ballot_failed"
	case KindInternal:
		return "internal"
	default:
		return "unknown_error"
	}
}

// Terminal reports whether the pipeline must not retry a failure of this
// kind.
func (k Kind) Terminal() bool {
	return k == KindInsertFailedExceedsAllowedRevotes || k == KindBallotIdMismatch
}

// Error is a cast-vote pipeline failure carrying its taxonomy Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

func wrapErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
