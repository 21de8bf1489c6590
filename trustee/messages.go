package trustee

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/localboard"
)

// OutgoingMessage is one statement this trustee is now ready to post to
// the board: the step functions are pure, returning every emission that
// has become ready rather than posting as a side effect. Statement and
// Signature are exactly the bytes an AddEntries call would carry as
// NewDataEntry.Data/Signature.
type OutgoingMessage struct {
	Key       localboard.StatementKey
	Statement []byte
	Signature []byte
}

// sign builds and signs a localboard.Statement for key/payload.
func sign(key localboard.StatementKey, payload []byte, signKey *ethereum.SignKeys) (OutgoingMessage, error) {
	st := localboard.Statement{Key: key, Payload: payload}
	enc, err := cbor.Marshal(st)
	if err != nil {
		return OutgoingMessage{}, err
	}
	sig, err := signKey.SignEthereum(enc)
	if err != nil {
		return OutgoingMessage{}, err
	}
	return OutgoingMessage{Key: key, Statement: enc, Signature: sig}, nil
}
