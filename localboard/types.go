// Package localboard implements each trustee's verified, deduplicated
// mirror of the bulletin board: a typed projection keyed by
// (kind, signer_position, batch, mix_number), ordered by the trustee's own
// acceptance order rather than the board's external sequence_id.
package localboard

// Kind is the closed tagged union of statement types a trustee can
// receive.
type Kind int

const (
	KindConfiguration Kind = iota
	KindChannel
	KindShares
	KindPublicKey
	KindPublicKeySignature
	KindBallots
	KindBallotsSignature
	KindMix
	KindMixSignature
	KindDecryptionFactors
	KindPlaintexts
	KindPlaintextsSignature
)

// ProtocolManager is the signer_position sentinel used for
// protocol-manager-originated statements (Cfg, Ballots) rather than a
// trustee index.
const ProtocolManager = -1

// StatementKey identifies one artifact slot. A trustee never produces two
// distinct artifacts for the same key.
type StatementKey struct {
	Kind           Kind
	SignerPosition int
	Batch          uint64
	MixNumber      uint64
}

// RawMessage is an incoming board entry as seen by the local board,
// before signature verification and deserialisation.
type RawMessage struct {
	ExternalSeq uint64
	SignerPK    string
	Signature   []byte
	Statement   []byte // CBOR-encoded Statement
}

// Statement is the deserialised payload of a RawMessage.
type Statement struct {
	Key     StatementKey
	Payload []byte
}

// storedStatement is what the local board actually persists: the
// statement plus its content hash and local acceptance order.
type storedStatement struct {
	LocalID     uint64
	ExternalSeq uint64
	SignerPK    string
	Key         StatementKey
	Payload     []byte
	Hash        [32]byte
}
