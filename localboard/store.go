package localboard

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/storage/db"
)

const (
	nsCounter       byte = 0x01 // -> uint64 next local id
	nsByLocalID     byte = 0x02 // localID -> storedStatement
	nsByKey         byte = 0x03 // StatementKey -> localID
	nsExternalSeen  byte = 0x04 // externalSeq -> localID, for idempotent re-upload
)

// SignerResolver maps a signer_position (or ProtocolManager) to the
// hex-encoded public key authorized to sign that position's statements,
// per the local board's accepted Configuration.
type SignerResolver func(signerPosition int) (pubKeyHex string, ok bool)

// LocalBoard is one trustee's verified projection of the board.
type LocalBoard struct {
	store    db.Database
	resolver SignerResolver
}

// New returns a LocalBoard backed by store, resolving signers via
// resolver (typically backed by the already-accepted Configuration).
func New(store db.Database, resolver SignerResolver) *LocalBoard {
	return &LocalBoard{store: store, resolver: resolver}
}

func counterKey() []byte { return []byte{nsCounter} }

func byLocalIDKey(id uint64) []byte {
	k := make([]byte, 9)
	k[0] = nsByLocalID
	binary.BigEndian.PutUint64(k[1:], id)
	return k
}

func byKeyKey(sk StatementKey) []byte {
	k := make([]byte, 0, 22)
	k = append(k, nsByKey)
	var kind [2]byte
	binary.BigEndian.PutUint16(kind[:], uint16(sk.Kind))
	k = append(k, kind[:]...)
	var pos [4]byte
	binary.BigEndian.PutUint32(pos[:], uint32(int32(sk.SignerPosition)))
	k = append(k, pos[:]...)
	var batch, mix [8]byte
	binary.BigEndian.PutUint64(batch[:], sk.Batch)
	binary.BigEndian.PutUint64(mix[:], sk.MixNumber)
	k = append(k, batch[:]...)
	return append(k, mix[:]...)
}

func byExternalSeqKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = nsExternalSeen
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func (lb *LocalBoard) nextLocalID() (uint64, error) {
	raw, err := lb.store.Get(counterKey())
	var cur uint64
	if err == nil {
		cur = binary.BigEndian.Uint64(raw)
	} else if err != db.ErrNotFound {
		return 0, err
	}
	next := cur + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := lb.store.Set(counterKey(), buf[:]); err != nil {
		return 0, err
	}
	return cur, nil
}

// StoreAndReturnMessages processes an ordered batch of incoming board
// messages. For each message it:
//  1. deserialises the Statement;
//  2. verifies the signature against the resolver's signer set;
//  3. hashes the payload and applies the dedup/overwrite rule against any
//     existing entry at the same key;
//  4. for a new statement only, assigns the next autoincrement local id
//     (the trustee's accepted order, independent of ExternalSeq) and
//     stores it.
//
// A signature failure or BoardOverwriteAttempt is fatal: processing stops
// immediately and the caller must halt. ignoreExisting skips messages
// whose ExternalSeq has already been accepted, supporting idempotent
// re-upload of the same board range.
func (lb *LocalBoard) StoreAndReturnMessages(messages []RawMessage, ignoreExisting bool) ([]StatementKey, error) {
	var accepted []StatementKey
	for _, msg := range messages {
		if ignoreExisting {
			if _, err := lb.store.Get(byExternalSeqKey(msg.ExternalSeq)); err == nil {
				continue
			}
		}

		var st Statement
		if err := cbor.Unmarshal(msg.Statement, &st); err != nil {
			return accepted, fmt.Errorf("%w: decode statement: %v", ErrBootstrap, err)
		}

		pubHex, ok := lb.resolver(st.Key.SignerPosition)
		if !ok {
			return accepted, fmt.Errorf("%w: unknown signer position %d", ErrConfigurationMismatch, st.Key.SignerPosition)
		}
		valid, err := ethereum.VerifyEthereumHex(msg.Statement, msg.Signature, pubHex)
		if err != nil || !valid {
			return accepted, fmt.Errorf("%w: signer position %d", ErrInvalidSignature, st.Key.SignerPosition)
		}

		hash := sha256.Sum256(st.Payload)

		existingID, existErr := lb.store.Get(byKeyKey(st.Key))
		if existErr == nil {
			var existing storedStatement
			if err := cbor.Unmarshal(mustGetLocal(lb.store, existingID), &existing); err != nil {
				return accepted, fmt.Errorf("%w: %v", ErrBootstrap, err)
			}
			if existing.Hash != hash {
				return accepted, fmt.Errorf("%w: key %+v", ErrBoardOverwriteAttempt, st.Key)
			}
			// identical hash: accept as no-op.
			continue
		} else if existErr != db.ErrNotFound {
			return accepted, existErr
		}

		localID, err := lb.nextLocalID()
		if err != nil {
			return accepted, err
		}
		stored := storedStatement{
			LocalID:     localID,
			ExternalSeq: msg.ExternalSeq,
			SignerPK:    msg.SignerPK,
			Key:         st.Key,
			Payload:     st.Payload,
			Hash:        hash,
		}
		enc, err := cbor.Marshal(stored)
		if err != nil {
			return accepted, err
		}
		batch := lb.store.WriteBatch()
		if err := batch.Set(byLocalIDKey(localID), enc); err != nil {
			return accepted, err
		}
		var idBuf [8]byte
		binary.BigEndian.PutUint64(idBuf[:], localID)
		if err := batch.Set(byKeyKey(st.Key), idBuf[:]); err != nil {
			return accepted, err
		}
		if err := batch.Set(byExternalSeqKey(msg.ExternalSeq), idBuf[:]); err != nil {
			return accepted, err
		}
		if err := batch.Write(); err != nil {
			return accepted, err
		}
		accepted = append(accepted, st.Key)
		log.Debugw("localboard accepted statement", "kind", st.Key.Kind, "signer", st.Key.SignerPosition, "batch", st.Key.Batch, "mix", st.Key.MixNumber, "localID", localID)
	}
	return accepted, nil
}

func mustGetLocal(d db.Database, idBytes []byte) []byte {
	id := binary.BigEndian.Uint64(idBytes)
	v, err := d.Get(byLocalIDKey(id))
	if err != nil {
		return nil
	}
	return v
}

// Has reports whether a statement exists at key and, if so, returns its
// content hash.
func (lb *LocalBoard) Has(key StatementKey) (hash [32]byte, ok bool) {
	idBytes, err := lb.store.Get(byKeyKey(key))
	if err != nil {
		return hash, false
	}
	raw := mustGetLocal(lb.store, idBytes)
	var stored storedStatement
	if err := cbor.Unmarshal(raw, &stored); err != nil {
		return hash, false
	}
	return stored.Hash, true
}

// Get fetches the payload at key, verifying it matches expectedHash. A
// mismatch is fatal: a hash mismatch must never produce a silently wrong
// artifact.
func (lb *LocalBoard) Get(key StatementKey, expectedHash [32]byte) ([]byte, error) {
	idBytes, err := lb.store.Get(byKeyKey(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %+v", ErrMissingArtifact, key)
	}
	raw := mustGetLocal(lb.store, idBytes)
	var stored storedStatement
	if err := cbor.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Hash != expectedHash {
		return nil, fmt.Errorf("%w: key %+v", ErrMismatchedArtifactHash, key)
	}
	return stored.Payload, nil
}

// CountByKindAndBatch counts how many statements of kind exist for batch,
// used by readiness checks that need "all N" or "t of N" quorum counts.
func (lb *LocalBoard) CountByKindAndBatch(kind Kind, batch uint64) int {
	return len(lb.AllByKindAndBatch(kind, batch))
}

// AllByKindAndBatch returns every accepted statement of kind/batch, keyed
// by signer_position, for readiness checks and engine steps that need to
// read every sender's contribution at once (e.g. S1 reading all N
// Channels). Mix statements are additionally keyed by mix_number via
// AllByKindBatchMix.
func (lb *LocalBoard) AllByKindAndBatch(kind Kind, batch uint64) map[int][]byte {
	out := make(map[int][]byte)
	_ = lb.store.Iterate([]byte{nsByLocalID}, func(key, value []byte) bool {
		var stored storedStatement
		if err := cbor.Unmarshal(value, &stored); err == nil {
			if stored.Key.Kind == kind && stored.Key.Batch == batch {
				out[stored.Key.SignerPosition] = stored.Payload
			}
		}
		return true
	})
	return out
}

// AllByKindBatchMix returns every accepted statement of kind/batch/mix,
// keyed by signer_position.
func (lb *LocalBoard) AllByKindBatchMix(kind Kind, batch, mix uint64) map[int][]byte {
	out := make(map[int][]byte)
	_ = lb.store.Iterate([]byte{nsByLocalID}, func(key, value []byte) bool {
		var stored storedStatement
		if err := cbor.Unmarshal(value, &stored); err == nil {
			if stored.Key.Kind == kind && stored.Key.Batch == batch && stored.Key.MixNumber == mix {
				out[stored.Key.SignerPosition] = stored.Payload
			}
		}
		return true
	})
	return out
}

// BatchesWithKind returns the distinct batch numbers that have at least
// one accepted statement of kind, used by callers that need to discover
// newly-opened batches (e.g. a new KindBallots entry signals T0) without
// already knowing the batch number in advance.
func (lb *LocalBoard) BatchesWithKind(kind Kind) []uint64 {
	seen := make(map[uint64]struct{})
	_ = lb.store.Iterate([]byte{nsByLocalID}, func(key, value []byte) bool {
		var stored storedStatement
		if err := cbor.Unmarshal(value, &stored); err == nil && stored.Key.Kind == kind {
			seen[stored.Key.Batch] = struct{}{}
		}
		return true
	})
	out := make([]uint64, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	return out
}
