// Package board implements the append-only bulletin board: an immutable,
// order-preserving per-election log anchored by a signed checkpoint.
package board

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/storage/db"
)

var boardNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Service implements the bulletin board RPCs over a shared db.Database.
// Each board is logically a single-writer log: AddEntries and
// ModifyBoard are serialised per board by a write lock.
type Service struct {
	store db.Database
	sign  *ethereum.SignKeys // the board's own signing key, used for checkpoints

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// New returns a Service backed by store, signing checkpoints with sign.
func New(store db.Database, sign *ethereum.SignKeys) *Service {
	return &Service{
		store: store,
		sign:  sign,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Service) lockFor(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateBoard creates a new per-election log, writing a BoardPublicConfig
// entry at sequence_id 0 and returning a signed checkpoint. There is no
// board yet to hold a permission list, so signature carries the whole
// weight of authenticating the request: it proves the caller holds the
// private key for signerPubHex, which is then recorded as the board's
// creator.
func (s *Service) CreateBoard(id uuid.UUID, name string, perms Permissions, signerPubHex string, signature []byte) (*Board, *Checkpoint, *Error) {
	if !boardNamePattern.MatchString(name) {
		return nil, nil, ErrInvalidBoardName
	}
	payload, err := CreateBoardSigningBytes(id, name, perms)
	if err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}
	if verr := verifySigned(payload, signature, signerPubHex); verr != nil {
		return nil, nil, verr
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.loadMeta(id); err == nil {
		return nil, nil, ErrBoardAlreadyExists
	}

	cfg := BoardPublicConfig{UUID: id, Name: name, Permissions: perms, CreatedAt: now()}
	payload, err = cborMarshal(cfg)
	if err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}

	entry := Entry{
		SequenceID:  0,
		Kind:        KindBoardConfig,
		Timestamp:   now(),
		SignerPK:    signerPubHex,
		PayloadHash: hashEntry(payload),
		Payload:     payload,
	}
	if err := putCBOR(s.store, entryKey(id, 0), entry); err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}

	b := &Board{UUID: id, Name: name, Permissions: perms, LastSequenceID: 0, CreatedAt: entry.Timestamp}
	if err := putCBOR(s.store, boardMetaKey(id), b); err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}

	cp, err := s.recomputeCheckpoint(id, 1)
	if err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}
	log.Infow("board created", "uuid", id.String(), "name", name)
	return b, cp, nil
}

// AddEntries appends entries to board id, all-or-nothing, returning the
// assigned sequence IDs' entries and the updated checkpoint. Every entry
// carries its own signer and signature, since a single batch can mix
// contributions from different trustees; each is checked independently
// before any entry is written.
func (s *Service) AddEntries(id uuid.UUID, entries []NewDataEntry) ([]Entry, *Checkpoint, *Error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if len(entries) == 0 {
		return nil, nil, newErr(KindInvalidArgument, "no entries to add")
	}
	b, err := s.loadMeta(id)
	if err != nil {
		return nil, nil, ErrBoardNotFound
	}
	if b.IsArchived {
		return nil, nil, ErrArchived
	}
	for _, e := range entries {
		if !b.Permissions.Allows(ActionAddEntries, e.SignerPK) {
			return nil, nil, ErrPermissionDenied
		}
		ok, verr := ethereum.VerifyEthereumHex(e.Data, e.Signature, e.SignerPK)
		if verr != nil || !ok {
			return nil, nil, ErrInvalidSignature
		}
	}

	start := b.LastSequenceID + 1
	out := make([]Entry, 0, len(entries))
	batch := s.store.WriteBatch()
	for i, e := range entries {
		seq := start + uint64(i)
		entry := Entry{
			SequenceID:  seq,
			Kind:        KindDataEntry,
			Timestamp:   e.Timestamp,
			SignerPK:    e.SignerPK,
			Signature:   e.Signature,
			PayloadHash: hashEntry(e.Data),
			Payload:     e.Data,
			Metadata:    e.Metadata,
		}
		enc, merr := cborMarshal(entry)
		if merr != nil {
			return nil, nil, newErr(KindInternal, merr.Error())
		}
		if err := batch.Set(entryKey(id, seq), enc); err != nil {
			return nil, nil, newErr(KindInternal, err.Error())
		}
		out = append(out, entry)
	}
	newLast := start + uint64(len(entries)) - 1
	b.LastSequenceID = newLast
	bEnc, merr := cborMarshal(b)
	if merr != nil {
		return nil, nil, newErr(KindInternal, merr.Error())
	}
	if err := batch.Set(boardMetaKey(id), bEnc); err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}
	if err := batch.Write(); err != nil {
		return nil, nil, newErr(KindInternal, err.Error())
	}

	cp, cerr := s.recomputeCheckpoint(id, newLast+1)
	if cerr != nil {
		return nil, nil, newErr(KindInternal, cerr.Error())
	}
	return out, cp, nil
}

// ListEntries returns every entry with sequence_id >= startSeq, up to the
// board's current checkpoint size. This is a read and carries no signer;
// archival only restricts AddEntries.
func (s *Service) ListEntries(id uuid.UUID, startSeq uint64) ([]Entry, uint64, *Error) {
	b, err := s.loadMeta(id)
	if err != nil {
		return nil, 0, ErrBoardNotFound
	}
	var out []Entry
	for seq := startSeq; seq <= b.LastSequenceID; seq++ {
		var e Entry
		if err := getCBOR(s.store, entryKey(id, seq), &e); err != nil {
			return nil, 0, newErr(KindInternal, fmt.Sprintf("missing entry at sequence %d: %v", seq, err))
		}
		out = append(out, e)
	}
	return out, b.LastSequenceID, nil
}

// ListBoards returns every board matching the given optional filters.
func (s *Service) ListBoards(uuidFilter *uuid.UUID, nameFilter *string, archivedFilter *bool) ([]Board, *Error) {
	var out []Board
	err := s.store.Iterate([]byte{nsBoardMeta}, func(key, value []byte) bool {
		var b Board
		if unmarshalErr := cborUnmarshal(value, &b); unmarshalErr != nil {
			return true
		}
		if uuidFilter != nil && b.UUID != *uuidFilter {
			return true
		}
		if nameFilter != nil && b.Name != *nameFilter {
			return true
		}
		if archivedFilter != nil && b.IsArchived != *archivedFilter {
			return true
		}
		out = append(out, b)
		return true
	})
	if err != nil {
		return nil, newErr(KindInternal, err.Error())
	}
	return out, nil
}

// ModifyBoard applies an administrative update (name/permissions/archival
// status) and logs the modification as an entry.
func (s *Service) ModifyBoard(id uuid.UUID, update Board, signerPubHex string, signature []byte) (*Board, *Error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	b, err := s.loadMeta(id)
	if err != nil {
		return nil, ErrBoardNotFound
	}
	if !b.Permissions.Allows(ActionModifyBoard, signerPubHex) {
		return nil, ErrPermissionDenied
	}
	payload, merr := ModifyBoardSigningBytes(id, update)
	if merr != nil {
		return nil, newErr(KindInternal, merr.Error())
	}
	if verr := verifySigned(payload, signature, signerPubHex); verr != nil {
		return nil, verr
	}

	b.Name = update.Name
	b.Permissions = update.Permissions
	b.IsArchived = update.IsArchived

	payload, merr = cborMarshal(struct {
		Action string
		Update Board
	}{Action: "ModifyBoard", Update: *b})
	if merr != nil {
		return nil, newErr(KindInternal, merr.Error())
	}
	seq := b.LastSequenceID + 1
	entry := Entry{SequenceID: seq, Kind: KindDataEntry, Timestamp: now(), SignerPK: signerPubHex, PayloadHash: hashEntry(payload), Payload: payload}
	if err := putCBOR(s.store, entryKey(id, seq), entry); err != nil {
		return nil, newErr(KindInternal, err.Error())
	}
	b.LastSequenceID = seq
	if err := putCBOR(s.store, boardMetaKey(id), b); err != nil {
		return nil, newErr(KindInternal, err.Error())
	}
	if _, cerr := s.recomputeCheckpoint(id, seq+1); cerr != nil {
		return nil, newErr(KindInternal, cerr.Error())
	}
	return b, nil
}

// verifySigned checks that signature is a valid personal-sign signature
// over payload by the holder of signerPubHex, collapsing a decode failure
// and a bad signature into the same PermissionDenied outcome so a caller
// can't distinguish "malformed key" from "wrong key" by error shape.
func verifySigned(payload, signature []byte, signerPubHex string) *Error {
	ok, err := ethereum.VerifyEthereumHex(payload, signature, signerPubHex)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}

// CreateBoardSigningBytes returns the canonical bytes a CreateBoard caller
// signs to prove possession of signerPubHex.
func CreateBoardSigningBytes(id uuid.UUID, name string, perms Permissions) ([]byte, error) {
	return cborMarshal(struct {
		UUID        uuid.UUID
		Name        string
		Permissions Permissions
	}{id, name, perms})
}

// ModifyBoardSigningBytes returns the canonical bytes a ModifyBoard caller
// signs over the board id and the requested update.
func ModifyBoardSigningBytes(id uuid.UUID, update Board) ([]byte, error) {
	return cborMarshal(struct {
		UUID   uuid.UUID
		Update Board
	}{id, update})
}

func (s *Service) loadMeta(id uuid.UUID) (*Board, error) {
	var b Board
	if err := getCBOR(s.store, boardMetaKey(id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// recomputeCheckpoint rebuilds the hash chain root_hash over entries
// [0, size) and signs (origin, size, root_hash). root_hash_k =
// H(root_hash_{k-1} || payload_hash_k), root_hash_0 = H(origin[:]), so
// that two checkpoints with size1 <= size2 necessarily agree on the first
// size1 entries: recomputing the chain up to size1 from either log yields
// the same root_hash1 iff the entries are identical.
func (s *Service) recomputeCheckpoint(id uuid.UUID, size uint64) (*Checkpoint, error) {
	root := sha256.Sum256(id[:])
	for seq := uint64(0); seq < size; seq++ {
		var e Entry
		if err := getCBOR(s.store, entryKey(id, seq), &e); err != nil {
			return nil, fmt.Errorf("checkpoint: missing entry %d: %w", seq, err)
		}
		h := sha256.New()
		h.Write(root[:])
		h.Write(e.PayloadHash[:])
		copy(root[:], h.Sum(nil))
	}

	cp := &Checkpoint{Origin: id, Size: size, RootHash: root}
	if s.sign != nil {
		sig, err := s.sign.SignEthereum(checkpointSigningBytes(cp))
		if err != nil {
			return nil, err
		}
		cp.Signature = sig
	}
	if err := putCBOR(s.store, checkpointKey(id), cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func checkpointSigningBytes(cp *Checkpoint) []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, cp.Origin[:]...)
	var sizeB [8]byte
	for i := 0; i < 8; i++ {
		sizeB[i] = byte(cp.Size >> (8 * i))
	}
	buf = append(buf, sizeB[:]...)
	buf = append(buf, cp.RootHash[:]...)
	return buf
}

// VerifyCheckpoint checks a Checkpoint's signature was produced by
// boardPubHex, letting any verifier with out-of-band trust in the
// board's key refuse a log that doesn't hash to checkpoint.root_hash.
func VerifyCheckpoint(cp *Checkpoint, boardPubHex string) (bool, error) {
	return ethereum.VerifyEthereumHex(checkpointSigningBytes(cp), cp.Signature, boardPubHex)
}
