package board

import (
	"time"

	"github.com/google/uuid"
)

// Action names a state-mutating RPC for permission checks.
type Action string

const (
	ActionCreateBoard Action = "CreateBoard"
	ActionAddEntries  Action = "AddEntries"
	ActionModifyBoard Action = "ModifyBoard"
)

// Permissions maps each mutating action to the set of public keys (hex
// encoded, uncompressed) authorized to perform it.
type Permissions map[Action][]string

// Allows reports whether signerPubHex may perform action.
func (p Permissions) Allows(action Action, signerPubHex string) bool {
	for _, allowed := range p[action] {
		if allowed == signerPubHex {
			return true
		}
	}
	return false
}

// EntryKind distinguishes the board's config entry (always at sequence_id
// 0) from every subsequent data entry.
type EntryKind int

const (
	KindBoardConfig EntryKind = iota
	KindDataEntry
)

// Entry is one immutable, sequenced record of the board.
type Entry struct {
	SequenceID  uint64
	Kind        EntryKind
	Timestamp   int64
	SignerPK    string
	Signature   []byte
	PayloadHash [32]byte
	Payload     []byte
	Metadata    map[string]string
}

// Checkpoint commits to a prefix of the board's log.
type Checkpoint struct {
	Origin    uuid.UUID
	Size      uint64 // 1 + last sequence_id
	RootHash  [32]byte
	Signature []byte
}

// BoardPublicConfig is the entry written at sequence_id 0 by CreateBoard.
type BoardPublicConfig struct {
	UUID        uuid.UUID
	Name        string
	Permissions Permissions
	IsArchived  bool
	CreatedAt   int64
}

// Board is the administrative view returned by ListBoards/ModifyBoard.
type Board struct {
	UUID             uuid.UUID
	Name             string
	Permissions      Permissions
	IsArchived       bool
	LastSequenceID   uint64
	CreatedAt        int64
}

// NewDataEntry is one element of an AddEntries request. Signature must be
// a valid personal-sign signature over Data by the holder of SignerPK;
// AddEntries rejects any entry where it is not.
type NewDataEntry struct {
	Data      []byte
	Timestamp int64
	Metadata  map[string]string
	SignerPK  string
	Signature []byte
}

func now() int64 {
	return time.Now().Unix()
}
