package board

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/storage/db"
)

// Keys are laid out with a one-byte namespace tag followed by the
// natural key, all inside a single pebble keyspace instead of one file
// per board entry.
const (
	nsBoardMeta byte = 0x01 // boardMetaKey(uuid) -> cbor(Board)
	nsEntry     byte = 0x02 // entryKey(uuid, seq) -> cbor(Entry)
	nsCheckpoint byte = 0x03 // checkpointKey(uuid) -> cbor(Checkpoint)
)

func boardMetaKey(id uuid.UUID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, nsBoardMeta)
	idb := id
	return append(k, idb[:]...)
}

func entryKey(id uuid.UUID, seq uint64) []byte {
	k := make([]byte, 0, 25)
	k = append(k, nsEntry)
	k = append(k, id[:]...)
	var seqb [8]byte
	binary.BigEndian.PutUint64(seqb[:], seq)
	return append(k, seqb[:]...)
}

func entryPrefix(id uuid.UUID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, nsEntry)
	return append(k, id[:]...)
}

func checkpointKey(id uuid.UUID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, nsCheckpoint)
	return append(k, id[:]...)
}

func putCBOR(d db.Database, key []byte, v any) error {
	enc, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return d.Set(key, enc)
}

func getCBOR(d db.Database, key []byte, v any) error {
	raw, err := d.Get(key)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(raw, v)
}

func cborMarshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func cborUnmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// hashEntry computes an entry's payload hash.
func hashEntry(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}
