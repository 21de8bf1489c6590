package trustee

import (
	"github.com/sequent-io/e2e-core/group"
)

// Cfg is the election configuration, hashed exactly once and written at
// sequence_id 0 of the board; the hash (ConfigHash) becomes the
// election's identity everywhere downstream.
type Cfg struct {
	SessionID    string
	TrusteePKs   [][]byte // trustees[i] = election signing public key, index = signer_position
	Threshold    int
	GroupParams  string // fixed identifier, e.g. "bn254-g1"
	Parameters   map[string]string
}

// Hash computes cfg_h: the canonical CBOR-then-sha256 hash of cfg.
func (c Cfg) Hash() ([]byte, error) {
	return group.ConfigHash(c)
}

// N is the number of trustees.
func (c Cfg) N() int { return len(c.TrusteePKs) }
