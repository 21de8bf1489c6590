// Package trustee implements the protocol engine: each trustee's
// deterministic step function driving the DKG state machine (S0-S4) and,
// per batch, the tally state machine (T0-T6) by consuming local-board
// state and emitting new board messages.
package trustee

import "encoding/binary"

// Permutation returns the 0-based signer_position that should occupy mix
// position k (1-based, 1<=k<=n) of batch b: a cyclic rotation seeded by
// the low 8 bytes of cfg_h, so every trustee mixes at position 1 over
// time and the schedule is identical across trustees without further
// coordination.
func Permutation(cfgH []byte, batch uint64, k, n int) int {
	seed := cfgHSeed(cfgH)
	m := uint64(n)
	return int((uint64(k-1) + seed%m + batch%m) % m)
}

func cfgHSeed(cfgH []byte) uint64 {
	var buf [8]byte
	n := copy(buf[:], cfgH)
	_ = n
	return binary.BigEndian.Uint64(buf[:])
}
