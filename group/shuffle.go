package group

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// BallotRow is one ballot's full vector of slot ciphertexts: one
// ciphertext per raw-ballot slot (selection and write-in slots,
// concatenated across contests in a fixed, election-wide order). The mix
// shuffles and re-encrypts whole rows, never individual slots, so every
// slot belonging to one ballot always lands at the same output index as
// every other slot of that ballot.
type BallotRow []*Ciphertext

// ShuffleProof is a randomized-partial-checking proof that Output is a
// permutation and re-encryption of Input under pk, preserving the
// ballot-row multiset across the mix. A literal Wikström permutation-commitment
// argument requires a Pedersen vector commitment and a product/permutation
// polynomial argument verified over an extension field; this package
// instead uses the Sako-Kilian/Jakobsson cut-and-choose construction,
// which gives the same end guarantee (the output multiset is a
// re-encryption of the input multiset with overwhelming probability) at
// the cost of proof size linear in the security parameter Rounds rather
// than logarithmic.
type ShuffleProof struct {
	Rounds  int
	Commits []RoundCommit
	Reveals []RoundReveal
}

// RoundCommit is the prover's first message for one round: a full
// re-shuffle of Input into an intermediate batch of rows.
type RoundCommit struct {
	Intermediate []BallotRow
}

// RoundReveal is the prover's response to the round's binary challenge.
// Exactly one of the two mapping halves is opened, never both, so no
// single round reveals the permutation end to end.
type RoundReveal struct {
	// Bit selects which half was opened: 0 reveals Input->Intermediate,
	// 1 reveals Intermediate->Output.
	Bit int
	// Perm[j] gives, for output/intermediate row j, the index into the
	// other side that it came from.
	Perm []int
	// Factors[j][s] is the re-encryption randomness used for row j, slot
	// s, on the opened edge (for the second edge, the output randomness
	// minus the intermediate randomness), so the verifier can recompute
	// the re-encryption directly.
	Factors [][]*big.Int
}

// shuffleStep holds the prover's private witness for one round: the
// permutation and re-encryption randomness used to build Intermediate from
// Input, and the permutation and randomness used to build Output from
// Intermediate.
type shuffleStep struct {
	permInToMid  []int
	randInToMid  [][]*big.Int
	permMidToOut []int
	randMidToOut [][]*big.Int
}

// rowWidth returns the common slot count of every row in rows, or an
// error if the batch is ragged.
func rowWidth(rows []BallotRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	w := len(rows[0])
	for _, r := range rows {
		if len(r) != w {
			return 0, fmt.Errorf("shuffle: ragged ballot rows")
		}
	}
	return w, nil
}

func reEncryptRow(pk *G1, row BallotRow, rnd []*big.Int) BallotRow {
	out := make(BallotRow, len(row))
	for s, c := range row {
		out[s] = ReEncrypt(pk, c, rnd[s])
	}
	return out
}

// GenerateShuffle produces a ShuffleProof that output is input permuted by
// perm and independently re-encrypted row by row, using randomness rnd
// (rnd[j][s] is the re-encryption factor applied to slot s of output[j],
// produced from input[perm[j]][s]; see ApplyPermutation). rounds controls
// the soundness (2^-rounds probability an invalid shuffle passes
// verification).
func GenerateShuffle(pk *G1, input, output []BallotRow, perm []int, rnd [][]*big.Int, rounds int) (*ShuffleProof, error) {
	n := len(input)
	if len(output) != n || len(perm) != n || len(rnd) != n {
		return nil, fmt.Errorf("shuffle: mismatched batch sizes")
	}
	w, err := rowWidth(input)
	if err != nil {
		return nil, err
	}

	proof := &ShuffleProof{Rounds: rounds}
	steps := make([]shuffleStep, rounds)

	for r := 0; r < rounds; r++ {
		// Build a random intermediate permutation+re-encryption of input,
		// then derive the second leg (intermediate -> output) so that
		// composing both legs yields exactly (perm, rnd).
		midPerm := randomPermutation(n)
		midRand := make([][]*big.Int, n)
		intermediate := make([]BallotRow, n)
		for j := 0; j < n; j++ {
			rowRand := make([]*big.Int, w)
			for s := 0; s < w; s++ {
				k, err := RandK()
				if err != nil {
					return nil, err
				}
				rowRand[s] = k
			}
			midRand[j] = rowRand
			intermediate[j] = reEncryptRow(pk, input[midPerm[j]], rowRand)
		}

		// second leg: output[j] = ReEncrypt(intermediate[sigma[j]], delta[j])
		// where sigma[j] = midPermInv[perm[j]].
		midPermInv := invertPermutation(midPerm)
		sigma := make([]int, n)
		delta := make([][]*big.Int, n)
		order := NewPoint().Order()
		for j := 0; j < n; j++ {
			sigma[j] = midPermInv[perm[j]]
			rowDelta := make([]*big.Int, w)
			for s := 0; s < w; s++ {
				d := new(big.Int).Sub(rnd[j][s], midRand[sigma[j]][s])
				rowDelta[s] = d.Mod(d, order)
			}
			delta[j] = rowDelta
		}

		steps[r] = shuffleStep{
			permInToMid:  midPerm,
			randInToMid:  midRand,
			permMidToOut: sigma,
			randMidToOut: delta,
		}
		proof.Commits = append(proof.Commits, RoundCommit{Intermediate: intermediate})
	}

	// Fiat-Shamir: derive rounds independent bits from the full transcript
	// (input, output, all intermediates) so the prover cannot choose which
	// half to open after seeing the challenge.
	challengeBits := deriveChallengeBits(input, output, proof.Commits, rounds)

	for r := 0; r < rounds; r++ {
		bit := challengeBits[r]
		var reveal RoundReveal
		reveal.Bit = bit
		if bit == 0 {
			reveal.Perm = steps[r].permInToMid
			reveal.Factors = steps[r].randInToMid
		} else {
			reveal.Perm = steps[r].permMidToOut
			reveal.Factors = steps[r].randMidToOut
		}
		proof.Reveals = append(proof.Reveals, reveal)
	}

	return proof, nil
}

// VerifyShuffle checks a ShuffleProof against the public input and output
// batches. It recomputes the Fiat-Shamir challenge bits itself, so the
// prover cannot bias which half of each round gets opened.
func VerifyShuffle(pk *G1, input, output []BallotRow, proof *ShuffleProof) error {
	n := len(input)
	if len(output) != n {
		return fmt.Errorf("shuffle: batch size mismatch")
	}
	w, err := rowWidth(input)
	if err != nil {
		return err
	}
	if proof == nil || len(proof.Commits) != proof.Rounds || len(proof.Reveals) != proof.Rounds {
		return fmt.Errorf("shuffle: malformed proof")
	}

	challengeBits := deriveChallengeBits(input, output, proof.Commits, proof.Rounds)

	for r := 0; r < proof.Rounds; r++ {
		reveal := proof.Reveals[r]
		if reveal.Bit != challengeBits[r] {
			return fmt.Errorf("shuffle round %d: challenge bit mismatch", r)
		}
		intermediate := proof.Commits[r].Intermediate
		if len(intermediate) != n || len(reveal.Perm) != n || len(reveal.Factors) != n {
			return fmt.Errorf("shuffle round %d: malformed reveal", r)
		}
		if !isPermutation(reveal.Perm, n) {
			return fmt.Errorf("shuffle round %d: not a permutation", r)
		}

		var from, to []BallotRow
		if reveal.Bit == 0 {
			from, to = input, intermediate
		} else {
			from, to = intermediate, output
		}

		for j := 0; j < n; j++ {
			srcRow := from[reveal.Perm[j]]
			dstRow := to[j]
			rowFactors := reveal.Factors[j]
			if len(srcRow) != w || len(dstRow) != w || len(rowFactors) != w {
				return fmt.Errorf("shuffle round %d: malformed row at index %d", r, j)
			}
			for s := 0; s < w; s++ {
				want := ReEncrypt(pk, srcRow[s], rowFactors[s])
				if !want.C1.Equal(dstRow[s].C1) || !want.C2.Equal(dstRow[s].C2) {
					return fmt.Errorf("shuffle round %d: re-encryption check failed at row %d slot %d", r, j, s)
				}
			}
		}
	}
	return nil
}

// deriveChallengeBits derives one Fiat-Shamir bit per round from the full
// public transcript, binding the prover to the commitments before it
// learns which half of each round will be checked.
func deriveChallengeBits(input, output []BallotRow, commits []RoundCommit, rounds int) []int {
	h := sha256.New()
	h.Write([]byte("shuffle-challenge"))
	writeRows := func(rows []BallotRow) {
		for _, row := range rows {
			for _, c := range row {
				h.Write(c.C1.Marshal())
				h.Write(c.C2.Marshal())
			}
		}
	}
	writeRows(input)
	writeRows(output)
	for _, rc := range commits {
		writeRows(rc.Intermediate)
	}
	digest := h.Sum(nil)

	bits := make([]int, rounds)
	for r := 0; r < rounds; r++ {
		byteIdx := r / 8
		bitIdx := uint(r % 8)
		if byteIdx >= len(digest) {
			// extend by re-hashing when rounds exceeds digest bit length
			extra := sha256.Sum256(append(digest, byte(byteIdx)))
			digest = append(digest, extra[:]...)
		}
		bits[r] = int((digest[byteIdx] >> bitIdx) & 1)
	}
	return bits
}

func randomPermutation(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randIndex(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	k, err := RandK()
	if err != nil {
		return 0
	}
	return int(new(big.Int).Mod(k, big.NewInt(int64(n))).Int64())
}

func invertPermutation(p []int) []int {
	inv := make([]int, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

func isPermutation(p []int, n int) bool {
	seen := make([]bool, n)
	for _, v := range p {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// ApplyPermutation re-encrypts and permutes a batch of ballot rows
// according to perm, applying fresh independent randomness to every
// slot of every row, and returns the output batch, the randomness used
// (suitable for GenerateShuffle's rnd argument), and the permutation
// itself. output[j] = re-encryption of input[perm[j]], slot by slot.
func ApplyPermutation(pk *G1, input []BallotRow, perm []int) ([]BallotRow, [][]*big.Int, error) {
	n := len(input)
	w, err := rowWidth(input)
	if err != nil {
		return nil, nil, err
	}
	output := make([]BallotRow, n)
	rnd := make([][]*big.Int, n)
	for j := 0; j < n; j++ {
		rowRand := make([]*big.Int, w)
		for s := 0; s < w; s++ {
			k, err := RandK()
			if err != nil {
				return nil, nil, err
			}
			rowRand[s] = k
		}
		rnd[j] = rowRand
		output[j] = reEncryptRow(pk, input[perm[j]], rowRand)
	}
	return output, rnd, nil
}
