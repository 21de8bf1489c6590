package trustee

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/log"
)

const domainBallotsSig = "e2e-core/tally/ballots-signature"
const domainMixSig = "e2e-core/tally/mix-signature"
const domainDecryptionDLEQ = "e2e-core/tally/decryption-dleq"
const domainPlaintextsSig = "e2e-core/tally/plaintexts-signature"

// CiphertextWire is the CBOR wire form of a group.Ciphertext.
type CiphertextWire struct {
	C1 []byte
	C2 []byte
}

func toCiphertextWire(c *group.Ciphertext) CiphertextWire {
	return CiphertextWire{C1: c.C1.Marshal(), C2: c.C2.Marshal()}
}

func fromCiphertextWire(w CiphertextWire) (*group.Ciphertext, error) {
	c1 := group.NewPoint()
	if err := c1.Unmarshal(w.C1); err != nil {
		return nil, err
	}
	c2 := group.NewPoint()
	if err := c2.Unmarshal(w.C2); err != nil {
		return nil, err
	}
	return &group.Ciphertext{C1: c1, C2: c2}, nil
}

// RowWire is the CBOR wire form of a group.BallotRow: one ciphertext per
// raw-ballot slot belonging to a single ballot.
type RowWire []CiphertextWire

func toRowWire(row group.BallotRow) RowWire {
	w := make(RowWire, len(row))
	for i, c := range row {
		w[i] = toCiphertextWire(c)
	}
	return w
}

func fromRowWire(w RowWire) (group.BallotRow, error) {
	row := make(group.BallotRow, len(w))
	for i, cw := range w {
		c, err := fromCiphertextWire(cw)
		if err != nil {
			return nil, err
		}
		row[i] = c
	}
	return row, nil
}

func toRowWires(rows []group.BallotRow) []RowWire {
	out := make([]RowWire, len(rows))
	for i, r := range rows {
		out[i] = toRowWire(r)
	}
	return out
}

func fromRowWires(ws []RowWire) ([]group.BallotRow, error) {
	out := make([]group.BallotRow, len(ws))
	for i, w := range ws {
		r, err := fromRowWire(w)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// BallotsPayload is Ballots_b: the protocol manager's batch of encrypted,
// codec-encoded votes entering the mix (T0's trigger artifact). Each row
// is one ballot's full vector of slot ciphertexts, so that every slot of
// a ballot is decrypted against the same small per-slot bound rather than
// the ballot's full packed integer. Built by PostBallots and signed by the
// protocol manager, not by this package's step function.
type BallotsPayload struct {
	Rows []RowWire
}

// PostBallots builds the signed Ballots_b entry for batch. Exposed here so
// the cast-vote pipeline can close a batch without duplicating the wire
// format or signing convention used by the rest of the tally.
func PostBallots(batch uint64, rows []group.BallotRow, signKey *ethereum.SignKeys) (OutgoingMessage, error) {
	key := localboard.StatementKey{Kind: localboard.KindBallots, SignerPosition: localboard.ProtocolManager, Batch: batch}
	payload := BallotsPayload{Rows: toRowWires(rows)}
	enc, err := cbor.Marshal(payload)
	if err != nil {
		return OutgoingMessage{}, err
	}
	return sign(key, enc, signKey)
}

type signaturePayload struct {
	Signature []byte
}

// mixProofWire is the CBOR wire form of a group.ShuffleProof.
type mixProofWire struct {
	Rounds  int
	Commits []mixRoundCommitWire
	Reveals []mixRoundRevealWire
}

type mixRoundCommitWire struct {
	Intermediate []RowWire
}

type mixRoundRevealWire struct {
	Bit     int
	Perm    []int
	Factors [][][]byte // Factors[row][slot]
}

func toMixProofWire(p *group.ShuffleProof) mixProofWire {
	w := mixProofWire{Rounds: p.Rounds}
	for _, c := range p.Commits {
		w.Commits = append(w.Commits, mixRoundCommitWire{Intermediate: toRowWires(c.Intermediate)})
	}
	for _, r := range p.Reveals {
		factors := make([][][]byte, len(r.Factors))
		for i, row := range r.Factors {
			rowFactors := make([][]byte, len(row))
			for j, f := range row {
				rowFactors[j] = f.Bytes()
			}
			factors[i] = rowFactors
		}
		w.Reveals = append(w.Reveals, mixRoundRevealWire{Bit: r.Bit, Perm: r.Perm, Factors: factors})
	}
	return w
}

func fromMixProofWire(w mixProofWire) (*group.ShuffleProof, error) {
	p := &group.ShuffleProof{Rounds: w.Rounds}
	for _, c := range w.Commits {
		inter, err := fromRowWires(c.Intermediate)
		if err != nil {
			return nil, err
		}
		p.Commits = append(p.Commits, group.RoundCommit{Intermediate: inter})
	}
	for _, r := range w.Reveals {
		factors := make([][]*big.Int, len(r.Factors))
		for i, row := range r.Factors {
			rowFactors := make([]*big.Int, len(row))
			for j, f := range row {
				rowFactors[j] = new(big.Int).SetBytes(f)
			}
			factors[i] = rowFactors
		}
		p.Reveals = append(p.Reveals, group.RoundReveal{Bit: r.Bit, Perm: r.Perm, Factors: factors})
	}
	return p, nil
}

// MixPayload is Mix_{k,b}: a shuffled, re-encrypted copy of the previous
// stage's ballot rows, with its randomized-partial-checking proof (T1, T2).
type MixPayload struct {
	Rows  []RowWire
	Proof mixProofWire
}

// dleqWire is the CBOR wire form of a group.DLEQProof.
type dleqWire struct {
	CommitG  []byte
	CommitH  []byte
	Response []byte
}

func toDLEQWire(p *group.DLEQProof) dleqWire {
	return dleqWire{CommitG: p.CommitG.Marshal(), CommitH: p.CommitH.Marshal(), Response: p.Response.Bytes()}
}

func fromDLEQWire(w dleqWire) (*group.DLEQProof, error) {
	g := group.NewPoint()
	if err := g.Unmarshal(w.CommitG); err != nil {
		return nil, err
	}
	h := group.NewPoint()
	if err := h.Unmarshal(w.CommitH); err != nil {
		return nil, err
	}
	return &group.DLEQProof{CommitG: g, CommitH: h, Response: new(big.Int).SetBytes(w.Response)}, nil
}

// DecryptionFactorsPayload is DecryptionFactors_{i,b}: trustee i's partial
// decryption of every slot of every ballot row in the final mix, each
// with a Chaum-Pedersen proof that it used the same secret share backing
// its published DKG public key (T4).
type DecryptionFactorsPayload struct {
	Factors [][][]byte // Factors[row][slot] = Marshal(d_{i,row,slot})
	Proofs  [][]dleqWire
}

// PlaintextsPayload is Plaintexts_b: the recovered tally of batch b, one
// row of raw-ballot slot values per mixed ballot, in final-mix order
// (T5). Reassembling a row's slot values back into contest selections and
// write-in text is the codec's job, not this package's.
type PlaintextsPayload struct {
	Rows [][]int64
}

// TallyState holds one trustee's material for driving the tally state
// machine across batches.
type TallyState struct {
	MyPosition    int
	Cfg           Cfg
	CfgHash       []byte
	SecretShare   *big.Int // this trustee's share s_i of the election key
	PK            *group.G1
	SignKey       *ethereum.SignKeys
	MaxValue      int64 // upper bound for the final per-slot discrete-log recovery; must be >= the widest slot radix the codec emits (256 covers raw-byte write-in slots)
	ShuffleRounds int
}

// StepTally runs one round of the tally state machine (T0-T6) for batch,
// returning every message this trustee is now ready to emit.
func StepTally(lb *localboard.LocalBoard, batch uint64, st TallyState) ([]OutgoingMessage, error) {
	var out []OutgoingMessage
	n := st.Cfg.N()
	t := st.Cfg.Threshold

	ballotsHash, ok := lb.Has(localboard.StatementKey{Kind: localboard.KindBallots, SignerPosition: localboard.ProtocolManager, Batch: batch})
	if !ok {
		return out, nil // T0 not yet triggered
	}

	// T0: sign Ballots_b.
	ballotsSigKey := localboard.StatementKey{Kind: localboard.KindBallotsSignature, SignerPosition: st.MyPosition, Batch: batch}
	if _, ok := lb.Has(ballotsSigKey); !ok {
		sig, err := st.SignKey.SignEthereum(ballotsHash[:])
		if err != nil {
			return out, err
		}
		msg, err := sign(ballotsSigKey, mustMarshal(signaturePayload{Signature: sig}), st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}

	ballotsSigs := lb.AllByKindAndBatch(localboard.KindBallotsSignature, batch)
	if len(ballotsSigs) < t {
		return out, nil // T1 not yet triggered
	}

	ballotsRaw, err := lb.GetBallots(batch, ballotsHash)
	if err != nil {
		return out, err
	}
	var ballots BallotsPayload
	if err := cbor.Unmarshal(ballotsRaw, &ballots); err != nil {
		return out, fmt.Errorf("%w: ballots: %v", localboard.ErrConfigurationMismatch, err)
	}
	ballotRows, err := fromRowWires(ballots.Rows)
	if err != nil {
		return out, err
	}

	// stageCiphertexts returns the ballot rows entering (k=0) or leaving
	// (k>=1) mix stage k, and the proof attached to stage k (nil for
	// k=0). It memoizes board reads within this call.
	stageCache := map[int][]group.BallotRow{0: ballotRows}
	proofCache := map[int]*group.ShuffleProof{}
	stageCiphertexts := func(k int) ([]group.BallotRow, *group.ShuffleProof, bool, error) {
		if cs, ok := stageCache[k]; ok {
			return cs, proofCache[k], true, nil
		}
		signer := Permutation(st.CfgHash, batch, k, n)
		hash, ok := lb.Has(localboard.StatementKey{Kind: localboard.KindMix, SignerPosition: signer, Batch: batch, MixNumber: uint64(k)})
		if !ok {
			return nil, nil, false, nil
		}
		raw, err := lb.GetMix(signer, batch, uint64(k), hash)
		if err != nil {
			return nil, nil, false, err
		}
		var payload MixPayload
		if err := cbor.Unmarshal(raw, &payload); err != nil {
			return nil, nil, false, fmt.Errorf("%w: mix %d: %v", localboard.ErrConfigurationMismatch, k, err)
		}
		rows, err := fromRowWires(payload.Rows)
		if err != nil {
			return nil, nil, false, err
		}
		proof, err := fromMixProofWire(payload.Proof)
		if err != nil {
			return nil, nil, false, err
		}
		stageCache[k] = rows
		proofCache[k] = proof
		return rows, proof, true, nil
	}

	// verifyStage checks that mix k is a valid shuffle+re-encryption of
	// stage k-1, memoizing the result so repeated callers don't re-verify.
	verified := map[int]bool{0: true}
	var verifyStage func(k int) error
	verifyStage = func(k int) error {
		if verified[k] {
			return nil
		}
		if err := verifyStage(k - 1); err != nil {
			return err
		}
		input, _, ok, err := stageCiphertexts(k - 1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: mix %d not yet available", localboard.ErrMissingArtifact, k-1)
		}
		output, proof, ok, err := stageCiphertexts(k)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: mix %d not yet available", localboard.ErrMissingArtifact, k)
		}
		if err := group.VerifyShuffle(st.PK, input, output, proof); err != nil {
			return fmt.Errorf("%w: mix %d failed verification: %v", localboard.ErrConfigurationMismatch, k, err)
		}
		verified[k] = true
		return nil
	}

	// T1/T2: produce the next mix if it is this trustee's turn and the
	// stage feeding it verifies.
	for k := 1; k <= n; k++ {
		signer := Permutation(st.CfgHash, batch, k, n)
		mixKey := localboard.StatementKey{Kind: localboard.KindMix, SignerPosition: signer, Batch: batch, MixNumber: uint64(k)}
		if _, ok := lb.Has(mixKey); ok {
			continue // already produced
		}
		if signer != st.MyPosition {
			break // waiting on another trustee; later stages can't proceed either
		}
		input, _, ok, err := stageCiphertexts(k - 1)
		if err != nil {
			return out, err
		}
		if !ok {
			break // feeding stage not ready yet
		}
		if k > 1 {
			if err := verifyStage(k - 1); err != nil {
				return out, err
			}
		}

		perm, err := randomPermForBatch(st.CfgHash, batch, uint64(k), len(input))
		if err != nil {
			return out, err
		}
		output, rnd, err := group.ApplyPermutation(st.PK, input, perm)
		if err != nil {
			return out, err
		}
		proof, err := group.GenerateShuffle(st.PK, input, output, perm, rnd, shuffleRounds(st.ShuffleRounds))
		if err != nil {
			return out, err
		}
		payload := MixPayload{Rows: toRowWires(output), Proof: toMixProofWire(proof)}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(mixKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		break // one mix per step call, like the DKG's one-message-at-a-time emission
	}

	finalSigner := Permutation(st.CfgHash, batch, n, n)
	finalHash, ok := lb.Has(localboard.StatementKey{Kind: localboard.KindMix, SignerPosition: finalSigner, Batch: batch, MixNumber: uint64(n)})
	if !ok {
		return out, nil // T3 not yet triggered
	}

	// T3: independently verify and sign every mix.
	for k := 1; k <= n; k++ {
		signer := Permutation(st.CfgHash, batch, k, n)
		mixSigKey := localboard.StatementKey{Kind: localboard.KindMixSignature, SignerPosition: st.MyPosition, Batch: batch, MixNumber: uint64(k)}
		if _, ok := lb.Has(mixSigKey); ok {
			continue
		}
		hash, ok := lb.Has(localboard.StatementKey{Kind: localboard.KindMix, SignerPosition: signer, Batch: batch, MixNumber: uint64(k)})
		if !ok {
			continue
		}
		if err := verifyStage(k); err != nil {
			return out, err
		}
		sig, err := st.SignKey.SignEthereum(hash[:])
		if err != nil {
			return out, err
		}
		msg, err := sign(mixSigKey, mustMarshal(signaturePayload{Signature: sig}), st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}

	for k := 1; k <= n; k++ {
		sigs := lb.AllByKindBatchMix(localboard.KindMixSignature, batch, uint64(k))
		if len(sigs) < t {
			return out, nil // T4 not yet triggered
		}
	}

	finalRaw, err := lb.GetMix(finalSigner, batch, uint64(n), finalHash)
	if err != nil {
		return out, err
	}
	var finalPayload MixPayload
	if err := cbor.Unmarshal(finalRaw, &finalPayload); err != nil {
		return out, fmt.Errorf("%w: final mix: %v", localboard.ErrConfigurationMismatch, err)
	}
	finalRows, err := fromRowWires(finalPayload.Rows)
	if err != nil {
		return out, err
	}

	// T4: post this trustee's decryption factors, one per slot of every
	// ballot row.
	factorsKey := localboard.StatementKey{Kind: localboard.KindDecryptionFactors, SignerPosition: st.MyPosition, Batch: batch}
	if _, ok := lb.Has(factorsKey); !ok {
		myPub := group.NewPoint().ScalarBaseMult(st.SecretShare).(*group.G1)
		payload := DecryptionFactorsPayload{
			Factors: make([][][]byte, len(finalRows)),
			Proofs:  make([][]dleqWire, len(finalRows)),
		}
		for j, row := range finalRows {
			rowFactors := make([][]byte, len(row))
			rowProofs := make([]dleqWire, len(row))
			for s, c := range row {
				d := group.PartialDecrypt(c, st.SecretShare)
				proof, err := group.ProveDLEQ(domainDecryptionDLEQ, group.Generator(), myPub, c.C1, d, st.SecretShare)
				if err != nil {
					return out, err
				}
				rowFactors[s] = d.Marshal()
				rowProofs[s] = toDLEQWire(proof)
			}
			payload.Factors[j] = rowFactors
			payload.Proofs[j] = rowProofs
		}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(factorsKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}

	allFactors := lb.AllByKindAndBatch(localboard.KindDecryptionFactors, batch)
	if len(allFactors) < t {
		return out, nil // T5 not yet triggered
	}

	pubKeys := lb.AllByKindAndBatch(localboard.KindPublicKey, 0)

	// T5: combine every slot's decryption factors and post Plaintexts_b.
	plaintextsKey := localboard.StatementKey{Kind: localboard.KindPlaintexts, SignerPosition: localboard.ProtocolManager, Batch: batch}
	if _, ok := lb.Has(plaintextsKey); !ok {
		rows := make([][]int64, len(finalRows))
		for j, row := range finalRows {
			values := make([]int64, len(row))
			for s, c := range row {
				perSlot := make(map[int]*group.G1, len(allFactors))
				for pos, raw := range allFactors {
					var p DecryptionFactorsPayload
					if err := cbor.Unmarshal(raw, &p); err != nil {
						return out, fmt.Errorf("%w: decryption factors %d: %v", localboard.ErrConfigurationMismatch, pos, err)
					}
					if j >= len(p.Factors) || s >= len(p.Factors[j]) {
						return out, fmt.Errorf("%w: decryption factors %d: short batch", localboard.ErrConfigurationMismatch, pos)
					}
					d := group.NewPoint()
					if err := d.Unmarshal(p.Factors[j][s]); err != nil {
						return out, err
					}
					pubRaw, ok := pubKeys[pos]
					if !ok {
						return out, fmt.Errorf("%w: no public key for position %d", localboard.ErrMissingArtifact, pos)
					}
					pkPayload, err := decodePublicKey(pubRaw)
					if err != nil {
						return out, err
					}
					pkPos := group.NewPoint()
					if err := pkPos.Unmarshal(pkPayload.PubKey); err != nil {
						return out, err
					}
					dleq, err := fromDLEQWire(p.Proofs[j][s])
					if err != nil {
						return out, err
					}
					if !group.VerifyDLEQ(domainDecryptionDLEQ, group.Generator(), pkPos, c.C1, d, dleq) {
						return out, fmt.Errorf("%w: decryption factor from %d failed DLEQ check", localboard.ErrConfigurationMismatch, pos)
					}
					perSlot[pos+1] = d
				}
				combined := group.CombineFactors(perSlot)
				m, err := group.Decrypt(c, combined, st.MaxValue)
				if err != nil {
					return out, fmt.Errorf("%w: recover plaintext row %d slot %d: %v", localboard.ErrConfigurationMismatch, j, s, err)
				}
				values[s] = m.Int64()
			}
			rows[j] = values
		}
		payload := PlaintextsPayload{Rows: rows}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(plaintextsKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		return out, nil
	}

	plaintextsHash, _ := lb.Has(plaintextsKey)

	// Each trustee signs Plaintexts_b once posted, mirroring
	// BallotsSignature/PublicKeySignature's "sign once the artifact
	// appears" pattern; T6 then waits on t of these signatures.
	plaintextsSigKey := localboard.StatementKey{Kind: localboard.KindPlaintextsSignature, SignerPosition: st.MyPosition, Batch: batch}
	if _, ok := lb.Has(plaintextsSigKey); !ok {
		sig, err := st.SignKey.SignEthereum(plaintextsHash[:])
		if err != nil {
			return out, err
		}
		msg, err := sign(plaintextsSigKey, mustMarshal(signaturePayload{Signature: sig}), st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}

	plaintextsSigs := lb.AllByKindAndBatch(localboard.KindPlaintextsSignature, batch)
	if len(plaintextsSigs) >= t {
		log.Debugw("tally batch complete", "batch", batch)
	}
	return out, nil
}

func mustMarshal(v any) []byte {
	b, err := cbor.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func shuffleRounds(configured int) int {
	if configured <= 0 {
		return 40 // 2^-40 soundness error for the cut-and-choose shuffle proof
	}
	return configured
}

// randomPermForBatch derives a deterministic-looking permutation seed so
// two StepTally calls for the same (batch, mix stage) before the message
// lands on the board don't each commit to a different shuffle; the actual
// randomness securing the shuffle is rnd, drawn fresh by ApplyPermutation.
func randomPermForBatch(cfgH []byte, batch, mixNumber uint64, n int) ([]int, error) {
	seed := sha256.Sum256(append(append([]byte("mix-perm"), cfgH...), byte(batch), byte(mixNumber)))
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		seed = sha256.Sum256(seed[:])
		j := int(new(big.Int).Mod(new(big.Int).SetBytes(seed[:]), big.NewInt(int64(i+1))).Int64())
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm, nil
}
