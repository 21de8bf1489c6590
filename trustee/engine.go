package trustee

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/metrics"
)

// BoardClient is the remote board surface a Trustee drives against. A
// concrete implementation talks to the board over its RPC transport; the
// engine never constructs one itself, so it tests against an in-process
// fake with no network involved.
type BoardClient interface {
	// FetchEntries returns every board entry with sequence_id >= fromSeq,
	// translated into RawMessage form, plus the new high-water sequence_id.
	FetchEntries(ctx context.Context, fromSeq uint64) ([]localboard.RawMessage, uint64, error)
	// PostEntries submits this trustee's newly-produced statements.
	PostEntries(ctx context.Context, msgs []OutgoingMessage) error
}

// Trustee drives one trustee's DKG and tally state machines against a
// board, turning StepDKG/StepTally's pure "what am I ready to emit"
// answers into a polling loop: pull new entries, advance every active
// state machine, push whatever became ready.
type Trustee struct {
	Position int
	Client   BoardClient
	Local    *localboard.LocalBoard
	SignKey  *ethereum.SignKeys

	// PollInterval is how long Run waits between polls. A poll that posts
	// entries re-syncs the local board before returning, so the next poll
	// already sees this trustee's own statements.
	PollInterval time.Duration

	// AutoDiscoverBatches, when true, makes poll register any batch with a
	// new KindBallots entry automatically once the DKG has completed,
	// using MaxValue/ShuffleRounds for every discovered TallyState. A
	// caller that wants to control batch parameters per-batch instead
	// should leave this false and call AddBatch itself.
	AutoDiscoverBatches bool
	MaxValue            int64
	ShuffleRounds       int

	mu          sync.Mutex
	nextSeq     uint64
	dkg         *DKGState
	dkgDone     bool
	pk          *group.G1
	secretShare *big.Int
	batches     map[uint64]TallyState
}

// NewTrustee returns a Trustee ready to drive dkg once batches are
// registered with AddBatch as they open.
func NewTrustee(position int, client BoardClient, local *localboard.LocalBoard, signKey *ethereum.SignKeys, dkg DKGState) *Trustee {
	return &Trustee{
		Position:     position,
		Client:       client,
		Local:        local,
		SignKey:      signKey,
		PollInterval: 2 * time.Second,
		dkg:          &dkg,
		batches:      make(map[uint64]TallyState),
	}
}

// AddBatch registers a tally batch for the engine to start driving on the
// next poll. Safe to call while Run is active.
func (tr *Trustee) AddBatch(batch uint64, st TallyState) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.batches[batch] = st
	metrics.TrusteeActiveBatches.WithLabelValues(strconv.Itoa(tr.Position)).Set(float64(len(tr.batches)))
}

// Run polls the board until ctx is cancelled, advancing the DKG and every
// registered batch on each tick. A protocol error from StepDKG or
// StepTally is fatal and returned to the caller, who must halt this
// trustee rather than keep polling with corrupted local state.
func (tr *Trustee) Run(ctx context.Context) error {
	ticker := time.NewTicker(tr.PollInterval)
	defer ticker.Stop()
	for {
		if err := tr.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll runs one iteration: sync new board entries, advance every active
// state machine concurrently, and push whatever became ready. DKG and
// each tally batch are independent tasks, so they are scheduled on a
// worker pool (errgroup) rather than stepped one at a time: the CPU-bound
// shuffle and decryption-factor verification a batch's StepTally performs
// never blocks another batch's.
func (tr *Trustee) poll(ctx context.Context) (err error) {
	position := strconv.Itoa(tr.Position)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.TrusteePolls.WithLabelValues(position, outcome).Inc()
	}()

	if err := tr.sync(ctx); err != nil {
		return err
	}
	if tr.AutoDiscoverBatches {
		if err := tr.discoverBatches(); err != nil {
			return fmt.Errorf("discover batches: %w", err)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var outgoing []OutgoingMessage
	collect := func(out []OutgoingMessage) {
		if len(out) == 0 {
			return
		}
		mu.Lock()
		outgoing = append(outgoing, out...)
		mu.Unlock()
	}

	tr.mu.Lock()
	dkgDone := tr.dkgDone
	dkg := tr.dkg
	batches := make(map[uint64]TallyState, len(tr.batches))
	for b, st := range tr.batches {
		batches[b] = st
	}
	tr.mu.Unlock()

	if !dkgDone {
		g.Go(func() error {
			out, err := StepDKG(tr.Local, *dkg)
			if err != nil {
				return fmt.Errorf("dkg: %w", err)
			}
			collect(out)
			return nil
		})
	}

	for batch, st := range batches {
		batch, st := batch, st
		g.Go(func() error {
			out, err := StepTally(tr.Local, batch, st)
			if err != nil {
				return fmt.Errorf("tally batch %d: %w", batch, err)
			}
			collect(out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if len(outgoing) > 0 {
		if err := tr.Client.PostEntries(ctx, outgoing); err != nil {
			return fmt.Errorf("post entries: %w", err)
		}
		for _, m := range outgoing {
			metrics.TrusteeOutgoingMessages.WithLabelValues(strconv.Itoa(int(m.Key.Kind))).Inc()
		}
		log.Debugw("trustee posted entries", "position", tr.Position, "count", len(outgoing))
		// Re-sync so the next poll's readiness checks already see this
		// trustee's own statements.
		return tr.sync(ctx)
	}
	return nil
}

// discoverBatches registers any batch with a new KindBallots entry once
// the DKG has produced a combined public key and this trustee's combined
// secret share, caching both on first use since they never change for
// the life of the election.
func (tr *Trustee) discoverBatches() error {
	tr.mu.Lock()
	done := tr.dkgDone
	dkg := tr.dkg
	if !done {
		tr.mu.Unlock()
		return nil
	}
	if tr.pk == nil {
		pubKeysRaw := tr.Local.AllByKindAndBatch(localboard.KindPublicKey, 0)
		pk, err := CombinePublicKeys(pubKeysRaw)
		if err != nil {
			tr.mu.Unlock()
			return err
		}
		share, err := CombineSecretShare(tr.Local, *dkg)
		if err != nil {
			tr.mu.Unlock()
			return err
		}
		tr.pk = pk
		tr.secretShare = share
	}
	pk, share := tr.pk, tr.secretShare
	cfg, cfgHash := dkg.Cfg, dkg.CfgHash
	signKey := tr.SignKey
	position := tr.Position
	maxValue, shuffleRounds := tr.MaxValue, tr.ShuffleRounds
	tr.mu.Unlock()

	for _, batch := range tr.Local.BatchesWithKind(localboard.KindBallots) {
		tr.mu.Lock()
		_, known := tr.batches[batch]
		tr.mu.Unlock()
		if known {
			continue
		}
		tr.AddBatch(batch, TallyState{
			MyPosition:    position,
			Cfg:           cfg,
			CfgHash:       cfgHash,
			SecretShare:   share,
			PK:            pk,
			SignKey:       signKey,
			MaxValue:      maxValue,
			ShuffleRounds: shuffleRounds,
		})
		log.Infow("trustee discovered batch", "position", position, "batch", batch)
	}
	return nil
}

func (tr *Trustee) sync(ctx context.Context) error {
	tr.mu.Lock()
	from := tr.nextSeq
	tr.mu.Unlock()

	msgs, newSeq, err := tr.Client.FetchEntries(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch entries: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	if _, err := tr.Local.StoreAndReturnMessages(msgs, true); err != nil {
		return err
	}

	tr.mu.Lock()
	tr.nextSeq = newSeq
	if !tr.dkgDone {
		if sigs := tr.Local.CountByKindAndBatch(localboard.KindPublicKeySignature, 0); sigs >= tr.dkg.Cfg.Threshold {
			tr.dkgDone = true
		}
	}
	tr.mu.Unlock()
	return nil
}
