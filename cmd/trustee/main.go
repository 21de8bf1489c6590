// Command trustee runs one election trustee (C6): it drives the DKG
// and, once batches are cast, the tally state machine against a remote
// board, polling for new entries and posting whatever it becomes ready
// to emit.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/boardrpc"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
	"github.com/sequent-io/e2e-core/trustee"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting trustee", "position", cfg.Position, "board", cfg.BoardURL)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	signKey := ethereum.NewSignKeys()
	if err := signKey.AddHexKey(cfg.SigningKey); err != nil {
		log.Fatalf("failed to load signing key: %v", err)
	}
	ownPub, _ := signKey.HexString()

	store, err := pebbledb.New(cfg.Datadir)
	if err != nil {
		log.Fatalf("failed to open local board store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("error closing store", "error", err)
		}
	}()

	resolver := func(position int) (string, bool) {
		if position == localboard.ProtocolManager {
			return cfg.Election.ManagerPK, true
		}
		if position >= 0 && position < len(cfg.Election.TrusteePKs) {
			return cfg.Election.TrusteePKs[position], true
		}
		return "", false
	}
	local := localboard.New(store, resolver)

	boardID, err := uuid.Parse(cfg.BoardID)
	if err != nil {
		log.Fatalf("invalid boardId: %v", err)
	}
	client, err := boardrpc.NewClient(cfg.BoardURL)
	if err != nil {
		log.Fatalf("failed to connect to board: %v", err)
	}
	transport := &boardrpc.TrusteeClient{Client: client, BoardID: boardID, SignerPK: ownPub}

	trusteePKs := make([][]byte, len(cfg.Election.TrusteePKs))
	for i, pk := range cfg.Election.TrusteePKs {
		trusteePKs[i] = []byte(pk)
	}
	electionCfg := trustee.Cfg{
		SessionID:   cfg.Election.SessionID,
		TrusteePKs:  trusteePKs,
		Threshold:   cfg.Election.Threshold,
		GroupParams: cfg.Election.GroupParams,
	}
	cfgHash, err := electionCfg.Hash()
	if err != nil {
		log.Fatalf("failed to hash election configuration: %v", err)
	}

	channelPriv, err := group.RandK()
	if err != nil {
		log.Fatalf("failed to generate channel key: %v", err)
	}
	coeffs := make([]*big.Int, cfg.Election.Threshold)
	for i := range coeffs {
		coeffs[i], err = group.RandK()
		if err != nil {
			log.Fatalf("failed to generate dealer polynomial: %v", err)
		}
	}
	dkg := trustee.DKGState{
		MyPosition:   cfg.Position,
		Cfg:          electionCfg,
		CfgHash:      cfgHash,
		ChannelPriv:  channelPriv,
		DealerCoeffs: coeffs,
		SignKey:      signKey,
	}

	tr := trustee.NewTrustee(cfg.Position, transport, local, signKey, dkg)
	tr.PollInterval = time.Duration(cfg.PollMs) * time.Millisecond
	tr.AutoDiscoverBatches = true
	tr.MaxValue = cfg.Election.MaxValue
	tr.ShuffleRounds = cfg.Election.ShuffleRounds

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infow("received signal, shutting down", "signal", sig.String())
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("trustee engine stopped: %v", err)
		}
	}
}
