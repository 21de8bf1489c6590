// Command board runs the bulletin board RPC server (C3): one process per
// election authority, serving CreateBoard/AddEntries/ListEntries/
// ListBoards/ModifyBoard over HTTP for trustees and protocol managers to
// drive.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/boardrpc"
	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/storage/pebbledb"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting board", "datadir", cfg.Datadir, "api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	signKey := ethereum.NewSignKeys()
	if err := signKey.AddHexKey(cfg.SigningKey); err != nil {
		log.Fatalf("failed to load signing key: %v", err)
	}

	store, err := pebbledb.New(cfg.Datadir)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("error closing store", "error", err)
		}
	}()

	service := board.New(store, signKey)
	if _, err := boardrpc.New(&boardrpc.Config{Host: cfg.API.Host, Port: cfg.API.Port, Service: service}); err != nil {
		log.Fatalf("failed to start board RPC server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}
