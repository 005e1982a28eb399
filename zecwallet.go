// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"runtime"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/wallet"
)

var (
	cfg       *config
	activeNet = &netparams.MainNetParams
)

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit.
	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func walletMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s", version())

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, err := chain.OpenSQLiteBlockCache(ctx, cfg.BlockCache.Value)
	if err != nil {
		log.Errorf("Unable to open block cache: %v", err)
		return err
	}
	defer cache.Close()

	loader := wallet.NewLoader(
		activeNet, networkDir(cfg.AppDataDir.Value, activeNet), true,
		cfg.DBTimeout, walletOptions(cfg)...,
	)
	loader.RunAfterLoad(func(w *wallet.Wallet) {
		log.Infof("Opened wallet with %d %s", len(w.Manager.AccountIDs()),
			pickNoun(len(w.Manager.AccountIDs()), "account",
				"accounts"))
	})

	w, err := loader.OpenExistingWallet()
	if err != nil {
		log.Errorf("Unable to open wallet: %v", err)
		return err
	}
	defer func() {
		if err := loader.UnloadWallet(); err != nil {
			log.Errorf("Unable to close wallet: %v", err)
		}
	}()

	// Return now if an interrupt signal was triggered while the wallet
	// was opening.
	if interruptRequested(interrupt) {
		return nil
	}

	syncer := wallet.NewSyncer(wallet.SyncerConfig{
		Wallet:    w,
		Source:    cache,
		BatchSize: cfg.BatchSize,
		Ticker:    ticker.New(cfg.PollInterval),
	})
	if err := syncer.Start(); err != nil {
		log.Errorf("Unable to start syncer: %v", err)
		return err
	}

	stopBalances := logBalances(w, cfg.PollInterval)

	<-interrupt

	stopBalances()
	syncer.Stop()
	if err := w.Save(); err != nil {
		log.Errorf("Unable to save wallet: %v", err)
	}

	log.Info("Shutdown complete")
	return nil
}

// walletOptions returns the wallet tunables selected by the config.
func walletOptions(cfg *config) []wallet.Option {
	return []wallet.Option{
		wallet.WithBatchSize(wallet.DefaultBatchSize),
		wallet.WithMaxCheckpoints(cfg.MaxCheckpoints),
		wallet.WithExpiryDelta(cfg.ExpiryDelta),
	}
}
