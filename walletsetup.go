// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/internal/prompt"
	"github.com/zecsuite/zecwallet/internal/zero"
	"github.com/zecsuite/zecwallet/wallet"
)

// createWallet prompts the user for a seed and a birthday height, then
// creates a wallet holding one account.  The chain state below the birthday
// is read from the block cache, which must already hold it.
func createWallet(cfg *config) error {
	ctx := context.Background()

	cache, err := chain.OpenSQLiteBlockCache(ctx, cfg.BlockCache.Value)
	if err != nil {
		return err
	}
	defer cache.Close()

	minHeight := activeNet.SaplingActivationHeight
	best, err := cache.BestHeight(ctx)
	switch {
	case errors.Is(err, chain.ErrNoBlocks):
		best = minHeight

	case err != nil:
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	seed, restored, err := prompt.Seed(reader)
	if err != nil {
		return err
	}
	defer zero.Bytes(seed)

	// A new seed has never received funds, so the wallet only needs to
	// scan from the current tip.
	height := best
	if restored {
		height, err = prompt.BirthdayHeight(reader, minHeight, best)
		if err != nil {
			return err
		}
	}

	birthday := &wallet.AccountBirthday{
		RecoverUntil: fn.None[uint32](),
	}
	birthday.PriorState, err = cache.ChainState(ctx, height-1)
	if err != nil {
		return fmt.Errorf("chain state at height %d: %w; fill the block "+
			"cache before creating the wallet", height-1, err)
	}
	if restored {
		birthday.RecoverUntil = fn.Some(best)
	}

	loader := wallet.NewLoader(
		activeNet, networkDir(cfg.AppDataDir.Value, activeNet), true,
		cfg.DBTimeout, walletOptions(cfg)...,
	)

	fmt.Println("Creating the wallet...")
	w, err := loader.CreateNewWallet()
	if err != nil {
		return err
	}

	_, usk, err := w.CreateAccount(seed, birthday)
	if err != nil {
		_ = loader.UnloadWallet()
		return err
	}
	usk.Zero()

	if err := w.Save(); err != nil {
		_ = loader.UnloadWallet()
		return err
	}
	if err := loader.UnloadWallet(); err != nil {
		return err
	}

	fmt.Printf("The wallet has been created successfully with birthday "+
		"height %d.\n", height)

	return nil
}
