// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/zecsuite/zecwallet/internal/cfgutil"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/wallet"
)

const defaultNet = "mainnet"

var datadir = btcutil.AppDataDir("zecwallet", false)

// Flags.
var opts = struct {
	Force   bool   `short:"f" description:"Force the rewind without prompt"`
	DataDir string `long:"appdata" description:"Application data directory"`
	Network string `long:"network" description:"Network of the wallet {mainnet, testnet, regtest}"`
	Height  uint32 `long:"height" required:"true" description:"Highest block height kept; every block above it is scanned again"`
}{
	Force:   false,
	DataDir: datadir,
	Network: defaultNet,
}

func init() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
}

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes":
		return true
	default:
		return false
	}
}

func no(s string) bool {
	switch s {
	case "n", "N", "no", "No":
		return true
	default:
		return false
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	params, err := netparams.ByName(opts.Network)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	dbDir := filepath.Join(opts.DataDir, params.Name)
	dbPath := filepath.Join(dbDir, wallet.WalletDBName)
	fmt.Println("Database path:", dbPath)
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	if !exists {
		fmt.Println("Database file does not exist")
		return 1
	}

	for !opts.Force {
		fmt.Printf("Forget every block above height %d? [y/N] ",
			opts.Height)

		scanner := bufio.NewScanner(bufio.NewReader(os.Stdin))
		if !scanner.Scan() {
			// Exit on EOF.
			return 0
		}
		err := scanner.Err()
		if err != nil {
			fmt.Println()
			fmt.Println(err)
			return 1
		}
		resp := scanner.Text()
		if yes(resp) {
			break
		}
		if no(resp) || resp == "" {
			return 0
		}

		fmt.Println("Enter yes or no.")
	}

	loader := wallet.NewLoader(params, dbDir, true, wallet.DefaultDBTimeout)
	w, err := loader.OpenExistingWallet()
	if err != nil {
		fmt.Println("Failed to open wallet:", err)
		return 1
	}
	defer func() {
		if err := loader.UnloadWallet(); err != nil {
			fmt.Println("Failed to close wallet:", err)
		}
	}()

	height, err := w.TruncateToHeight(opts.Height)
	if err != nil {
		fmt.Println("Failed to rewind wallet:", err)
		return 1
	}
	if err := w.Save(); err != nil {
		fmt.Println("Failed to save wallet:", err)
		return 1
	}

	fmt.Printf("Wallet rewound to height %d\n", height)
	return 0
}
