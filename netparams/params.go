// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
//
// The embedded chaincfg parameters are only consulted for BIP-32 extended key
// versions; all Zcash specific values live on Params itself.
type Params struct {
	*chaincfg.Params

	// Name is the name of the network, used for the data directory.
	Name string

	// LightwalletdPort is the default port of the compact block indexer.
	LightwalletdPort string

	// SaplingActivationHeight is the first height at which Sapling outputs
	// may appear. Wallets without a birthday never scan below it.
	SaplingActivationHeight uint32

	// NU5ActivationHeight is the first height at which Orchard actions may
	// appear.
	NU5ActivationHeight uint32

	// CoinType is the SLIP-44 coin type used in ZIP-32 and BIP-44 paths.
	CoinType uint32

	// PubKeyHashAddrID is the two byte prefix of transparent P2PKH
	// addresses.
	PubKeyHashAddrID [2]byte

	// ScriptHashAddrID is the two byte prefix of transparent P2SH
	// addresses.
	ScriptHashAddrID [2]byte

	// UnifiedAddressHRP, UnifiedFVKHRP and TEXAddressHRP are the bech32m
	// human readable parts of unified addresses, unified full viewing keys
	// and transparent-source-only addresses.
	UnifiedAddressHRP string
	UnifiedFVKHRP     string
	TEXAddressHRP     string
}

// MainNetParams contains parameters specific to the Zcash main network.
var MainNetParams = Params{
	Params:                  &chaincfg.MainNetParams,
	Name:                    "mainnet",
	LightwalletdPort:        "9067",
	SaplingActivationHeight: 419_200,
	NU5ActivationHeight:     1_687_104,
	CoinType:                133,
	PubKeyHashAddrID:        [2]byte{0x1c, 0xb8},
	ScriptHashAddrID:        [2]byte{0x1c, 0xbd},
	UnifiedAddressHRP:       "u",
	UnifiedFVKHRP:           "uview",
	TEXAddressHRP:           "tex",
}

// TestNetParams contains parameters specific to the Zcash test network.
var TestNetParams = Params{
	Params:                  &chaincfg.TestNet3Params,
	Name:                    "testnet",
	LightwalletdPort:        "19067",
	SaplingActivationHeight: 280_000,
	NU5ActivationHeight:     1_842_420,
	CoinType:                1,
	PubKeyHashAddrID:        [2]byte{0x1d, 0x25},
	ScriptHashAddrID:        [2]byte{0x1c, 0xba},
	UnifiedAddressHRP:       "utest",
	UnifiedFVKHRP:           "uviewtest",
	TEXAddressHRP:           "textest",
}

// RegressionNetParams contains parameters specific to a local regression
// test network. Every upgrade is active from height 1.
var RegressionNetParams = Params{
	Params:                  &chaincfg.RegressionNetParams,
	Name:                    "regtest",
	LightwalletdPort:        "29067",
	SaplingActivationHeight: 1,
	NU5ActivationHeight:     1,
	CoinType:                1,
	PubKeyHashAddrID:        [2]byte{0x1d, 0x25},
	ScriptHashAddrID:        [2]byte{0x1c, 0xba},
	UnifiedAddressHRP:       "uregtest",
	UnifiedFVKHRP:           "uviewregtest",
	TEXAddressHRP:           "texregtest",
}

// ByName returns the parameters of the named network.
func ByName(name string) (*Params, error) {
	switch name {
	case MainNetParams.Name:
		return &MainNetParams, nil
	case TestNetParams.Name:
		return &TestNetParams, nil
	case RegressionNetParams.Name:
		return &RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}
