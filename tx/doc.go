// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package tx provides the transaction model of the wallet: transparent
// inputs and outputs as btcd wire types, Sapling spends and outputs, and
// Orchard actions, along with their binary encoding.
//
// A transaction is identified by the double SHA-256 of its effecting data,
// which is the encoding with every signature left out. Signing therefore
// never changes the transaction id, and the id doubles as the digest that
// shielded spend authorizations sign.
//
// Transactions are written with WriteTo and read with ReadFrom, following
// the io.WriterTo and io.ReaderFrom interfaces:
//
//	var buf bytes.Buffer
//	if _, err := t.WriteTo(&buf); err != nil {
//		// Handle error
//	}
//
//	var t2 tx.Tx
//	if _, err := t2.ReadFrom(&buf); err != nil {
//		// Handle error
//	}
package tx
