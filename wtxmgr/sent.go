// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// SentOutputKey identifies an output of a transaction the wallet sent.
type SentOutputKey struct {
	TxID  chainhash.Hash
	Pool  PoolType
	Index uint16
}

// String returns a human readable form of the key.
func (k SentOutputKey) String() string {
	return fmt.Sprintf("%v:%v:%d", k.TxID, k.Pool, k.Index)
}

func (k SentOutputKey) less(o SentOutputKey) bool {
	if c := bytes.Compare(k.TxID[:], o.TxID[:]); c != 0 {
		return c < 0
	}
	if k.Pool != o.Pool {
		return k.Pool < o.Pool
	}
	return k.Index < o.Index
}

// SentOutput is an output of a transaction sent by one of the wallet's
// accounts.
type SentOutput struct {
	Key         SentOutputKey
	FromAccount uint32

	// Recipient is the encoded address the output pays.
	Recipient string

	// ToAccount is set when the output pays one of the wallet's own
	// accounts.
	ToAccount fn.Option[uint32]

	// EphemeralIndex is set when the output pays one of the sending
	// account's ephemeral transparent addresses.
	EphemeralIndex fn.Option[uint32]

	Value unit.Zatoshi
	Memo  fn.Option[shielded.Memo]
}

// InsertSentOutput records a sent output, replacing an earlier record of
// the same output.
func (s *Store) InsertSentOutput(o *SentOutput) {
	cp := *o
	s.sent[o.Key] = &cp
}

// SentOutput returns the record of a sent output.
func (s *Store) SentOutput(key SentOutputKey) (SentOutput, bool) {
	o, ok := s.sent[key]
	if !ok {
		return SentOutput{}, false
	}
	return *o, true
}

// SentOutputs returns the recorded outputs of a transaction, in output
// order. A nil txid returns every sent output.
func (s *Store) SentOutputs(txid *chainhash.Hash) []SentOutput {
	var outs []SentOutput
	for k, o := range s.sent {
		if txid == nil || k.TxID == *txid {
			outs = append(outs, *o)
		}
	}
	sort.Slice(outs, func(i, j int) bool {
		return outs[i].Key.less(outs[j].Key)
	})

	return outs
}
