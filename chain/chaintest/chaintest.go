// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaintest builds synthetic chains of compact blocks for tests.
// Transactions are real tx.Tx values whose shielded outputs are encrypted
// to the given addresses, so that a wallet scanning the chain decrypts
// exactly the notes sent to it.
package chaintest

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
)

// Chain is a MemorySource that mines blocks from transactions.
type Chain struct {
	*chain.MemorySource

	mtx  sync.Mutex
	salt uint32
	txs  map[chainhash.Hash]*tx.Tx
}

// New returns a chain whose first mined block has height start. The trees
// below it are seeded with the given number of unrelated leaves so that
// wallet positions do not start at zero.
func New(start uint32, saplingLeaves, orchardLeaves int) (*Chain, error) {
	base := chain.NewChainState(start-1, hashOf(start-1, 0, nil))
	for _, seed := range []struct {
		p shielded.Protocol
		n int
	}{
		{shielded.Sapling, saplingLeaves},
		{shielded.Orchard, orchardLeaves},
	} {
		h := shielded.HasherFor(seed.p)
		for i := 0; i < seed.n; i++ {
			leaf, err := randomNode()
			if err != nil {
				return nil, err
			}
			if err := base.Frontier(seed.p).Append(h, leaf); err != nil {
				return nil, err
			}
		}
	}

	return &Chain{
		MemorySource: chain.NewMemorySource(base),
		txs:          make(map[chainhash.Hash]*tx.Tx),
	}, nil
}

func hashOf(height, salt uint32, txids []chainhash.Hash) chainhash.Hash {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, height)
	_ = binary.Write(&buf, binary.LittleEndian, salt)
	for i := range txids {
		buf.Write(txids[i][:])
	}
	return chainhash.DoubleHashH(buf.Bytes())
}

func randomNode() (shardtree.Node, error) {
	var n shardtree.Node
	_, err := rand.Read(n[:])
	return n, err
}

// Mine appends a block holding the transactions, in order, and returns it.
func (c *Chain) Mine(txs ...*tx.Tx) (*chain.CompactBlock, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	tip := c.Tip()
	b := &chain.CompactBlock{
		Height:   tip.Height + 1,
		PrevHash: tip.Hash,
		Time:     1_700_000_000 + (tip.Height+1)*75,
		ChainMetadata: chain.ChainMetadata{
			SaplingTreeSize: tip.TreeSize(shielded.Sapling),
			OrchardTreeSize: tip.TreeSize(shielded.Orchard),
		},
	}

	txids := make([]chainhash.Hash, 0, len(txs))
	for i, t := range txs {
		ct := chain.CompactTxFromTx(t, uint16(i))
		b.Txs = append(b.Txs, *ct)
		b.ChainMetadata.SaplingTreeSize += uint32(len(t.SaplingOutputs))
		b.ChainMetadata.OrchardTreeSize += uint32(len(t.OrchardActions))
		txids = append(txids, ct.TxID)
		c.txs[ct.TxID] = t
	}

	// The salt makes a block mined again after a truncation differ from
	// the block it replaces.
	c.salt++
	b.Hash = hashOf(b.Height, c.salt, txids)

	if err := c.AddBlock(b); err != nil {
		return nil, err
	}

	return b, nil
}

// MineEmpty appends n blocks without transactions.
func (c *Chain) MineEmpty(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.Mine(); err != nil {
			return err
		}
	}
	return nil
}

// Tx returns a transaction previously mined on the chain.
func (c *Chain) Tx(txid chainhash.Hash) (*tx.Tx, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	t, ok := c.txs[txid]
	return t, ok
}

// NewNote returns a note of value to addr with fresh randomness.
func NewNote(addr *shielded.PaymentAddress, value unit.Zatoshi,
	rho shielded.Nullifier) (*shielded.Note, error) {

	rseed, err := shielded.NewRseed()
	if err != nil {
		return nil, err
	}
	n := &shielded.Note{
		Protocol:  addr.Protocol,
		Recipient: *addr,
		Value:     value,
		Rseed:     rseed,
	}
	if addr.Protocol == shielded.Orchard {
		n.Rho = rho
	}

	return n, nil
}

// RandomNullifier returns a nullifier no wallet tracks.
func RandomNullifier() (shielded.Nullifier, error) {
	var nf shielded.Nullifier
	_, err := rand.Read(nf[:])
	return nf, err
}

// Payment is one shielded output of a transaction built by PayTo.
type Payment struct {
	To    *shielded.PaymentAddress
	Value unit.Zatoshi
	Memo  fn.Option[shielded.Memo]
}

// PayTo returns a transaction with one shielded output per payment and
// nothing else. It stands in for a transaction from a third party.
func PayTo(payments ...Payment) (*tx.Tx, error) {
	t := &tx.Tx{Version: tx.Version}
	for _, p := range payments {
		var rho shielded.Nullifier
		if p.To.Protocol == shielded.Orchard {
			var err error
			if rho, err = RandomNullifier(); err != nil {
				return nil, err
			}
		}

		n, err := NewNote(p.To, p.Value, rho)
		if err != nil {
			return nil, err
		}
		out, err := shielded.EncryptNote(
			n, p.Memo.UnwrapOr(shielded.EmptyMemo),
			fn.None[[32]byte](),
		)
		if err != nil {
			return nil, err
		}

		switch p.To.Protocol {
		case shielded.Sapling:
			t.SaplingOutputs = append(t.SaplingOutputs, *out)
			t.SaplingValueBalance -= int64(p.Value)

		case shielded.Orchard:
			t.OrchardActions = append(t.OrchardActions,
				tx.OrchardAction{Nullifier: rho, Output: *out})
			t.OrchardValueBalance -= int64(p.Value)

		default:
			return nil, fmt.Errorf("unknown protocol %v",
				p.To.Protocol)
		}
	}

	return t, nil
}

// Noise returns a transaction with n Sapling and m Orchard outputs that no
// key can decrypt.
func Noise(n, m int) (*tx.Tx, error) {
	t := &tx.Tx{Version: tx.Version}
	for i := 0; i < n+m; i++ {
		var out shielded.Output
		if _, err := rand.Read(out.Cmu[:]); err != nil {
			return nil, err
		}
		if _, err := rand.Read(out.EphemeralKey[:]); err != nil {
			return nil, err
		}
		if _, err := rand.Read(out.EncCiphertext[:]); err != nil {
			return nil, err
		}

		if i < n {
			t.SaplingOutputs = append(t.SaplingOutputs, out)
			continue
		}
		nf, err := RandomNullifier()
		if err != nil {
			return nil, err
		}
		t.OrchardActions = append(t.OrchardActions, tx.OrchardAction{
			Nullifier: nf, Output: out,
		})
	}

	return t, nil
}

// Spend returns a transaction that reveals a nullifier in a pool without
// creating a note anyone can decrypt.
func Spend(p shielded.Protocol, nf shielded.Nullifier) (*tx.Tx, error) {
	t, err := Noise(0, 0)
	if err != nil {
		return nil, err
	}
	switch p {
	case shielded.Sapling:
		t.SaplingSpends = []tx.SaplingSpend{{Nullifier: nf}}
		return t, nil

	default:
		action, err := Noise(0, 1)
		if err != nil {
			return nil, err
		}
		t.OrchardActions = action.OrchardActions
		t.OrchardActions[0].Nullifier = nf
		return t, nil
	}
}
