package wtxmgr

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

var (
	testSeed = bytes.Repeat([]byte{0x42}, 32)

	testFVKs = func() map[shielded.Protocol]*shielded.FullViewingKey {
		fvks := make(map[shielded.Protocol]*shielded.FullViewingKey)
		for _, p := range shielded.Protocols {
			sk, err := shielded.DeriveSpendingKey(p, testSeed, 133, 0)
			if err != nil {
				panic(err)
			}
			fvks[p] = sk.FullViewingKey()
		}
		return fvks
	}()
)

// testTxID returns a distinct transaction id for i.
func testTxID(i uint32) chainhash.Hash {
	var h chainhash.Hash
	binary.LittleEndian.PutUint32(h[:], i)
	h[31] = 0x77
	return h
}

// testNote returns a fully populated note of value v received at output idx
// of txid with tree position pos.
func testNote(t require.TestingT, p shielded.Protocol, txid chainhash.Hash,
	idx uint16, v uint64, pos uint64) *ReceivedNote {

	fvk := testFVKs[p]
	addr, _, err := fvk.IncomingViewingKey(shielded.External).FindAddress(
		shielded.NewDiversifierIndex(0),
	)
	require.NoError(t, err)

	note := shielded.Note{
		Protocol:  p,
		Recipient: *addr,
		Value:     unit.Zatoshi(v),
	}
	copy(note.Rseed[:], txid[:])
	binary.LittleEndian.PutUint16(note.Rseed[30:], idx)
	if p == shielded.Orchard {
		note.Rho = [32]byte{0x99, byte(idx)}
	}

	return &ReceivedNote{
		ID:        NoteID{TxID: txid, Protocol: p, Index: idx},
		Note:      note,
		Nullifier: fn.Some(fvk.Nullifier(&note, pos)),
		Position:  fn.Some(pos),
		Scope:     fn.Some(shielded.External),
	}
}

// minedNote records a transaction mined at height and a note in it.
func minedNote(t require.TestingT, s *Store, p shielded.Protocol, i uint32,
	height uint32, v uint64, pos uint64) *ReceivedNote {

	txid := testTxID(i)
	s.PutTxMeta(&txid, height, 0)
	n := testNote(t, p, txid, 0, v, pos)
	require.NoError(t, s.InsertReceivedNote(n))

	return n
}

// witnessChecker reports every position witnessable except those listed.
type witnessChecker struct {
	unreachable map[uint64]bool
}

func (w witnessChecker) IsWitnessable(_ shielded.Protocol, pos uint64,
	_ uint32) bool {

	return !w.unreachable[pos]
}
