package wtxmgr

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/shielded"
)

// TestTruncate checks that truncation un-mines later transactions and drops
// chain observations above the height while keeping spends.
func TestTruncate(t *testing.T) {
	t.Parallel()

	s := New()
	a := minedNote(t, s, shielded.Sapling, 1, 101, 50000, 0)
	b := minedNote(t, s, shielded.Sapling, 2, 102, 50000, 1)
	for h := uint32(101); h <= 102; h++ {
		txid := testTxID(h - 100)
		s.PutBlock(&BlockRecord{
			Height: h,
			TxIDs:  []chainhash.Hash{txid},
		})
		require.NoError(t, s.InsertTxLocator(Locator{Height: h}, &txid))
	}

	spender := testTxID(3)
	s.PutTxMeta(&spender, 102, 1)
	require.NoError(t, s.MarkSpent(a.ID, &spender))
	s.RecordNullifier(shielded.Sapling, a.Nullifier.UnsafeFromSome(),
		Locator{Height: 102, TxIndex: 1})

	o := testUTXO(9, 1000)
	s.PutTransparentOutput(o, fn.Some[uint32](101), fn.Some[uint32](102))

	s.Truncate(101)

	require.Equal(t, StatusMined(101), s.TxStatus(&a.ID.TxID))
	require.Equal(t, StatusNotMined, s.TxStatus(&b.ID.TxID))
	require.Equal(t, StatusNotMined, s.TxStatus(&spender))

	e, _ := s.Tx(&b.ID.TxID)
	require.True(t, e.Block.IsNone())
	require.True(t, e.TxIndex.IsNone())

	got, _ := s.ReceivedNote(b.ID)
	require.True(t, got.Position.IsNone())

	// The Sapling nullifier depends on the position and is forgotten with
	// it.
	require.True(t, got.Nullifier.IsNone())
	require.True(t, s.NoteByNullifier(
		shielded.Sapling, b.Nullifier.UnsafeFromSome(),
	).IsNone())
	got, _ = s.ReceivedNote(a.ID)
	require.Equal(t, fn.Some[uint64](0), got.Position)

	require.Equal(t, fn.Some[uint32](101), s.MaxBlockHeight())
	require.True(t, s.TxIDAt(Locator{Height: 102}).IsNone())
	require.Zero(t, s.NullifierCount())

	// The spend is kept and still effective while its transaction has no
	// known expiry.
	require.Equal(t, fn.Some(spender), s.SpendingTx(a.ID))
	spent, err := s.IsSpent(a.ID, fn.Some[uint32](101), 1)
	require.NoError(t, err)
	require.True(t, spent)

	stored, _ := s.TransparentOutput(o.OutPoint)
	require.Equal(t, uint32(101), stored.MaxObservedUnspent)
}
