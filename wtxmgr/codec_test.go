package wtxmgr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// TestSerializeRoundTrip checks that a populated store survives
// serialization unchanged.
func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	a := minedNote(t, s, shielded.Sapling, 1, 101, 50000, 0)
	minedNote(t, s, shielded.Orchard, 2, 102, 25000, 0)

	memo, err := shielded.MemoFromText("for coffee")
	require.NoError(t, err)

	partial := testNote(t, shielded.Orchard, testTxID(4), 1, 700, 4)
	partial.Position = fn.None[uint64]()
	partial.Memo = fn.Some(memo)
	partial.IsChange = true
	partial.Account = 2
	require.NoError(t, s.InsertReceivedNote(partial))

	spender := testTxID(3)
	s.PutTxData(&spender, []byte{0xde, 0xad}, 140,
		fn.Some(unit.Zatoshi(10000)), fn.Some[uint32](100))
	require.NoError(t, s.MarkSpent(a.ID, &spender))

	s.PutBlock(&BlockRecord{
		Height:             101,
		Hash:               chainhash.Hash{0x01},
		Time:               1700000000,
		SaplingTreeSize:    1,
		SaplingOutputCount: 1,
		TxIDs:              []chainhash.Hash{testTxID(1)},
	})
	s.PutBlock(&BlockRecord{Height: 102, Hash: chainhash.Hash{0x02}})

	txid := testTxID(1)
	require.NoError(t, s.InsertTxLocator(Locator{Height: 101}, &txid))
	s.RecordNullifier(shielded.Orchard, shielded.Nullifier{7},
		Locator{Height: 102, TxIndex: 3})

	s.InsertSentOutput(&SentOutput{
		Key:         SentOutputKey{TxID: spender, Pool: PoolSapling},
		FromAccount: 0,
		Recipient:   "zs1recipient",
		Value:       30000,
		Memo:        fn.Some(memo),
	})
	s.InsertSentOutput(&SentOutput{
		Key: SentOutputKey{
			TxID: spender, Pool: PoolTransparent, Index: 1,
		},
		Recipient:      "tmEphemeral",
		ToAccount:      fn.Some[uint32](0),
		EphemeralIndex: fn.Some[uint32](4),
		Value:          10000,
	})

	o := testUTXO(5, 9000)
	s.PutTransparentOutput(o, fn.Some[uint32](101), fn.Some[uint32](102))
	require.True(t, s.MarkTransparentSpent(o.OutPoint, &spender))
	early := testUTXO(6, 1)
	require.False(t, s.MarkTransparentSpent(early.OutPoint, &spender))

	var buf bytes.Buffer
	require.NoError(t, s.Serialize(&buf))
	encoded := append([]byte(nil), buf.Bytes()...)

	got, err := Deserialize(&buf)
	require.NoError(t, err)
	require.Equal(t, s, got)

	// Encoding is deterministic.
	var again bytes.Buffer
	require.NoError(t, got.Serialize(&again))
	require.Equal(t, encoded, again.Bytes())

	// Truncated input is reported as corrupted data.
	_, err = Deserialize(bytes.NewReader(encoded[:len(encoded)/2]))
	require.True(t, IsError(err, ErrCorruptedData))

	require.Equal(t, s, s.Clone())
}
