package tx_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
)

func testOutput(b byte) shielded.Output {
	var o shielded.Output
	o.Cmu = shardtree.Node{b}
	o.EphemeralKey[0] = b
	o.EncCiphertext[0] = b
	o.OutCiphertext[0] = b
	return o
}

func testTx() *tx.Tx {
	return &tx.Tx{
		Version:      tx.Version,
		ExpiryHeight: 140,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{
				Hash: chainhash.Hash{0x01}, Index: 2,
			},
			SignatureScript: []byte{0x47, 0x30},
			Sequence:        wire.MaxTxInSequenceNum,
		}},
		TxOut: []*wire.TxOut{
			wire.NewTxOut(5000, []byte{0x76, 0xa9}),
		},
		SaplingAnchor: shardtree.Node{0xaa},
		SaplingSpends: []tx.SaplingSpend{{
			Nullifier: shielded.Nullifier{0x02},
			AuthSig:   bytes.Repeat([]byte{0x05}, 64),
		}},
		SaplingOutputs:      []shielded.Output{testOutput(3)},
		SaplingValueBalance: 10000,
		OrchardAnchor:       shardtree.Node{0xbb},
		OrchardActions: []tx.OrchardAction{{
			Nullifier: shielded.Nullifier{0x04},
			Output:    testOutput(4),
		}},
		OrchardValueBalance: -2000,
	}
}

// TestTxRoundTrip checks that a transaction decodes to itself.
func TestTxRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		tx   *tx.Tx
	}{
		{name: "full", tx: testTx()},
		{name: "transparent only", tx: &tx.Tx{
			Version: tx.Version,
			TxOut:   []*wire.TxOut{wire.NewTxOut(1, []byte{0x51})},
		}},
		{name: "empty", tx: &tx.Tx{Version: tx.Version}},
	}
	for _, tc := range testCases {
		b, err := tc.tx.Bytes()
		require.NoError(t, err, tc.name)

		got, err := tx.FromBytes(b)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.tx, got, spew.Sdump(got))
		require.Equal(t, tc.tx.TxHash(), got.TxHash(), tc.name)

		var again tx.Tx
		n, err := again.ReadFrom(bytes.NewReader(b))
		require.NoError(t, err)
		require.Equal(t, int64(len(b)), n)
	}
}

// TestTxHashIgnoresSignatures checks that signing leaves the id intact.
func TestTxHashIgnoresSignatures(t *testing.T) {
	t.Parallel()

	unsigned := testTx()
	unsigned.TxIn[0].SignatureScript = nil
	unsigned.SaplingSpends[0].AuthSig = nil

	signed := testTx()
	require.Equal(t, unsigned.TxHash(), signed.TxHash())

	// Anything else changes it.
	signed.ExpiryHeight++
	require.NotEqual(t, unsigned.TxHash(), signed.TxHash())

	h1 := unsigned.TransparentSigHash(0, []byte{0x76}, 5000)
	h2 := unsigned.TransparentSigHash(0, []byte{0x76}, 5001)
	require.NotEqual(t, h1, h2)
}

// TestTxFee checks the fee implied by value balances.
func TestTxFee(t *testing.T) {
	t.Parallel()

	// 7000 in, 5000 out, 10000 from Sapling, 2000 into Orchard.
	fee, err := testTx().Fee([]int64{7000})
	require.NoError(t, err)
	require.Equal(t, int64(10000), fee)

	_, err = testTx().Fee(nil)
	require.Error(t, err)

	outs := testTx().ShieldedOutputs()
	require.Len(t, outs, 2)
	require.Equal(t, shielded.Sapling, outs[0].Protocol)
	require.Equal(t, [32]byte{0x04}, outs[1].Rho)
	require.Equal(t, []shielded.Nullifier{{0x04}},
		testTx().Nullifiers(shielded.Orchard))
}

// TestTxMalformed checks truncated, trailing and short write errors.
func TestTxMalformed(t *testing.T) {
	t.Parallel()

	b, err := testTx().Bytes()
	require.NoError(t, err)

	for _, n := range []int{0, 3, 20, len(b) / 2, len(b) - 1} {
		_, err := tx.FromBytes(b[:n])
		require.True(t, errors.Is(err, tx.ErrMalformed),
			"truncated at %d: %v", n, err)
	}

	_, err = tx.FromBytes(append(b, 0))
	require.True(t, errors.Is(err, tx.ErrMalformed))

	bad := append([]byte(nil), b...)
	bad[0] = 4
	_, err = tx.FromBytes(bad)
	require.True(t, errors.Is(err, tx.ErrMalformed))

	w := newFixedWriter(int64(len(b) - 1))
	_, err = testTx().WriteTo(w)
	require.Equal(t, io.ErrShortWrite, err)
}
