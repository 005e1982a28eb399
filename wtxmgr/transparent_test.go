package wtxmgr

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
)

func testUTXO(i uint32, value int64) *TransparentOutput {
	return &TransparentOutput{
		OutPoint: wire.OutPoint{Hash: testTxID(i), Index: 1},
		Address:  "tmTestAddress",
		TxOut: wire.TxOut{
			Value:    value,
			PkScript: []byte{0x76, 0xa9, 0x14},
		},
	}
}

// TestTransparentSpendability checks confirmation depth and spend handling
// of transparent outputs.
func TestTransparentSpendability(t *testing.T) {
	t.Parallel()

	s := New()
	o := testUTXO(1, 70000)
	s.PutTransparentOutput(o, fn.Some[uint32](100), fn.Some[uint32](105))

	stored, ok := s.TransparentOutput(o.OutPoint)
	require.True(t, ok)
	require.Equal(t, uint32(105), stored.MaxObservedUnspent)
	require.Equal(t, StatusMined(100), s.TxStatus(&o.OutPoint.Hash))

	testCases := []struct {
		target, minConf uint32
		spendable       bool
	}{
		{target: 101, minConf: 1, spendable: true},
		{target: 101, minConf: 2, spendable: false},
		{target: 110, minConf: 10, spendable: true},
		{target: 100, minConf: 0, spendable: true},
		{target: 99, minConf: 0, spendable: false},
	}
	for _, tc := range testCases {
		ok, err := s.UTXOIsSpendable(o.OutPoint, tc.target, tc.minConf)
		require.NoError(t, err)
		require.Equal(t, tc.spendable, ok, "target %d minconf %d",
			tc.target, tc.minConf)
	}

	// An unmined spend locks the output until it expires.
	spender := testTxID(2)
	s.PutTxData(&spender, nil, 120, fn.None[unit.Zatoshi](),
		fn.Some[uint32](106))
	require.True(t, s.MarkTransparentSpent(o.OutPoint, &spender))
	require.Equal(t, fn.Some(spender), s.TransparentSpendingTx(o.OutPoint))

	bal, err := s.TransparentBalance(0, 106, 1)
	require.NoError(t, err)
	require.Zero(t, bal)

	bal, err = s.TransparentBalance(0, 121, 1)
	require.NoError(t, err)
	require.Equal(t, unit.Zatoshi(70000), bal)

	// Once mined the spend is final.
	s.PutTxMeta(&spender, 107, 0)
	bal, err = s.TransparentBalance(0, 200, 1)
	require.NoError(t, err)
	require.Zero(t, bal)

	_, err = s.UTXOIsSpendable(testUTXO(9, 1).OutPoint, 200, 1)
	require.True(t, IsError(err, ErrOutputNotFound))
}

// TestTransparentSpendBeforeOutput checks that a spend observed before the
// output it spends applies once the output arrives.
func TestTransparentSpendBeforeOutput(t *testing.T) {
	t.Parallel()

	s := New()
	o := testUTXO(1, 5000)
	spender := testTxID(2)
	s.PutTxMeta(&spender, 130, 3)

	require.False(t, s.MarkTransparentSpent(o.OutPoint, &spender))
	require.True(t, s.TransparentSpendingTx(o.OutPoint).IsNone())

	s.PutTransparentOutput(o, fn.Some[uint32](120), fn.Some[uint32](140))
	require.Equal(t, fn.Some(spender), s.TransparentSpendingTx(o.OutPoint))

	stored, _ := s.TransparentOutput(o.OutPoint)
	require.Equal(t, uint32(129), stored.MaxObservedUnspent)

	outs, err := s.SpendableUTXOs(0, 200, 1)
	require.NoError(t, err)
	require.Empty(t, outs)
}

// TestTransparentOutputs checks the listing of outputs by account.
func TestTransparentOutputs(t *testing.T) {
	t.Parallel()

	s := New()
	a, b := testUTXO(1, 100), testUTXO(2, 200)
	b.Account = 4
	s.PutTransparentOutput(a, fn.Some[uint32](10), fn.None[uint32]())
	s.PutTransparentOutput(b, fn.None[uint32](), fn.None[uint32]())

	require.Len(t, s.TransparentOutputs(nil), 2)
	outs := s.TransparentOutputs(func(o *TransparentOutput) bool {
		return o.Account == 4
	})
	require.Len(t, outs, 1)
	require.Equal(t, b.OutPoint, outs[0].OutPoint)

	// An output of an unmined transaction is never spendable.
	spendable, err := s.SpendableUTXOs(4, 100, 0)
	require.NoError(t, err)
	require.Empty(t, spendable)
	require.Equal(t, StatusNotMined, s.TxStatus(&b.OutPoint.Hash))
}
