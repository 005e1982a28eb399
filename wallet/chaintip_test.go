package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"pgregory.net/rapid"
)

// newEmptyWallet returns a wallet with one account born at testBirthday on
// a chain with empty trees.
func newEmptyWallet(t require.TestingT) *Wallet {
	w := New(testParams)
	_, _, err := w.CreateAccount(testSeed(0x01), &AccountBirthday{
		PriorState: chain.NewChainState(testBirthday-1, chainhash.Hash{}),
	})
	require.NoError(t, err)
	return w
}

// requireContiguous checks that the queue covers [start, end) without gaps
// or overlaps.
func requireContiguous(t require.TestingT, ranges []scanqueue.Range,
	start, end uint32) {

	require.NotEmpty(t, ranges)
	require.Equal(t, start, ranges[0].Start)
	for i := 1; i < len(ranges); i++ {
		require.Equal(t, ranges[i-1].End, ranges[i].Start, "%v", ranges)
		require.False(t, ranges[i].IsEmpty())
	}
	require.Equal(t, end, ranges[len(ranges)-1].End)
}

func TestUpdateChainTip(t *testing.T) {
	t.Parallel()

	t.Run("below activation", func(t *testing.T) {
		t.Parallel()

		w := newEmptyWallet(t)
		w.UpdateChainTip(testParams.SaplingActivationHeight - 1)
		require.True(t, w.ChainHeight().IsNone())
		require.Empty(t, w.ScanQueue())
	})

	t.Run("nothing scanned", func(t *testing.T) {
		t.Parallel()

		w := newEmptyWallet(t)
		w.UpdateChainTip(150)
		require.Equal(t, fn.Some[uint32](150), w.ChainHeight())
		require.Equal(t, []scanqueue.Range{
			scanqueue.NewRange(testBirthday, 151, scanqueue.Historic),
		}, w.SuggestScanRanges())
	})

	t.Run("near the tip", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t)
		h.mineEmpty(11)
		h.sync()

		h.w.UpdateChainTip(150)
		require.Equal(t, []scanqueue.Range{
			scanqueue.NewRange(111, 151, scanqueue.ChainTip),
		}, h.w.SuggestScanRanges())
		requireContiguous(t, h.w.ScanQueue(), testBirthday, 151)
	})

	t.Run("far behind the tip", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t)
		h.mineEmpty(11)
		h.sync()

		h.w.UpdateChainTip(300)
		require.Equal(t, []scanqueue.Range{
			scanqueue.NewRange(111, 121, scanqueue.Verify),
			scanqueue.NewRange(121, 301, scanqueue.Historic),
		}, h.w.SuggestScanRanges())
		requireContiguous(t, h.w.ScanQueue(), testBirthday, 301)
	})

	t.Run("below scanned blocks", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t)
		h.mineEmpty(11)
		h.sync()

		h.w.UpdateChainTip(105)
		require.Equal(t, fn.Some[uint32](110), h.w.ChainHeight())
		require.Empty(t, h.w.SuggestScanRanges())
	})

	t.Run("complete shard", func(t *testing.T) {
		t.Parallel()

		w := newEmptyWallet(t)
		err := w.PutSubtreeRoots(shielded.Sapling, 0,
			[]shardtree.SubtreeRoot{{EndHeight: 120}})
		require.NoError(t, err)

		w.UpdateChainTip(200)
		require.Equal(t, []scanqueue.Range{
			scanqueue.NewRange(testBirthday, 120, scanqueue.Historic),
			scanqueue.NewRange(120, 201, scanqueue.ChainTip),
		}, w.ScanQueue())
	})
}

// TestChainTipQueueCoverage checks that any sequence of tip updates leaves
// a queue covering every height from the birthday to the highest tip.
func TestChainTipQueueCoverage(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		w := newEmptyWallet(t)

		var highest uint32
		tips := rapid.SliceOfN(
			rapid.Uint32Range(testBirthday, testBirthday+500), 1, 20,
		).Draw(t, "tips")
		for _, tip := range tips {
			w.UpdateChainTip(tip)
			require.Equal(t, fn.Some(tip), w.ChainHeight())
			highest = max(highest, tip)

			requireContiguous(t, w.ScanQueue(), testBirthday,
				highest+1)
		}
	})
}

func TestTruncateToHeight(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.receive(shielded.Sapling, 10000)
	h.mineEmpty(3)
	h.sync()

	_, err := h.w.TruncateToHeight(testBirthday - 2)
	require.True(t, IsError(err, ErrRequestedRewindInvalid))
	require.True(t, shardtree.IsError(err, shardtree.ErrRewindTooDeep),
		"%v", err)
	require.Equal(t, fn.Some[uint32](testBirthday+4), h.w.BlockMaxScanned())

	height, err := h.w.TruncateToHeight(testBirthday + 2)
	require.NoError(t, err)
	require.Equal(t, uint32(testBirthday+2), height)
	require.Equal(t, fn.Some[uint32](testBirthday+2), h.w.BlockMaxScanned())
	require.Equal(t, fn.Some[uint32](testBirthday+2), h.w.ChainHeight())
	require.Equal(t, scanqueue.NewRange(
		testBirthday, testBirthday+3, scanqueue.Scanned,
	), h.w.ScanQueue()[0])

	// Rewinding below the note's block leaves the note unmined.
	height, err = h.w.TruncateToHeight(testBirthday)
	require.NoError(t, err)
	require.Equal(t, uint32(testBirthday), height)

	bal := h.balance(1)
	require.Zero(t, bal.SpendableValue())
	require.Equal(t, unit.Zatoshi(10000), bal.Sapling.ValuePendingSpendability)

	h.sync()
	require.Equal(t, unit.Zatoshi(10000), h.balance(1).SpendableValue())
}
