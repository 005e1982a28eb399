package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

func TestSyncOnce(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(5)
	h.receive(shielded.Sapling, 20000)
	h.mineEmpty(3)
	h.receive(shielded.Orchard, 30000)

	s := NewSyncer(SyncerConfig{
		Wallet:    h.w,
		Source:    h.chain,
		BatchSize: 4,
	})
	require.NoError(t, s.SyncOnce(context.Background()))

	tip := h.chain.Tip().Height
	require.Equal(t, fn.Some(tip), h.w.BlockMaxScanned())
	require.Equal(t, fn.Some(tip), h.w.BlockFullyScanned())
	require.Empty(t, h.w.SuggestScanRanges())
	require.Equal(t, unit.Zatoshi(50000), h.balance(1).SpendableValue())

	// A second call with nothing new is a no-op.
	require.NoError(t, s.SyncOnce(context.Background()))
	require.Equal(t, fn.Some(tip), h.w.BlockMaxScanned())
}

// TestSyncOnceReorg replaces the top of the chain after a sync and checks
// that the syncer rewinds and follows the new chain.
func TestSyncOnceReorg(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(2)
	h.receive(shielded.Sapling, 20000)
	h.mineEmpty(2)
	orphan := h.receive(shielded.Sapling, 7000)

	s := NewSyncer(SyncerConfig{Wallet: h.w, Source: h.chain})
	require.NoError(t, s.SyncOnce(context.Background()))
	require.Equal(t, unit.Zatoshi(27000), h.balance(1).SpendableValue())

	require.NoError(t, h.chain.Truncate(orphan.Height-2))
	h.mineEmpty(1)
	h.receive(shielded.Orchard, 9000)
	h.mineEmpty(2)

	require.NoError(t, s.SyncOnce(context.Background()))

	tip := h.chain.Tip()
	require.Equal(t, fn.Some(tip.Height), h.w.BlockMaxScanned())
	stored, ok := h.w.txStore.Block(tip.Height)
	require.True(t, ok)
	require.Equal(t, tip.Hash, stored.Hash)

	// The orphaned note is no longer spendable.
	bal := h.balance(1)
	require.Equal(t, unit.Zatoshi(20000), bal.Sapling.Spendable)
	require.Equal(t, unit.Zatoshi(9000), bal.Orchard.Spendable)
}

func TestSyncerStartStop(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(3)
	h.receive(shielded.Sapling, 20000)

	tick := ticker.NewForce(DefaultPollInterval)
	s := NewSyncer(SyncerConfig{
		Wallet: h.w,
		Source: h.chain,
		Ticker: tick,
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	scannedTo := func(height uint32) func() bool {
		return func() bool {
			return h.w.BlockMaxScanned() == fn.Some(height)
		}
	}
	require.Eventually(t, scannedTo(testBirthday+3), 5*time.Second,
		10*time.Millisecond)

	h.receive(shielded.Orchard, 5000)
	select {
	case tick.Force <- time.Now():
	case <-time.After(5 * time.Second):
		t.Fatal("syncer did not wait for a tick")
	}
	require.Eventually(t, scannedTo(testBirthday+4), 5*time.Second,
		10*time.Millisecond)

	s.Stop()

	// Stopping twice is harmless.
	s.Stop()
}
