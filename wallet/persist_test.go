package wallet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// requireSameWallet checks that two wallets hold the same state.
func requireSameWallet(t *testing.T, want, got *Wallet) {
	t.Helper()

	require.Equal(t, want.ChainHeight(), got.ChainHeight())
	require.Equal(t, want.BlockMaxScanned(), got.BlockMaxScanned())
	require.Equal(t, want.ScanQueue(), got.ScanQueue())
	require.Equal(t, want.TransactionDataRequests(),
		got.TransactionDataRequests())
	require.Equal(t, sortedNotes(want), sortedNotes(got))
	require.Equal(t, want.Manager.AccountIDs(), got.Manager.AccountIDs())

	for _, p := range shielded.Protocols {
		require.Equal(t, want.trees[p].Checkpoints(),
			got.trees[p].Checkpoints(), "%v checkpoints", p)
	}

	wantSummary, err := want.WalletSummary(1)
	require.NoError(t, err)
	gotSummary, err := got.WalletSummary(1)
	require.NoError(t, err)
	require.Equal(t, wantSummary, gotSummary)
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.receive(shielded.Sapling, 60000)
	h.receive(shielded.Orchard, 30000)
	h.sync()
	h.pay(externalAddress(t, saplingOnly), 10000)
	_, err := h.w.Manager.ReserveEphemeral(h.account, 3)
	require.NoError(t, err)

	var b bytes.Buffer
	require.NoError(t, h.w.Serialize(&b))
	snapshot := b.Bytes()

	restored, err := Deserialize(testParams, bytes.NewReader(snapshot))
	require.NoError(t, err)
	requireSameWallet(t, h.w, restored)

	// Serializing the restored wallet is stable.
	var again bytes.Buffer
	require.NoError(t, restored.Serialize(&again))
	require.Equal(t, snapshot, again.Bytes())

	// The restored wallet keeps scanning where the original stopped.
	h.w = restored
	h.receive(shielded.Sapling, 5000)
	h.sync()
	require.Equal(t, unit.Zatoshi(5000+30000),
		h.balance(1).SpendableValue())
}

func TestDeserializeCorrupted(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.sync()

	var b bytes.Buffer
	require.NoError(t, h.w.Serialize(&b))
	snapshot := b.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "unknown version", data: append([]byte{9}, snapshot[1:]...)},
		{name: "truncated", data: snapshot[:len(snapshot)/2]},
	}
	for _, test := range tests {
		_, err := Deserialize(testParams, bytes.NewReader(test.data))
		require.True(t, IsError(err, ErrCorruptedData), "%s: %v",
			test.name, err)
	}
}

func TestLoader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loader := NewLoader(testParams, dir, false, DefaultDBTimeout)

	exists, err := loader.WalletExists()
	require.NoError(t, err)
	require.False(t, exists)

	_, err = loader.OpenExistingWallet()
	require.Error(t, err)

	var loaded []*Wallet
	loader.RunAfterLoad(func(w *Wallet) {
		loaded = append(loaded, w)
	})

	w, err := loader.CreateNewWallet()
	require.NoError(t, err)
	require.Equal(t, []*Wallet{w}, loaded)

	_, err = loader.CreateNewWallet()
	require.ErrorIs(t, err, ErrLoaded)

	// Build some state on the loaded wallet.
	h := newTestHarness(t)
	h.w = w
	h.account, h.usk, err = w.CreateAccount(
		testSeed(0x01), &AccountBirthday{PriorState: h.chain.Tip()},
	)
	require.NoError(t, err)
	h.mineEmpty(1)
	h.receive(shielded.Sapling, 60000)
	h.sync()
	require.NoError(t, w.Save())

	require.NoError(t, loader.UnloadWallet())
	require.ErrorIs(t, loader.UnloadWallet(), ErrNotLoaded)

	_, err = loader.CreateNewWallet()
	require.ErrorIs(t, err, ErrExists)

	reopened, err := loader.OpenExistingWallet()
	require.NoError(t, err)
	requireSameWallet(t, w, reopened)

	got, ok := loader.LoadedWallet()
	require.True(t, ok)
	require.Same(t, reopened, got)

	require.NoError(t, loader.UnloadWallet())
}
