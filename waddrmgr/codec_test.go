package waddrmgr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestManagerSerialize checks that accounts, addresses and ephemeral state
// survive serialization.
func TestManagerSerialize(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)
	_, err := m.NextUnifiedAddress(id, AllReceivers)
	require.NoError(t, err)
	_, err = m.NextUnifiedAddress(id, ShieldedReceivers)
	require.NoError(t, err)

	eph, err := m.ReserveEphemeral(id, 3)
	require.NoError(t, err)
	m.MarkEphemeralUsed(eph[1].Address, chainhash.Hash{9},
		fn.Some[uint32](300))

	usk, err := DeriveUnifiedSpendingKey(testParams, testSeed(0x05), 2)
	require.NoError(t, err)
	ufvk, err := usk.FullViewingKey()
	require.NoError(t, err)
	viewOnly, err := m.ImportViewOnly(ufvk, Birthday{
		Height: 150, RecoverUntil: fn.Some[uint32](180),
	}, PurposeViewOnly)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	encoded := append([]byte(nil), buf.Bytes()...)

	got, err := Deserialize(testParams, &buf)
	require.NoError(t, err)

	want := m.Accounts()
	have := got.Accounts()
	require.Len(t, have, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, have[i].ID)
		require.Equal(t, want[i].Origin, have[i].Origin)
		require.Equal(t, want[i].Birthday, have[i].Birthday)
		require.True(t, want[i].UFVK.Equal(have[i].UFVK))
	}

	for _, acct := range []uint32{id, viewOnly} {
		wantAddrs, err := m.Addresses(acct)
		require.NoError(t, err)
		haveAddrs, err := got.Addresses(acct)
		require.NoError(t, err)
		require.Equal(t, wantAddrs, haveAddrs)

		wantEph, err := m.KnownEphemeral(acct, fn.None[IndexRange]())
		require.NoError(t, err)
		haveEph, err := got.KnownEphemeral(acct, fn.None[IndexRange]())
		require.NoError(t, err)
		require.Equal(t, wantEph, haveEph)
	}
	require.Equal(t, m.transparent, got.transparent)
	require.Equal(t, m.accounts[id].cursor, got.accounts[id].cursor)

	// The next account and address continue where they left off.
	a, err := m.NextUnifiedAddress(id, AllReceivers)
	require.NoError(t, err)
	b, err := got.NextUnifiedAddress(id, AllReceivers)
	require.NoError(t, err)
	require.Equal(t, a.Encoded, b.Encoded)

	next, _, err := got.CreateAccount(testSeed(0x06), Birthday{})
	require.NoError(t, err)
	require.Equal(t, viewOnly+1, next)

	// Encoding is deterministic and truncation is detected.
	var again bytes.Buffer
	got2, err := Deserialize(testParams, bytes.NewReader(encoded))
	require.NoError(t, err)
	require.NoError(t, got2.Serialize(&again))
	require.Equal(t, encoded, again.Bytes())

	_, err = Deserialize(testParams, bytes.NewReader(encoded[:len(encoded)-4]))
	require.True(t, IsError(err, ErrCorruptedData), err)
}
