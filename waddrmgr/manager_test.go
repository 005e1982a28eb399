package waddrmgr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/shielded"
)

var testParams = &netparams.RegressionNetParams

func testSeed(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func newTestManager(t *testing.T) (*Manager, uint32) {
	t.Helper()

	m := New(testParams)
	id, usk, err := m.CreateAccount(testSeed(0x01), Birthday{Height: 100})
	require.NoError(t, err)
	require.NotNil(t, usk)

	return m, id
}

// TestCreateAccount checks account numbering per seed and the errors of
// account creation.
func TestCreateAccount(t *testing.T) {
	t.Parallel()

	m := New(testParams)
	seed := testSeed(0x01)

	for want := uint32(0); want < 3; want++ {
		id, usk, err := m.CreateAccount(seed, Birthday{Height: 100})
		require.NoError(t, err)
		require.Equal(t, want, id)
		require.Equal(t, want, usk.Account)

		a, err := m.Account(id)
		require.NoError(t, err)
		require.Equal(t, AccountDerived, a.Origin.Kind)
		require.Equal(t, want, a.Origin.HDIndex)
		require.True(t, a.CanSpend())
	}

	// Another seed starts at index zero again.
	id, usk, err := m.CreateAccount(testSeed(0x02), Birthday{Height: 90})
	require.NoError(t, err)
	require.Equal(t, uint32(3), id)
	require.Zero(t, usk.Account)

	require.Equal(t, []uint32{0, 1, 2, 3}, m.AccountIDs())
	require.Equal(t, fn.Some[uint32](90), m.WalletBirthday())

	testCases := []struct {
		name string
		seed []byte
		code ErrorCode
	}{
		{name: "short seed", seed: make([]byte, 31),
			code: ErrInvalidSeedLength},
		{name: "long seed", seed: make([]byte, 65),
			code: ErrInvalidSeedLength},
	}
	for _, tc := range testCases {
		_, _, err := m.CreateAccount(tc.seed, Birthday{})
		require.True(t, IsError(err, tc.code), "%s: %v", tc.name, err)
	}

	_, _, err = m.ImportDerivedAccount(seed, hdkeychain.HardenedKeyStart,
		Birthday{})
	require.True(t, IsError(err, ErrAccountOutOfRange), spew.Sdump(err))

	// The same index of the same seed collides.
	_, _, err = m.ImportDerivedAccount(seed, 1, Birthday{})
	require.True(t, IsError(err, ErrAccountCollision), spew.Sdump(err))

	_, err = m.Account(42)
	require.True(t, IsError(err, ErrAccountUnknown))
}

// TestImportViewOnly checks importing viewing keys and matching accounts
// by their keys.
func TestImportViewOnly(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)
	a, err := m.Account(id)
	require.NoError(t, err)

	// The derived key is already known.
	_, err = m.ImportViewOnly(a.UFVK, Birthday{}, PurposeViewOnly)
	require.True(t, IsError(err, ErrAccountCollision))

	usk, err := DeriveUnifiedSpendingKey(testParams, testSeed(0x07), 0)
	require.NoError(t, err)
	ufvk, err := usk.FullViewingKey()
	require.NoError(t, err)
	ufvk.Transparent = nil

	imported, err := m.ImportViewOnly(ufvk, Birthday{
		Height:       200,
		RecoverUntil: fn.Some[uint32](250),
	}, PurposeViewOnly)
	require.NoError(t, err)

	acct, err := m.Account(imported)
	require.NoError(t, err)
	require.Equal(t, AccountImported, acct.Origin.Kind)
	require.False(t, acct.CanSpend())
	require.Equal(t, fn.Some(imported), m.AccountForUFVK(ufvk))
	require.Equal(t, fn.Some[uint32](250), m.RecoverUntil())
	require.Equal(t, fn.Some[uint32](100), m.WalletBirthday())

	// Without a transparent key the account gets shielded addresses only
	// and cannot reserve ephemeral addresses.
	rec, err := m.CurrentAddress(imported)
	require.NoError(t, err)
	require.Nil(t, rec.Address.Transparent)
	require.NotNil(t, rec.Address.Orchard)

	_, err = m.NextUnifiedAddress(imported, AllReceivers)
	require.True(t, IsError(err, ErrViewingKeyNotFound))
	_, err = m.ReserveEphemeral(imported, 1)
	require.True(t, IsError(err, ErrViewingKeyNotFound))

	ok, err := m.ValidateSeed(imported, testSeed(0x07))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestValidateSeed checks that only the seed of a derived account
// validates.
func TestValidateSeed(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)

	ok, err := m.ValidateSeed(id, testSeed(0x01))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.ValidateSeed(id, testSeed(0x02))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.ValidateSeed(id, []byte{1})
	require.True(t, IsError(err, ErrInvalidSeedLength))
}

// TestNextUnifiedAddress checks that addresses advance the diversifier
// cursor and are valid in every requested pool.
func TestNextUnifiedAddress(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)
	a, err := m.Account(id)
	require.NoError(t, err)

	var last *AddressRecord
	for i := 0; i < 8; i++ {
		rec, err := m.NextUnifiedAddress(id, AllReceivers)
		require.NoError(t, err)
		if last != nil {
			require.Equal(t, 1, rec.Index.Compare(last.Index))
		}

		for _, p := range shielded.Protocols {
			addr := rec.Address.Receiver(p)
			require.NotNil(t, addr)
			ivk := a.UFVK.FullViewingKey(p).IncomingViewingKey(
				shielded.External,
			)
			require.True(t, ivk.Owns(addr))
		}

		v, ok := rec.Index.Uint64()
		require.True(t, ok)
		taddr := EncodeP2PKH(testParams, rec.Address.Transparent)
		recv := m.FindAccountForTransparent(taddr)
		require.Equal(t, fn.Some(TransparentReceiver{
			Account:    id,
			Branch:     ExternalBranch,
			Index:      uint32(v),
			Address:    taddr,
			PubKeyHash: rec.Address.Transparent,
		}), recv)

		parsed, err := ParseUnifiedAddress(testParams, rec.Encoded)
		require.NoError(t, err)
		require.Equal(t, rec.Address, parsed)

		last = rec
	}

	cur, err := m.CurrentAddress(id)
	require.NoError(t, err)
	require.Equal(t, last, cur)

	recv, err := m.TransparentReceivers(id)
	require.NoError(t, err)
	require.Len(t, recv, 8)

	// Every receiver found by the scanning keys belongs to the account.
	owner := m.AccountForReceiver(last.Address.Orchard)
	require.True(t, owner.IsSome())
	require.Equal(t, id, owner.UnsafeFromSome().Account)
	require.Equal(t, shielded.External, owner.UnsafeFromSome().Scope)

	change, err := m.ChangeAddress(id, shielded.Sapling)
	require.NoError(t, err)
	owner = m.AccountForReceiver(change)
	require.Equal(t, shielded.Internal, owner.UnsafeFromSome().Scope)

	_, err = m.NextUnifiedAddress(id, ReceiverRequest{})
	require.True(t, IsError(err, ErrAddressGeneration))
}

// TestDiversifierExhaustion checks that the last diversifier index can be
// used once and then reports exhaustion.
func TestDiversifierExhaustion(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)
	orchardOnly := ReceiverRequest{Orchard: true}

	var last shielded.DiversifierIndex
	for i := range last {
		last[i] = 0xff
	}
	m.accounts[id].cursor = last

	// The largest index is past the transparent range.
	_, err := m.NextUnifiedAddress(id, ReceiverRequest{
		Orchard: true, Transparent: true,
	})
	require.True(t, IsError(err, ErrAddressGeneration), spew.Sdump(err))

	rec, err := m.NextUnifiedAddress(id, orchardOnly)
	require.NoError(t, err)
	require.Equal(t, last, rec.Index)

	_, err = m.NextUnifiedAddress(id, orchardOnly)
	require.True(t, IsError(err, ErrDiversifierSpaceExhausted),
		spew.Sdump(err))
}

// TestScanningKeys checks that every account contributes a key per pool
// and scope.
func TestScanningKeys(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	_, _, err := m.CreateAccount(testSeed(0x01), Birthday{})
	require.NoError(t, err)

	keys := m.ScanningKeys()
	require.Len(t, keys, 2*len(shielded.Protocols)*len(shielded.Scopes))
	require.Zero(t, keys[0].Account)
	require.Equal(t, uint32(1), keys[len(keys)-1].Account)
}
