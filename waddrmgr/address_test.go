package waddrmgr

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/netparams"
)

// corruptLast replaces the last character of a bech32 string so that its
// checksum no longer matches.
func corruptLast(s string) string {
	c := "q"
	if strings.HasSuffix(s, c) {
		c = "p"
	}
	return s[:len(s)-1] + c
}

// TestUnifiedFullViewingKeyEncoding checks the string form of viewing keys
// and that it is bound to a network.
func TestUnifiedFullViewingKeyEncoding(t *testing.T) {
	t.Parallel()

	usk, err := DeriveUnifiedSpendingKey(testParams, testSeed(0x03), 5)
	require.NoError(t, err)
	ufvk, err := usk.FullViewingKey()
	require.NoError(t, err)

	s, err := ufvk.Encode(testParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, testParams.UnifiedFVKHRP+"1"), s)

	parsed, err := ParseUnifiedFullViewingKey(testParams, s)
	require.NoError(t, err)
	require.True(t, ufvk.Equal(parsed))

	// The parsed transparent key derives the same children.
	for _, branch := range []uint32{ExternalBranch, EphemeralBranch} {
		want, err := ufvk.TransparentPubKeyHash(branch, 3)
		require.NoError(t, err)
		got, err := parsed.TransparentPubKeyHash(branch, 3)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err = ParseUnifiedFullViewingKey(&netparams.MainNetParams, s)
	require.True(t, IsError(err, ErrWrongNet), err)

	_, err = ParseUnifiedFullViewingKey(testParams, corruptLast(s))
	require.True(t, IsError(err, ErrInvalidEncoding))

	// A key without a transparent part is a different key.
	shieldedOnly := *ufvk
	shieldedOnly.Transparent = nil
	require.False(t, ufvk.Equal(&shieldedOnly))
	s, err = shieldedOnly.Encode(testParams)
	require.NoError(t, err)
	parsed, err = ParseUnifiedFullViewingKey(testParams, s)
	require.NoError(t, err)
	require.Nil(t, parsed.Transparent)
	require.True(t, shieldedOnly.Equal(parsed))
}

// TestTransparentKeys checks that private and public derivation agree.
func TestTransparentKeys(t *testing.T) {
	t.Parallel()

	usk, err := DeriveUnifiedSpendingKey(testParams, testSeed(0x04), 0)
	require.NoError(t, err)
	ufvk, err := usk.FullViewingKey()
	require.NoError(t, err)

	priv, err := usk.TransparentPrivKey(ExternalBranch, 7)
	require.NoError(t, err)
	hash, err := ufvk.TransparentPubKeyHash(ExternalBranch, 7)
	require.NoError(t, err)
	require.Equal(t, hash160(priv.PubKey().SerializeCompressed()), hash)

	_, err = usk.TransparentPrivKey(ExternalBranch, 1<<31)
	require.True(t, IsError(err, ErrAddressGeneration))
}

// TestDecodeRecipient covers every address kind the wallet pays to.
func TestDecodeRecipient(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)
	rec, err := m.NextUnifiedAddress(id, AllReceivers)
	require.NoError(t, err)
	hash := rec.Address.Transparent

	tex, err := EncodeTEX(testParams, hash)
	require.NoError(t, err)

	testCases := []struct {
		name string
		addr string
		kind RecipientKind
		hash []byte
	}{
		{name: "unified", addr: rec.Encoded, kind: RecipientUnified},
		{name: "p2pkh", addr: EncodeP2PKH(testParams, hash),
			kind: RecipientP2PKH, hash: hash},
		{name: "p2sh", addr: EncodeP2SH(testParams, hash),
			kind: RecipientP2SH, hash: hash},
		{name: "tex", addr: tex, kind: RecipientTEX, hash: hash},
	}
	for _, tc := range testCases {
		r, err := DecodeRecipient(testParams, tc.addr)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.kind, r.Kind, tc.name)
		require.Equal(t, tc.addr, r.Encoded, tc.name)
		if tc.kind == RecipientUnified {
			require.Equal(t, rec.Address, r.Unified)
			require.False(t, r.IsTransparent())
			continue
		}
		require.Equal(t, tc.hash, r.Hash, tc.name)
		require.True(t, r.IsTransparent())

		script, err := r.PkScript(testParams)
		require.NoError(t, err, tc.name)
		class := txscript.GetScriptClass(script)
		if tc.kind == RecipientP2SH {
			require.Equal(t, txscript.ScriptHashTy, class)
		} else {
			require.Equal(t, txscript.PubKeyHashTy, class)
		}
	}

	mainTEX, err := EncodeTEX(&netparams.MainNetParams, hash)
	require.NoError(t, err)
	errCases := []struct {
		name string
		addr string
		code ErrorCode
	}{
		{name: "garbage", addr: "not an address", code: ErrInvalidEncoding},
		{name: "mainnet p2pkh",
			addr: EncodeP2PKH(&netparams.MainNetParams, hash),
			code: ErrWrongNet},
		{name: "mainnet tex", addr: mainTEX, code: ErrWrongNet},
		{name: "bad checksum",
			addr: corruptLast(rec.Encoded),
			code: ErrInvalidEncoding},
	}
	for _, tc := range errCases {
		_, err := DecodeRecipient(testParams, tc.addr)
		require.True(t, IsError(err, tc.code), "%s: %v", tc.name, err)
	}

	script, err := P2PKHScript(testParams, hash)
	require.NoError(t, err)
	require.True(t, bytes.Contains(script, hash))
}
