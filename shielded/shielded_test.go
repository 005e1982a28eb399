package shielded

import (
	"bytes"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
)

var testSeed = bytes.Repeat([]byte{0x42}, 32)

func testKeys(t *testing.T, p Protocol, account uint32) (*SpendingKey,
	*FullViewingKey) {

	t.Helper()

	sk, err := DeriveSpendingKey(p, testSeed, 133, account)
	require.NoError(t, err)

	return sk, sk.FullViewingKey()
}

func testNote(t *testing.T, fvk *FullViewingKey, scope Scope,
	value uint64) *Note {

	t.Helper()

	addr, _, err := fvk.IncomingViewingKey(scope).FindAddress(
		NewDiversifierIndex(0),
	)
	require.NoError(t, err)

	rseed, err := NewRseed()
	require.NoError(t, err)

	n := &Note{
		Protocol:  fvk.Protocol,
		Recipient: *addr,
		Value:     unit.Zatoshi(value),
		Rseed:     rseed,
	}
	if fvk.Protocol == Orchard {
		n.Rho = [32]byte{0x99}
	}

	return n
}

// TestKeyDerivation checks that keys are deterministic and separated by
// account, pool and scope.
func TestKeyDerivation(t *testing.T) {
	t.Parallel()

	for _, p := range Protocols {
		_, a := testKeys(t, p, 0)
		_, b := testKeys(t, p, 0)
		_, c := testKeys(t, p, 1)
		require.Equal(t, a, b)
		require.NotEqual(t, a.Bytes(), c.Bytes())

		ext := a.IncomingViewingKey(External)
		in := a.IncomingViewingKey(Internal)
		require.NotEqual(t, ext.Ivk, in.Ivk)
		require.Equal(t, a.Ak, a.Scoped(Internal).Ak)

		parsed, err := ParseFullViewingKey(p, a.Bytes())
		require.NoError(t, err)
		require.Equal(t, a, parsed)
	}

	_, sapling := testKeys(t, Sapling, 0)
	_, orchard := testKeys(t, Orchard, 0)
	require.NotEqual(t, sapling.Nk, orchard.Nk)

	_, err := ParseFullViewingKey(Sapling, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = DeriveSpendingKey(Protocol(7), testSeed, 133, 0)
	require.ErrorIs(t, err, ErrUnknownProtocol)
}

// TestDiversifiedAddresses checks address derivation and ownership.
func TestDiversifiedAddresses(t *testing.T) {
	t.Parallel()

	_, fvk := testKeys(t, Sapling, 0)
	ivk := fvk.IncomingViewingKey(External)

	seen := make(map[Diversifier]bool)
	idx := NewDiversifierIndex(0)
	var invalid int
	for i := 0; i < 64; i++ {
		addr, err := ivk.Address(idx)
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidDiversifier)
			invalid++
		} else {
			require.True(t, ivk.Owns(addr))
			require.False(t, seen[addr.Diversifier])
			seen[addr.Diversifier] = true

			parsed, err := ParsePaymentAddress(Sapling, addr.Bytes())
			require.NoError(t, err)
			require.True(t, parsed.Equal(addr))
		}
		require.NoError(t, idx.Increment())
	}

	// Roughly half of the Sapling diversifiers are unusable.
	require.Greater(t, invalid, 0)
	require.Greater(t, len(seen), 0)

	// The internal key does not own external addresses.
	addr, _, err := ivk.FindAddress(NewDiversifierIndex(0))
	require.NoError(t, err)
	require.False(t, fvk.IncomingViewingKey(Internal).Owns(addr))

	// Every Orchard diversifier is valid.
	_, ofvk := testKeys(t, Orchard, 0)
	oivk := ofvk.IncomingViewingKey(External)
	for i := uint64(0); i < 16; i++ {
		_, err := oivk.Address(NewDiversifierIndex(i))
		require.NoError(t, err)
	}
}

// TestDiversifierIndex checks the index arithmetic.
func TestDiversifierIndex(t *testing.T) {
	t.Parallel()

	idx := NewDiversifierIndex(0xff)
	require.NoError(t, idx.Increment())
	v, ok := idx.Uint64()
	require.True(t, ok)
	require.Equal(t, uint64(0x100), v)
	require.Equal(t, 1, idx.Compare(NewDiversifierIndex(0xff)))

	var max DiversifierIndex
	for i := range max {
		max[i] = 0xff
	}
	before := max
	require.ErrorIs(t, max.Increment(), ErrDiversifierIndexOverflow)
	require.Equal(t, before, max)

	_, ok = max.Uint64()
	require.False(t, ok)
}

// TestNoteEncryption round trips notes through both pools.
func TestNoteEncryption(t *testing.T) {
	t.Parallel()

	for _, p := range Protocols {
		t.Run(p.String(), func(t *testing.T) {
			_, fvk := testKeys(t, p, 0)
			_, other := testKeys(t, p, 1)
			note := testNote(t, fvk, External, 60_000)
			memo, err := MemoFromText("thanks")
			require.NoError(t, err)

			ovk := fvk.OutgoingViewingKey(External)
			out, err := EncryptNote(note, memo, fn.Some(ovk))
			require.NoError(t, err)
			require.Equal(t, note.Commitment(), out.Cmu)

			compact := out.Compact()
			ivk := fvk.IncomingViewingKey(External)
			got, ok := ivk.DecryptCompact(&compact, note.Rho)
			require.True(t, ok)
			require.True(t, got.Equal(note))

			got, gotMemo, ok := ivk.Decrypt(out, note.Rho)
			require.True(t, ok)
			require.True(t, got.Equal(note))
			text, ok := gotMemo.Text()
			require.True(t, ok)
			require.Equal(t, "thanks", text)

			// Other keys and scopes cannot decrypt it.
			_, ok = other.IncomingViewingKey(External).DecryptCompact(
				&compact, note.Rho,
			)
			require.False(t, ok)
			_, ok = fvk.IncomingViewingKey(Internal).DecryptCompact(
				&compact, note.Rho,
			)
			require.False(t, ok)

			// The sender recovers the note with the outgoing key.
			got, gotMemo, ok = RecoverOutput(p, ovk, out, note.Rho)
			require.True(t, ok)
			require.True(t, got.Equal(note))
			require.Equal(t, memo, gotMemo)

			_, _, ok = RecoverOutput(
				p, other.OutgoingViewingKey(External), out,
				note.Rho,
			)
			require.False(t, ok)

			// A tampered commitment is rejected.
			compact.Cmu[0] ^= 1
			_, ok = ivk.DecryptCompact(&compact, note.Rho)
			require.False(t, ok)
		})
	}
}

// TestNullifiers checks nullifier derivation rules per pool.
func TestNullifiers(t *testing.T) {
	t.Parallel()

	_, sfvk := testKeys(t, Sapling, 0)
	sn := testNote(t, sfvk, External, 1000)
	require.NotEqual(t, sfvk.Nullifier(sn, 1), sfvk.Nullifier(sn, 2))
	require.NotEqual(t,
		sfvk.Nullifier(sn, 1), sfvk.Scoped(Internal).Nullifier(sn, 1),
	)

	_, ofvk := testKeys(t, Orchard, 0)
	on := testNote(t, ofvk, External, 1000)
	require.Equal(t, ofvk.Nullifier(on, 1), ofvk.Nullifier(on, 2))

	on2 := *on
	on2.Rho = [32]byte{0x01}
	require.NotEqual(t, ofvk.Nullifier(on, 0), ofvk.Nullifier(&on2, 0))
}

// TestSpendAuthorization checks signing and verification.
func TestSpendAuthorization(t *testing.T) {
	t.Parallel()

	sk, fvk := testKeys(t, Orchard, 0)
	_, other := testKeys(t, Orchard, 1)
	sighash := [32]byte{1, 2, 3}

	sig, err := sk.SignSpend(sighash)
	require.NoError(t, err)
	require.Len(t, sig, SpendAuthSigSize)
	require.NoError(t, fvk.VerifySpend(sighash, sig))
	require.ErrorIs(t, other.VerifySpend(sighash, sig), ErrInvalidSignature)
	require.ErrorIs(t,
		fvk.VerifySpend([32]byte{9}, sig), ErrInvalidSignature,
	)
}

// TestMemo checks memo construction.
func TestMemo(t *testing.T) {
	t.Parallel()

	m, err := MemoFromText("")
	require.NoError(t, err)
	require.True(t, m.IsEmpty())
	_, ok := m.Text()
	require.False(t, ok)

	_, err = MemoFromText(string(bytes.Repeat([]byte{'a'}, MemoSize+1)))
	require.Error(t, err)

	_, err = MemoFromText(string([]byte{0xff, 0xfe}))
	require.Error(t, err)
}

// TestHashers checks that the pool hashers are distinct.
func TestHashers(t *testing.T) {
	t.Parallel()

	s, o := HasherFor(Sapling), HasherFor(Orchard)
	require.NotEqual(t, s.EmptyLeaf(), o.EmptyLeaf())
	require.NotEqual(t,
		s.Combine(0, s.EmptyLeaf(), s.EmptyLeaf()),
		o.Combine(0, s.EmptyLeaf(), s.EmptyLeaf()),
	)
	require.NotEqual(t,
		s.Combine(0, s.EmptyLeaf(), s.EmptyLeaf()),
		s.Combine(1, s.EmptyLeaf(), s.EmptyLeaf()),
	)
}
