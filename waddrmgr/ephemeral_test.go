package waddrmgr

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestEphemeralGapLimit reserves addresses up to the gap limit and checks
// that mining one of them moves the window.
func TestEphemeralGapLimit(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)

	reserved, err := m.ReserveEphemeral(id, GapLimit)
	require.NoError(t, err)
	require.Len(t, reserved, GapLimit)
	for i, e := range reserved {
		require.Equal(t, uint32(i), e.Index)
		recv := m.IsEphemeralAddress(e.Address)
		require.True(t, recv.IsSome(), e.Address)
		require.Equal(t, EphemeralBranch, recv.UnsafeFromSome().Branch)
	}

	_, err = m.ReserveEphemeral(id, 1)
	var gapErr *ReachedGapLimitError
	require.True(t, errors.As(err, &gapErr), spew.Sdump(err))
	require.Equal(t, &ReachedGapLimitError{
		Account: id, FirstUnsafe: GapLimit,
	}, gapErr)
	require.True(t, IsError(err, ErrReachedGapLimit))

	// Seen in an unmined transaction does not move the window.
	txid := chainhash.Hash{0x10}
	require.True(t, m.MarkEphemeralUsed(reserved[10].Address, txid,
		fn.None[uint32]()))
	_, err = m.ReserveEphemeral(id, 1)
	require.True(t, IsError(err, ErrReachedGapLimit))

	require.True(t, m.MarkEphemeralUsed(reserved[10].Address, txid,
		fn.Some[uint32](500)))

	// Indices up to 30 may now be reserved, and no more.
	more, err := m.ReserveEphemeral(id, 11)
	require.NoError(t, err)
	require.Equal(t, uint32(30), more[len(more)-1].Index)

	_, err = m.ReserveEphemeral(id, 1)
	require.True(t, errors.As(err, &gapErr))
	require.Equal(t, uint32(31), gapErr.FirstUnsafe)

	known, err := m.KnownEphemeral(id, fn.Some(IndexRange{Start: 10, End: 12}))
	require.NoError(t, err)
	require.Len(t, known, 2)
	require.Equal(t, fn.Some(txid), known[0].SeenIn)
	require.Equal(t, fn.Some[uint32](500), known[0].MinedHeight)

	all, err := m.KnownEphemeral(id, fn.None[IndexRange]())
	require.NoError(t, err)
	require.Len(t, all, 31)

	// A rewind below the mining height closes the window again.
	m.Truncate(499)
	_, err = m.ReserveEphemeral(id, 1)
	require.True(t, errors.As(err, &gapErr))
	require.Equal(t, uint32(GapLimit), gapErr.FirstUnsafe)

	// External receivers are not ephemeral.
	rec, err := m.NextUnifiedAddress(id, AllReceivers)
	require.NoError(t, err)
	taddr := EncodeP2PKH(testParams, rec.Address.Transparent)
	require.True(t, m.IsEphemeralAddress(taddr).IsNone())
	require.False(t, m.MarkEphemeralUsed(taddr, txid, fn.None[uint32]()))
}

// TestEphemeralProperty checks that the number of reserved addresses never
// passes the highest mined index plus the gap limit.
func TestEphemeralProperty(t *testing.T) {
	t.Parallel()

	m, id := newTestManager(t)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint32Range(0, 8).Draw(t, "reserve")
		before, err := m.KnownEphemeral(id, fn.None[IndexRange]())
		require.NoError(t, err)

		_, err = m.ReserveEphemeral(id, n)

		var unsafe uint32 = GapLimit
		for _, e := range before {
			if e.MinedHeight.IsSome() && e.Index+1+GapLimit > unsafe {
				unsafe = e.Index + 1 + GapLimit
			}
		}
		after, _ := m.KnownEphemeral(id, fn.None[IndexRange]())
		if uint32(len(before))+n > unsafe {
			require.True(t, IsError(err, ErrReachedGapLimit))
			require.Len(t, after, len(before))
		} else {
			require.NoError(t, err)
			require.Len(t, after, len(before)+int(n))
		}
		require.LessOrEqual(t, len(after), int(unsafe))

		if len(after) > 0 && rapid.Bool().Draw(t, "mine") {
			i := rapid.IntRange(0, len(after)-1).Draw(t, "index")
			m.MarkEphemeralUsed(after[i].Address, chainhash.Hash{1},
				fn.Some[uint32](1000))
		}
	})
}
