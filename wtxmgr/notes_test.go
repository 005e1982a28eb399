package wtxmgr

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"pgregory.net/rapid"
)

// TestInsertReceivedNoteMerge checks that re-inserting a note fills in
// missing fields without overwriting present ones.
func TestInsertReceivedNoteMerge(t *testing.T) {
	t.Parallel()

	s := New()
	full := testNote(t, shielded.Sapling, testTxID(1), 2, 1000, 7)

	partial := *full
	partial.Nullifier = fn.None[shielded.Nullifier]()
	partial.Position = fn.None[uint64]()
	require.NoError(t, s.InsertReceivedNote(&partial))

	got, ok := s.ReceivedNote(full.ID)
	require.True(t, ok)
	require.True(t, got.Position.IsNone())
	require.True(t, s.NoteByNullifier(
		shielded.Sapling, full.Nullifier.UnsafeFromSome(),
	).IsNone())

	change := *full
	change.IsChange = true
	require.NoError(t, s.InsertReceivedNote(&change))

	got, _ = s.ReceivedNote(full.ID)
	require.Equal(t, full.Position, got.Position)
	require.Equal(t, full.Nullifier, got.Nullifier)
	require.True(t, got.IsChange)
	require.Equal(t, fn.Some(full.ID), s.NoteByNullifier(
		shielded.Sapling, full.Nullifier.UnsafeFromSome(),
	))

	// A later partial observation removes nothing.
	require.NoError(t, s.InsertReceivedNote(&partial))
	again, _ := s.ReceivedNote(full.ID)
	require.Equal(t, got, again)

	// Immutable fields may not change.
	other := *full
	other.Note.Value++
	err := s.InsertReceivedNote(&other)
	require.True(t, IsError(err, ErrImmutableField), spew.Sdump(err))

	other = *full
	other.Account = 3
	err = s.InsertReceivedNote(&other)
	require.True(t, IsError(err, ErrImmutableField), spew.Sdump(err))

	// The id must name the pool of the note.
	other = *full
	other.ID.Protocol = shielded.Orchard
	err = s.InsertReceivedNote(&other)
	require.True(t, IsError(err, ErrInput), spew.Sdump(err))
}

// TestInsertMergeLaw checks insert(n); insert(n') == insert(merge(n, n')).
func TestInsertMergeLaw(t *testing.T) {
	t.Parallel()

	full := testNote(t, shielded.Orchard, testTxID(9), 0, 500, 3)
	memo, err := shielded.MemoFromText("hi")
	require.NoError(t, err)
	full.Memo = fn.Some(memo)

	drawPartial := func(t *rapid.T, label string) ReceivedNote {
		n := *full
		if rapid.Bool().Draw(t, label+" no nullifier") {
			n.Nullifier = fn.None[shielded.Nullifier]()
		}
		if rapid.Bool().Draw(t, label+" no position") {
			n.Position = fn.None[uint64]()
		}
		if rapid.Bool().Draw(t, label+" no scope") {
			n.Scope = fn.None[shielded.Scope]()
		}
		if rapid.Bool().Draw(t, label+" no memo") {
			n.Memo = fn.None[shielded.Memo]()
		}
		n.IsChange = rapid.Bool().Draw(t, label+" change")
		return n
	}

	rapid.Check(t, func(t *rapid.T) {
		a := drawPartial(t, "a")
		b := drawPartial(t, "b")

		seq := New()
		require.NoError(t, seq.InsertReceivedNote(&a))
		require.NoError(t, seq.InsertReceivedNote(&b))

		merged := a
		require.NoError(t, merged.merge(&b))
		once := New()
		require.NoError(t, once.InsertReceivedNote(&merged))

		require.Equal(t, once, seq)
	})
}

// TestSpentRule exercises the effective spend rule against the state of
// the spending transaction.
func TestSpentRule(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mined   bool
		expiry  fn.Option[uint32]
		tip     fn.Option[uint32]
		minConf uint32
		spent   bool
	}{{
		name:  "mined spend",
		mined: true,
		tip:   fn.Some[uint32](200),
		spent: true,
	}, {
		name:   "unmined without expiry",
		expiry: fn.Some[uint32](0),
		tip:    fn.Some[uint32](200),
		spent:  true,
	}, {
		name:  "unmined with unknown expiry",
		tip:   fn.Some[uint32](200),
		spent: true,
	}, {
		name:   "unmined and unexpired",
		expiry: fn.Some[uint32](201),
		tip:    fn.Some[uint32](200),
		spent:  true,
	}, {
		name:   "unmined and expired",
		expiry: fn.Some[uint32](200),
		tip:    fn.Some[uint32](200),
		spent:  false,
	}, {
		name:    "deeper summary height keeps the spend",
		expiry:  fn.Some[uint32](195),
		tip:     fn.Some[uint32](200),
		minConf: 10,
		spent:   true,
	}, {
		name:   "no tip",
		expiry: fn.Some[uint32](5),
		spent:  true,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := New()
			n := minedNote(t, s, shielded.Sapling, 1, 100, 1000, 0)

			spender := testTxID(2)
			if tc.mined {
				s.PutTxMeta(&spender, 150, 1)
			} else {
				s.PutTxPartial(
					&spender, fn.None[uint32](),
					fn.None[uint32](),
				)
				tc.expiry.WhenSome(func(e uint32) {
					s.PutTxData(&spender, nil, e,
						fn.None[unit.Zatoshi](),
						fn.None[uint32]())
				})
			}

			spent, err := s.IsSpent(n.ID, tc.tip, tc.minConf)
			require.NoError(t, err)
			require.False(t, spent)

			_, err = s.MarkSpentByNullifier(
				shielded.Sapling, n.Nullifier.UnsafeFromSome(),
				&spender,
			)
			require.NoError(t, err)

			spent, err = s.IsSpent(n.ID, tc.tip, tc.minConf)
			require.NoError(t, err)
			require.Equal(t, tc.spent, spent)
		})
	}
}

// TestSpendErrors checks the errors of spend recording.
func TestSpendErrors(t *testing.T) {
	t.Parallel()

	s := New()
	n := minedNote(t, s, shielded.Orchard, 1, 100, 1000, 0)
	spender := testTxID(2)

	_, err := s.MarkSpentByNullifier(
		shielded.Sapling, n.Nullifier.UnsafeFromSome(), &spender,
	)
	require.True(t, IsError(err, ErrNoteNotFound), spew.Sdump(err))

	err = s.MarkSpent(NoteID{TxID: spender}, &spender)
	require.True(t, IsError(err, ErrNoteNotFound), spew.Sdump(err))

	// The spending transaction was never recorded.
	require.NoError(t, s.MarkSpent(n.ID, &spender))
	_, err = s.IsSpent(n.ID, fn.None[uint32](), 0)
	require.True(t, IsError(err, ErrTxNotFound), spew.Sdump(err))
	require.Equal(t, fn.Some(spender), s.SpendingTx(n.ID))
}

// TestNullifierObservations checks the nullifier and locator maps.
func TestNullifierObservations(t *testing.T) {
	t.Parallel()

	s := New()
	nf := shielded.Nullifier{1, 2, 3}
	loc := Locator{Height: 120, TxIndex: 4}

	s.RecordNullifier(shielded.Orchard, nf, loc)
	require.Equal(t, fn.Some(loc), s.NullifierLocator(shielded.Orchard, nf))
	require.True(t, s.NullifierLocator(shielded.Sapling, nf).IsNone())
	require.Equal(t, 1, s.NullifierCount())

	a, b := testTxID(1), testTxID(2)
	require.NoError(t, s.InsertTxLocator(loc, &a))
	require.NoError(t, s.InsertTxLocator(loc, &a))
	err := s.InsertTxLocator(loc, &b)
	require.True(t, IsError(err, ErrConflictingTxLocator), spew.Sdump(err))
	require.Equal(t, fn.Some(a), s.TxIDAt(loc))
}

// TestTxEntries checks how transaction entries fill in.
func TestTxEntries(t *testing.T) {
	t.Parallel()

	s := New()
	txid := testTxID(1)

	err := s.SetTxStatus(&txid, StatusMined(5))
	require.True(t, IsError(err, ErrTxNotFound), spew.Sdump(err))
	require.Equal(t, TxUnknown, s.TxStatus(&txid).State)

	s.PutTxPartial(&txid, fn.None[uint32](), fn.Some[uint32](90))
	require.Equal(t, StatusMined(90), s.TxStatus(&txid))

	// A partial observation never overrides a mined transaction.
	s.PutTxPartial(&txid, fn.None[uint32](), fn.None[uint32]())
	require.Equal(t, StatusMined(90), s.TxStatus(&txid))

	s.PutTxData(&txid, []byte{1, 2}, 130, fn.Some(unit.Zatoshi(10000)),
		fn.Some[uint32](90))
	e, ok := s.Tx(&txid)
	require.True(t, ok)
	require.Equal(t, fn.Some[uint32](130), e.Expiry)
	require.Equal(t, fn.Some(unit.Zatoshi(10000)), e.Fee)
	require.Equal(t, []byte{1, 2}, e.Raw)

	require.NoError(t, s.SetTxStatus(&txid, StatusNotMined))
	e, _ = s.Tx(&txid)
	require.True(t, e.Block.IsNone())
	require.False(t, e.IsMinedOrUnexpiredAt(130))
	require.True(t, e.IsMinedOrUnexpiredAt(129))

	require.Equal(t, uint32(191), SummaryHeight(200, 10))
	require.Equal(t, uint32(200), SummaryHeight(200, 0))
	require.Equal(t, uint32(0), SummaryHeight(3, 10))
}
