package wtxmgr

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"pgregory.net/rapid"
)

func noteIDs(notes []SpendableNote) []NoteID {
	ids := make([]NoteID, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	return ids
}

// TestSelectSpendable covers the eligibility rules and the selection
// prefix.
func TestSelectSpendable(t *testing.T) {
	t.Parallel()

	s := New()
	a := minedNote(t, s, shielded.Sapling, 1, 101, 50000, 0)
	b := minedNote(t, s, shielded.Orchard, 2, 102, 50000, 0)
	c := minedNote(t, s, shielded.Sapling, 3, 103, 30000, 1)

	params := func(target uint64, anchor uint32) *SelectParams {
		return &SelectParams{
			Target:    unit.Zatoshi(target),
			Protocols: shielded.Protocols,
			Anchor:    anchor,
			Tip:       fn.Some[uint32](103),
		}
	}
	all := witnessChecker{}

	// Only the note at 101 is at or below the anchor.
	_, err := s.SelectSpendable(params(80000, 101), all)
	var insufficient *InsufficientFundsError
	require.True(t, errors.As(err, &insufficient), spew.Sdump(err))
	require.Equal(t, &InsufficientFundsError{
		Available: 50000, Required: 80000,
	}, insufficient)
	require.True(t, IsError(err, ErrInsufficientFunds))

	// Oldest first; the prefix stops once the total exceeds the target.
	sel, err := s.SelectSpendable(params(40000, 103), all)
	require.NoError(t, err)
	require.Equal(t, []NoteID{a.ID}, noteIDs(sel))

	sel, err = s.SelectSpendable(params(80000, 103), all)
	require.NoError(t, err)
	require.Equal(t, []NoteID{a.ID, b.ID}, noteIDs(sel))

	// Pools outside the requested set are ignored.
	p := params(60000, 103)
	p.Protocols = []shielded.Protocol{shielded.Sapling}
	sel, err = s.SelectSpendable(p, all)
	require.NoError(t, err)
	require.Equal(t, []NoteID{a.ID, c.ID}, noteIDs(sel))

	// Excluded notes and notes without a witness are skipped.
	p = params(10000, 103)
	p.Exclude = []NoteID{a.ID}
	sel, err = s.SelectSpendable(p, witnessChecker{
		unreachable: map[uint64]bool{0: true},
	})
	require.NoError(t, err)
	require.Equal(t, []NoteID{c.ID}, noteIDs(sel))

	// Another account sees nothing.
	p = params(1, 103)
	p.Account = 1
	_, err = s.SelectSpendable(p, all)
	require.True(t, IsError(err, ErrInsufficientFunds), spew.Sdump(err))

	// A pending spend locks the note until its transaction expires.
	spender := testTxID(50)
	s.PutTxData(&spender, nil, 110, fn.None[unit.Zatoshi](),
		fn.Some[uint32](104))
	require.NoError(t, s.MarkSpent(a.ID, &spender))

	sel, err = s.SelectSpendable(params(10000, 103), all)
	require.NoError(t, err)
	require.Equal(t, []NoteID{b.ID}, noteIDs(sel))

	p = params(10000, 103)
	p.Tip = fn.Some[uint32](110)
	sel, err = s.SelectSpendable(p, all)
	require.NoError(t, err)
	require.Equal(t, []NoteID{a.ID}, noteIDs(sel))

	// A note without a nullifier cannot be spent.
	d := testNote(t, shielded.Orchard, testTxID(4), 0, 90000, 1)
	d.Nullifier = fn.None[shielded.Nullifier]()
	s.PutTxMeta(&d.ID.TxID, 100, 0)
	require.NoError(t, s.InsertReceivedNote(d))
	sel, err = s.EligibleNotes(params(0, 103), all)
	require.NoError(t, err)
	require.NotContains(t, noteIDs(sel), d.ID)
}

// TestSelectSpendableProperty checks that selection covers the target
// whenever the eligible notes can, and otherwise reports the eligible total.
func TestSelectSpendableProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		s := New()
		anchor := rapid.Uint32Range(100, 120).Draw(t, "anchor")
		unreachable := make(map[uint64]bool)

		var (
			eligible   unit.Zatoshi
			eligibleID = make(map[NoteID]bool)
		)
		num := rapid.IntRange(0, 12).Draw(t, "notes")
		for i := 0; i < num; i++ {
			p := rapid.SampledFrom(shielded.Protocols).Draw(t, "pool")
			height := rapid.Uint32Range(95, 125).Draw(t, "height")
			value := rapid.Uint64Range(1, 100000).Draw(t, "value")
			pos := uint64(i)

			n := minedNote(t, s, p, uint32(i), height, value, pos)

			spent := rapid.Bool().Draw(t, "spent")
			if spent {
				spender := testTxID(uint32(1000 + i))
				s.PutTxMeta(&spender, 99, 0)
				require.NoError(t, s.MarkSpent(n.ID, &spender))
			}
			unreachable[pos] = rapid.Bool().Draw(t, "unreachable")

			if height <= anchor && !spent && !unreachable[pos] {
				eligible += unit.Zatoshi(value)
				eligibleID[n.ID] = true
			}
		}

		target := unit.Zatoshi(
			rapid.Uint64Range(0, 600000).Draw(t, "target"),
		)
		sel, err := s.SelectSpendable(&SelectParams{
			Target:    target,
			Protocols: shielded.Protocols,
			Anchor:    anchor,
			Tip:       fn.Some(anchor),
		}, witnessChecker{unreachable: unreachable})

		if eligible < target {
			var e *InsufficientFundsError
			require.True(t, errors.As(err, &e), spew.Sdump(err))
			require.Equal(t, eligible, e.Available)
			require.Equal(t, target, e.Required)
			return
		}

		require.NoError(t, err)
		var total unit.Zatoshi
		for _, n := range sel {
			require.True(t, eligibleID[n.ID], n.ID.String())
			total += n.Value()
		}
		require.GreaterOrEqual(t, total, target)
	})
}

// TestEligibleNotesPoolOrder checks that notes of one transaction are
// ordered by pool before tree position.
func TestEligibleNotesPoolOrder(t *testing.T) {
	t.Parallel()

	s := New()
	orchard := minedNote(t, s, shielded.Orchard, 1, 101, 20000, 0)
	sapling := minedNote(t, s, shielded.Sapling, 1, 101, 20000, 5)
	later := minedNote(t, s, shielded.Sapling, 2, 102, 20000, 1)

	notes, err := s.EligibleNotes(&SelectParams{
		Protocols: shielded.Protocols,
		Anchor:    102,
		Tip:       fn.Some[uint32](102),
	}, witnessChecker{})
	require.NoError(t, err)
	require.Equal(t, []NoteID{sapling.ID, orchard.ID, later.ID},
		noteIDs(notes))
}
