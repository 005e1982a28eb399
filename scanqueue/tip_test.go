package scanqueue

import (
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestTipEntries covers the chain tip update cases.
func TestTipEntries(t *testing.T) {
	t.Parallel()

	some := fn.Some[uint32]
	none := fn.None[uint32]()

	tests := []struct {
		name string
		p    TipParams
		want []Range
	}{{
		name: "nothing scanned, no birthday",
		p: TipParams{
			Tip: 500, MaxScanned: none, Birthday: none,
			ShardEnd: none, SaplingActivation: 100,
		},
		want: []Range{r(100, 501, Ignored)},
	}, {
		name: "nothing scanned",
		p: TipParams{
			Tip: 500, MaxScanned: none, Birthday: some(300),
			ShardEnd: none,
		},
		want: []Range{r(300, 501, Historic)},
	}, {
		name: "tip shard starts at the later of shard end and birthday",
		p: TipParams{
			Tip: 500, MaxScanned: none, Birthday: some(300),
			ShardEnd: some(200),
		},
		want: []Range{r(300, 501, ChainTip), r(300, 501, Historic)},
	}, {
		name: "tip shard from the shard end",
		p: TipParams{
			Tip: 500, MaxScanned: some(450), Birthday: some(300),
			ShardEnd: some(480),
		},
		want: []Range{r(480, 501, ChainTip), r(451, 501, ChainTip)},
	}, {
		name: "steady state",
		p: TipParams{
			Tip: 500, MaxScanned: some(401), Birthday: some(300),
			ShardEnd: none,
		},
		want: []Range{r(402, 501, ChainTip)},
	}, {
		name: "fell behind by the pruning depth",
		p: TipParams{
			Tip: 500, MaxScanned: some(400), Birthday: some(300),
			ShardEnd: none,
		},
		want: []Range{r(401, 501, Historic)},
	}, {
		name: "fell far behind",
		p: TipParams{
			Tip: 1000, MaxScanned: some(400), Birthday: some(300),
			ShardEnd: none,
		},
		want: []Range{r(401, 411, Verify), r(411, 1001, Historic)},
	}, {
		name: "verify range is capped by the pruning depth",
		p: TipParams{
			Tip: 505, MaxScanned: some(400), Birthday: some(300),
			ShardEnd: none,
		},
		want: []Range{r(401, 406, Verify), r(406, 506, Historic)},
	}, {
		name: "already at the tip",
		p: TipParams{
			Tip: 500, MaxScanned: some(500), Birthday: some(300),
			ShardEnd: some(501),
		},
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, test.want, TipEntries(test.p))
		})
	}
}

// TestUpdateTipAfterScan walks a wallet through a scan and a tip that moves
// far ahead.
func TestUpdateTipAfterScan(t *testing.T) {
	t.Parallel()

	q := New()
	params := TipParams{
		Tip: 200, Birthday: fn.Some(uint32(100)),
		ShardEnd: fn.None[uint32](),
	}
	q.UpdateTip(params)
	require.Equal(t, []Range{r(100, 201, Historic)}, q.Ranges())

	q.MarkScanned(100, 201)
	params.MaxScanned = q.MaxScanned()
	params.Tip = 210
	q.UpdateTip(params)
	require.Equal(t, []Range{r(100, 201, Scanned), r(201, 211, ChainTip)},
		q.Ranges())

	q.MarkScanned(201, 211)
	params.MaxScanned = q.MaxScanned()
	params.Tip = 1000
	q.UpdateTip(params)
	require.Equal(t, []Range{
		r(100, 211, Scanned), r(211, 221, Verify),
		r(221, 1001, Historic),
	}, q.Ranges())
	require.Equal(t, r(211, 221, Verify), q.SuggestNext(Historic)[0])
}

// TestUpdateTipCoverage checks that after any sequence of tip updates and
// scans the queue covers every height from the birthday to the tip.
func TestUpdateTipCoverage(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		birthday := rapid.Uint32Range(0, 1000).Draw(t, "birthday")
		tip := birthday + rapid.Uint32Range(0, 50).Draw(t, "tip")

		q := New()
		params := TipParams{
			Tip: tip, Birthday: fn.Some(birthday),
			ShardEnd: fn.None[uint32](),
		}
		q.UpdateTip(params)

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "scan") {
				suggested := q.SuggestNext(Historic)
				if len(suggested) > 0 {
					next := suggested[0]
					end := next.Start + rapid.Uint32Range(
						1, next.Len(),
					).Draw(t, "n")
					q.MarkScanned(next.Start, end)
				}
			} else {
				tip += rapid.Uint32Range(0, 300).Draw(t, "advance")
				params.Tip = tip
				params.MaxScanned = q.MaxScanned()
				if rapid.Bool().Draw(t, "shard") {
					params.ShardEnd = fn.Some(
						rapid.Uint32Range(0, tip).Draw(t, "end"),
					)
				}
				q.UpdateTip(params)
			}

			checkWellFormed(t, q)
			require.Equal(t, fn.Some(birthday), q.Start())
			require.Equal(t, fn.Some(tip+1), q.End())
		}
	})
}
