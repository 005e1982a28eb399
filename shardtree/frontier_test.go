package shardtree

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFrontierRoot checks the frontier root against a full recomputation.
func TestFrontierRoot(t *testing.T) {
	t.Parallel()

	h := testHasher{}
	for _, n := range []uint64{0, 1, 2, 3, 7, 8, 9, 64, 100} {
		f := frontierOf(t, h, n)
		require.Equal(t, n, f.Size())
		require.Equal(t, naiveRoot(h, n), f.Root(h), "size %d", n)
	}
}

// TestNewFrontierOmmerCount ensures a frontier must carry one ommer per set
// bit of its position.
func TestNewFrontierOmmerCount(t *testing.T) {
	t.Parallel()

	_, err := NewFrontier(5, Node{1}, []Node{{2}})
	require.True(t, IsError(err, ErrCorrupted))

	f, err := NewFrontier(5, Node{1}, []Node{{2}, {3}})
	require.NoError(t, err)
	require.Equal(t, uint64(6), f.Size())

	_, err = NewFrontier(MaxPosition, Node{1}, nil)
	require.True(t, IsError(err, ErrPositionOutOfRange))
}

// TestFrontierRebuild checks that a frontier rebuilt from its parts behaves
// like the original.
func TestFrontierRebuild(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		h := testHasher{}
		n := rapid.Uint64Range(1, 300).Draw(t, "n")

		f := &Frontier{}
		for pos := uint64(0); pos < n; pos++ {
			require.NoError(t, f.Append(h, leafValue(pos)))
		}

		pos := f.Position().UnwrapOr(0)
		rebuilt, err := NewFrontier(pos, f.Leaf(), f.Ommers())
		require.NoError(t, err)
		require.Equal(t, f.Root(h), rebuilt.Root(h))

		require.NoError(t, rebuilt.Append(h, leafValue(n)))
		require.Equal(t, naiveRoot(h, n+1), rebuilt.Root(h))
	})
}
