package shardtree

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testHasher is a sha256 based hasher for exercising the tree without a
// pool specific hash.
type testHasher struct{}

func (testHasher) Combine(level uint8, left, right Node) Node {
	h := sha256.New()
	h.Write([]byte{level})
	h.Write(left[:])
	h.Write(right[:])

	var n Node
	copy(n[:], h.Sum(nil))
	return n
}

func (testHasher) EmptyLeaf() Node {
	return Node{0xee}
}

// leafValue returns a distinct leaf value for pos.
func leafValue(pos uint64) Node {
	var n Node
	binary.LittleEndian.PutUint64(n[:], pos+1)
	n[31] = 0x5a
	return n
}

// leaves returns n leaves beginning at start, marking those in marked.
func leaves(start, n uint64, marked ...uint64) []Leaf {
	isMarked := make(map[uint64]bool, len(marked))
	for _, m := range marked {
		isMarked[m] = true
	}

	ls := make([]Leaf, 0, n)
	for pos := start; pos < start+n; pos++ {
		l := Leaf{Value: leafValue(pos)}
		if isMarked[pos] {
			l.Retention = RetentionMarked
		}
		ls = append(ls, l)
	}

	return ls
}

// naiveRoot computes the root of a tree holding the first n leaves by
// hashing every level.
func naiveRoot(h Hasher, n uint64) Node {
	empty := EmptyRoots(h)
	level := make([]Node, 0, n)
	for pos := uint64(0); pos < n; pos++ {
		level = append(level, leafValue(pos))
	}

	for l := uint8(0); l < Depth; l++ {
		next := make([]Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := empty[l]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, h.Combine(l, level[i], right))
		}
		if len(next) == 0 {
			return empty[Depth]
		}
		level = next
	}

	return level[0]
}

// frontierOf returns the frontier of a tree holding the first n leaves.
func frontierOf(t *testing.T, h Hasher, n uint64) *Frontier {
	t.Helper()

	f := &Frontier{}
	for pos := uint64(0); pos < n; pos++ {
		require.NoError(t, f.Append(h, leafValue(pos)))
	}

	return f
}

// lastPos returns the checkpoint position of a tree holding n leaves.
func lastPos(n uint64) fn.Option[uint64] {
	if n == 0 {
		return fn.None[uint64]()
	}
	return fn.Some(n - 1)
}
