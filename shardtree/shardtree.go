// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import (
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultMaxCheckpoints is the number of checkpoints a tree retains before
// evicting the oldest. It matches the depth below the chain tip at which the
// wallet stops expecting reorgs.
const DefaultMaxCheckpoints = 100

// Leaf is a commitment to append along with its retention.
type Leaf struct {
	Value     Node
	Retention Retention
}

// SubtreeRoot is the root of a complete shard together with the height of
// the block that completed it.
type SubtreeRoot struct {
	Root      Node
	EndHeight uint32
}

// Checkpoint pins the tree frontier as of a block height. A checkpoint
// without a position was taken while the tree was empty.
type Checkpoint struct {
	ID       uint32
	Position fn.Option[uint64]

	// MarksRemoved lists the positions whose marks were released as of
	// this checkpoint. The marks stay in place until the checkpoint is
	// evicted so that rewinding past it restores them.
	MarksRemoved []uint64
}

// limit returns one past the last position covered by the checkpoint.
func (c *Checkpoint) limit() uint64 {
	return fn.MapOptionZ(c.Position, func(p uint64) uint64 {
		return p + 1
	})
}

func (c *Checkpoint) clone() *Checkpoint {
	cc := *c
	cc.MarksRemoved = append([]uint64(nil), c.MarksRemoved...)
	return &cc
}

// ShardTree is a prunable note commitment tree of fixed depth. Only the
// leaves the wallet tracks, the paths to retained checkpoints, and the roots
// of everything else are kept in memory.
//
// ShardTree is not safe for concurrent mutation. Callers serialise writers
// and may take a Clone to stage changes.
type ShardTree struct {
	hasher     Hasher
	emptyRoots [Depth + 1]Node

	root *tree

	checkpoints    map[uint32]*Checkpoint
	ckptRefs       map[uint64]int
	maxCheckpoints int

	// subtreeEnds maps a shard index to the height of the block that
	// completed the shard, as reported by a trusted source.
	subtreeEnds map[uint64]uint32
}

// New returns an empty tree that retains at most maxCheckpoints checkpoints.
// A non-positive value selects DefaultMaxCheckpoints.
func New(h Hasher, maxCheckpoints int) *ShardTree {
	if maxCheckpoints <= 0 {
		maxCheckpoints = DefaultMaxCheckpoints
	}

	return &ShardTree{
		hasher:         h,
		emptyRoots:     EmptyRoots(h),
		checkpoints:    make(map[uint32]*Checkpoint),
		ckptRefs:       make(map[uint64]int),
		maxCheckpoints: maxCheckpoints,
		subtreeEnds:    make(map[uint64]uint32),
	}
}

// Hasher returns the hasher the tree was built with.
func (s *ShardTree) Hasher() Hasher {
	return s.hasher
}

// Clone returns a deep copy of the tree.
func (s *ShardTree) Clone() *ShardTree {
	c := &ShardTree{
		hasher:         s.hasher,
		emptyRoots:     s.emptyRoots,
		root:           s.root.clone(),
		checkpoints:    make(map[uint32]*Checkpoint, len(s.checkpoints)),
		ckptRefs:       make(map[uint64]int, len(s.ckptRefs)),
		maxCheckpoints: s.maxCheckpoints,
		subtreeEnds:    make(map[uint64]uint32, len(s.subtreeEnds)),
	}
	for id, cp := range s.checkpoints {
		c.checkpoints[id] = cp.clone()
	}
	for pos, n := range s.ckptRefs {
		c.ckptRefs[pos] = n
	}
	for idx, h := range s.subtreeEnds {
		c.subtreeEnds[idx] = h
	}

	return c
}

// hasDataAt reports whether the leaf at pos is present, either directly or
// as part of a pruned subtree.
func (s *ShardTree) hasDataAt(pos uint64) bool {
	n, _ := find(s.root, rootAddr, LeafAddress(pos))
	return n != nil && n.kind == leafNode
}

// MaxLeafPosition returns the largest position the tree holds data for.
func (s *ShardTree) MaxLeafPosition() fn.Option[uint64] {
	pos, ok := maxLeaf(s.root, rootAddr)
	if !ok {
		return fn.None[uint64]()
	}
	return fn.Some(pos)
}

// InsertFrontier seeds the tree with the frontier of a prior chain state
// and checkpoints it under id. The leaf is kept with the given retention;
// the ommers are stored as pruned subtrees.
func (s *ShardTree) InsertFrontier(f *Frontier, id uint32,
	retention Retention) error {

	if f.IsEmpty() {
		return s.AddCheckpoint(id, fn.None[uint64]())
	}

	root := s.root.clone()
	root, err := s.insert(
		root, rootAddr, LeafAddress(f.position),
		newLeaf(f.leaf, retention),
	)
	if err != nil {
		return err
	}
	for i, addr := range f.ommerAddresses() {
		root, err = s.insert(
			root, rootAddr, addr, newLeaf(f.ommers[i], 0),
		)
		if err != nil {
			return err
		}
	}
	s.root = root

	log.Tracef("Inserted frontier at position %d as of checkpoint %d",
		f.position, id)

	return s.AddCheckpoint(id, fn.Some(f.position))
}

// BatchInsert places leaves at consecutive positions beginning at start.
// The leaf before start must already be known. Re-inserting a leaf with the
// same value only merges its retention; a different value is an
// insertion conflict. The tree is unchanged on error.
func (s *ShardTree) BatchInsert(start uint64, leaves []Leaf) error {
	if len(leaves) == 0 {
		return nil
	}
	end := start + uint64(len(leaves))
	if end > MaxPosition {
		return treeError(ErrPositionOutOfRange,
			fmt.Sprintf("batch [%d, %d) exceeds tree capacity",
				start, end), nil)
	}
	if start > 0 && !s.hasDataAt(start-1) {
		return treeError(ErrNonContiguous,
			fmt.Sprintf("no leaf precedes batch start %d", start), nil)
	}

	root := s.root.clone()
	for i, l := range leaves {
		pos := start + uint64(i)
		if s.ckptRefs[pos] > 0 {
			l.Retention |= RetentionCheckpoint
		}

		var err error
		root, err = s.insert(
			root, rootAddr, LeafAddress(pos),
			newLeaf(l.Value, l.Retention),
		)
		if err != nil {
			return err
		}
	}
	s.root = root

	return nil
}

// AddCheckpoint records a checkpoint at pos under id. Adding the same
// checkpoint twice is a no-op. Once more than the configured number of
// checkpoints exist, the oldest are evicted and the tree is pruned.
func (s *ShardTree) AddCheckpoint(id uint32, pos fn.Option[uint64]) error {
	if cp, ok := s.checkpoints[id]; ok {
		if cp.Position != pos {
			return treeError(ErrCheckpointConflict,
				fmt.Sprintf("checkpoint %d already exists at %v",
					id, cp.Position), nil)
		}
		return nil
	}

	if pos.IsSome() {
		p := pos.UnsafeFromSome()
		if !s.hasDataAt(p) {
			return treeError(ErrNotReachable,
				fmt.Sprintf("checkpoint %d at unknown position %d",
					id, p), nil)
		}
		s.ckptRefs[p]++
		setFlags(s.root, rootAddr, p, func(r Retention) Retention {
			return r | RetentionCheckpoint
		})
	}
	s.checkpoints[id] = &Checkpoint{ID: id, Position: pos}

	for len(s.checkpoints) > s.maxCheckpoints {
		s.evictOldest()
	}
	s.root = s.prune(s.root, rootAddr)

	return nil
}

// evictOldest drops the lowest checkpoint, releasing its retention and
// applying the mark removals recorded against it.
func (s *ShardTree) evictOldest() {
	oldest := s.MinCheckpointID()
	if oldest.IsNone() {
		return
	}
	minID := oldest.UnsafeFromSome()
	cp := s.checkpoints[minID]
	delete(s.checkpoints, minID)

	cp.Position.WhenSome(func(p uint64) {
		s.releaseCheckpointRef(p)
	})
	for _, p := range cp.MarksRemoved {
		setFlags(s.root, rootAddr, p, func(r Retention) Retention {
			return r &^ RetentionMarked
		})
	}

	log.Tracef("Evicted checkpoint %d", minID)
}

func (s *ShardTree) releaseCheckpointRef(p uint64) {
	s.ckptRefs[p]--
	if s.ckptRefs[p] > 0 {
		return
	}
	delete(s.ckptRefs, p)
	setFlags(s.root, rootAddr, p, func(r Retention) Retention {
		return r &^ RetentionCheckpoint
	})
}

// RemoveMark releases the mark on the leaf at pos. When asOf names a
// retained checkpoint the release is deferred until that checkpoint is
// evicted, so a rewind to an earlier checkpoint brings the mark back. It
// reports whether the leaf was marked.
func (s *ShardTree) RemoveMark(pos uint64, asOf fn.Option[uint32]) bool {
	n, at := find(s.root, rootAddr, LeafAddress(pos))
	if n == nil || at.Level != 0 || !n.flags.IsMarked() {
		return false
	}

	if asOf.IsSome() {
		if cp, ok := s.checkpoints[asOf.UnsafeFromSome()]; ok {
			cp.MarksRemoved = append(cp.MarksRemoved, pos)
			return true
		}
	}

	n.flags &^= RetentionMarked
	s.root = s.prune(s.root, rootAddr)

	return true
}

// Checkpoints returns the retained checkpoints ordered by id.
func (s *ShardTree) Checkpoints() []Checkpoint {
	cps := make([]Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		cps = append(cps, *cp.clone())
	}
	sort.Slice(cps, func(i, j int) bool {
		return cps[i].ID < cps[j].ID
	})

	return cps
}

// Checkpoint returns the checkpoint with the given id.
func (s *ShardTree) Checkpoint(id uint32) (Checkpoint, bool) {
	cp, ok := s.checkpoints[id]
	if !ok {
		return Checkpoint{}, false
	}
	return *cp.clone(), true
}

// MinCheckpointID returns the id of the oldest retained checkpoint.
func (s *ShardTree) MinCheckpointID() fn.Option[uint32] {
	return s.extremeCheckpointID(func(a, b uint32) bool { return a < b })
}

// MaxCheckpointID returns the id of the newest retained checkpoint.
func (s *ShardTree) MaxCheckpointID() fn.Option[uint32] {
	return s.extremeCheckpointID(func(a, b uint32) bool { return a > b })
}

func (s *ShardTree) extremeCheckpointID(
	better func(a, b uint32) bool) fn.Option[uint32] {

	var (
		best  uint32
		found bool
	)
	for id := range s.checkpoints {
		if !found || better(id, best) {
			best, found = id, true
		}
	}
	if !found {
		return fn.None[uint32]()
	}

	return fn.Some(best)
}

// checkpointLimit returns the position limit of the checkpoint with id.
func (s *ShardTree) checkpointLimit(id uint32) (uint64, error) {
	cp, ok := s.checkpoints[id]
	if ok {
		return cp.limit(), nil
	}

	minID := s.MinCheckpointID()
	if minID.IsNone() || id < minID.UnwrapOr(0) {
		return 0, treeError(ErrRewindTooDeep,
			fmt.Sprintf("checkpoint %d is below the oldest "+
				"retained checkpoint", id), nil)
	}

	return 0, treeError(ErrCheckpointNotFound,
		fmt.Sprintf("no checkpoint %d", id), nil)
}

// RootAtCheckpoint returns the tree root as of the checkpoint with id.
func (s *ShardTree) RootAtCheckpoint(id uint32) (Node, error) {
	limit, err := s.checkpointLimit(id)
	if err != nil {
		return Node{}, err
	}

	return s.rootOf(s.root, rootAddr, limit)
}

// TruncateToCheckpoint rewinds the tree to the state it had when the
// checkpoint with id was added. Leaves after the checkpoint position and
// later checkpoints are removed along with the marks they introduced.
func (s *ShardTree) TruncateToCheckpoint(id uint32) error {
	limit, err := s.checkpointLimit(id)
	if err != nil {
		return err
	}

	root, err := truncate(s.root.clone(), rootAddr, limit, nil)
	if err != nil {
		return err
	}
	s.root = root

	var removed int
	for cid, cp := range s.checkpoints {
		if cid <= id {
			continue
		}
		delete(s.checkpoints, cid)
		removed++

		cp.Position.WhenSome(func(p uint64) {
			if p >= limit {
				delete(s.ckptRefs, p)
				return
			}
			s.releaseCheckpointRef(p)
		})
	}

	log.Debugf("Truncated tree to checkpoint %d (limit %d), removed %d "+
		"checkpoints", id, limit, removed)

	return nil
}

// PutSubtreeRoots records complete shard roots beginning at shard index
// start. Roots already implied by scanned leaves must agree with them.
func (s *ShardTree) PutSubtreeRoots(start uint64, roots []SubtreeRoot) error {
	root := s.root.clone()
	for i, sr := range roots {
		idx := start + uint64(i)
		if idx >= MaxPosition>>ShardHeight {
			return treeError(ErrPositionOutOfRange,
				fmt.Sprintf("shard index %d", idx), nil)
		}

		var err error
		root, err = s.insert(
			root, rootAddr, ShardAddress(idx), newLeaf(sr.Root, 0),
		)
		if err != nil {
			return err
		}
	}
	s.root = root

	for i, sr := range roots {
		s.subtreeEnds[start+uint64(i)] = sr.EndHeight
	}

	return nil
}

// SubtreeEndHeight returns the height of the block that completed the
// shard at index, if known.
func (s *ShardTree) SubtreeEndHeight(index uint64) fn.Option[uint32] {
	h, ok := s.subtreeEnds[index]
	if !ok {
		return fn.None[uint32]()
	}
	return fn.Some(h)
}

// MaxSubtreeEndHeight returns the completion height of the latest known
// shard.
func (s *ShardTree) MaxSubtreeEndHeight() fn.Option[uint32] {
	var (
		best  uint64
		found bool
	)
	for idx := range s.subtreeEnds {
		if !found || idx > best {
			best, found = idx, true
		}
	}
	if !found {
		return fn.None[uint32]()
	}

	return fn.Some(s.subtreeEnds[best])
}

// NextSubtreeIndex returns the index of the first shard whose root has not
// been supplied.
func (s *ShardTree) NextSubtreeIndex() uint64 {
	var next uint64
	for {
		if _, ok := s.subtreeEnds[next]; !ok {
			return next
		}
		next++
	}
}

// nodeCount returns the number of nodes held in memory.
func (s *ShardTree) nodeCount() int {
	return s.root.countNodes()
}
