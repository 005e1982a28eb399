// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import "fmt"

// Retention flags are attached to level 0 leaves and keep them (and the
// path to them) from being pruned.
type Retention uint8

const (
	// RetentionEphemeral marks a leaf that may be pruned as soon as its
	// sibling subtree is complete.
	RetentionEphemeral Retention = 0

	// RetentionMarked marks a leaf whose witness the wallet tracks.
	RetentionMarked Retention = 1 << 0

	// RetentionCheckpoint marks a leaf that is the position of at least
	// one retained checkpoint.
	RetentionCheckpoint Retention = 1 << 1
)

// IsMarked reports whether the marked flag is set.
func (r Retention) IsMarked() bool {
	return r&RetentionMarked != 0
}

// IsCheckpoint reports whether the checkpoint flag is set.
func (r Retention) IsCheckpoint() bool {
	return r&RetentionCheckpoint != 0
}

type nodeKind uint8

const (
	// leafNode is either a level 0 leaf or, above level 0, a pruned
	// subtree represented by its root.
	leafNode nodeKind = iota + 1

	// parentNode has up to two children. A nil child is an empty
	// subtree.
	parentNode
)

// tree is a node of a prunable binary tree. A nil *tree is an empty
// subtree. Every node is owned by exactly one parent.
type tree struct {
	kind nodeKind

	// hash is the leaf value, the pruned root, or for a parent the
	// root cached from a trusted source when annotated is set.
	hash      Node
	annotated bool

	// flags is only meaningful on level 0 leaves.
	flags Retention

	left, right *tree
}

func newLeaf(h Node, flags Retention) *tree {
	return &tree{kind: leafNode, hash: h, flags: flags}
}

// isPrunable reports whether n can be folded into its parent's hash.
func (n *tree) isPrunable() bool {
	return n != nil && n.kind == leafNode && n.flags == RetentionEphemeral
}

// clone returns a deep copy of the subtree.
func (n *tree) clone() *tree {
	if n == nil {
		return nil
	}
	c := *n
	c.left = n.left.clone()
	c.right = n.right.clone()
	return &c
}

// countNodes returns the number of nodes in the subtree.
func (n *tree) countNodes() int {
	if n == nil {
		return 0
	}
	return 1 + n.left.countNodes() + n.right.countNodes()
}

// merge combines two descriptions of the subtree at addr. The more detailed
// one wins; two values for the same leaf must agree.
func (s *ShardTree) merge(a, b *tree, addr Address) (*tree, error) {
	switch {
	case a == nil:
		return b, nil

	case b == nil:
		return a, nil

	case a.kind == leafNode && b.kind == leafNode:
		if a.hash != b.hash {
			return nil, treeError(ErrInsertionConflict,
				fmt.Sprintf("conflicting values at %v: %v != %v",
					addr, a.hash, b.hash), nil)
		}
		a.flags |= b.flags
		return a, nil

	case a.kind == leafNode:
		return s.annotate(b, a.hash, addr)

	case b.kind == leafNode:
		return s.annotate(a, b.hash, addr)
	}

	l, r := addr.Children()
	left, err := s.merge(a.left, b.left, l)
	if err != nil {
		return nil, err
	}
	right, err := s.merge(a.right, b.right, r)
	if err != nil {
		return nil, err
	}

	a.left, a.right = left, right
	if b.annotated {
		if a.annotated && a.hash != b.hash {
			return nil, treeError(ErrInsertionConflict,
				fmt.Sprintf("conflicting roots at %v", addr), nil)
		}
		a.hash, a.annotated = b.hash, true
	}

	return a, nil
}

// annotate records a known root on a parent node.
func (s *ShardTree) annotate(p *tree, root Node, addr Address) (*tree,
	error) {

	if p.annotated && p.hash != root {
		return nil, treeError(ErrInsertionConflict,
			fmt.Sprintf("conflicting roots at %v", addr), nil)
	}
	p.hash, p.annotated = root, true

	return p, nil
}

// insert places n at target inside the subtree t rooted at addr.
func (s *ShardTree) insert(t *tree, addr, target Address, n *tree) (*tree,
	error) {

	if addr == target {
		return s.merge(t, n, addr)
	}

	switch {
	case t == nil:
		t = &tree{kind: parentNode}

	case t.kind == leafNode:
		// Expand a pruned subtree so the new detail can be placed
		// under it, keeping the known root as an annotation.
		t = &tree{kind: parentNode, hash: t.hash, annotated: true}
	}

	l, r := addr.Children()
	var err error
	if l.Contains(target.Start()) {
		t.left, err = s.insert(t.left, l, target, n)
	} else {
		t.right, err = s.insert(t.right, r, target, n)
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// find returns the node at target and the address it was found at. If a
// pruned leaf above target covers it, that leaf and its address are
// returned instead.
func find(t *tree, addr, target Address) (*tree, Address) {
	for t != nil && addr != target {
		if t.kind == leafNode {
			return t, addr
		}
		l, r := addr.Children()
		if l.Contains(target.Start()) {
			t, addr = t.left, l
		} else {
			t, addr = t.right, r
		}
	}

	return t, addr
}

// setFlags applies fn to the flags of the leaf at pos, if present.
func setFlags(t *tree, addr Address, pos uint64,
	fn func(Retention) Retention) bool {

	n, at := find(t, addr, LeafAddress(pos))
	if n == nil || n.kind != leafNode || at.Level != 0 {
		return false
	}
	n.flags = fn(n.flags)

	return true
}

// prune folds every complete, unretained subtree into its root hash.
func (s *ShardTree) prune(t *tree, addr Address) *tree {
	if t == nil || t.kind == leafNode {
		return t
	}

	l, r := addr.Children()
	t.left = s.prune(t.left, l)
	t.right = s.prune(t.right, r)

	if !t.left.isPrunable() || !t.right.isPrunable() {
		return t
	}
	if t.annotated {
		return newLeaf(t.hash, RetentionEphemeral)
	}

	return newLeaf(
		s.hasher.Combine(l.Level, t.left.hash, t.right.hash),
		RetentionEphemeral,
	)
}

// rootOf returns the root of the subtree t at addr with every position at
// or beyond limit treated as empty.
func (s *ShardTree) rootOf(t *tree, addr Address, limit uint64) (Node,
	error) {

	if addr.Start() >= limit {
		return s.emptyRoots[addr.Level], nil
	}
	complete := addr.End() <= limit

	switch {
	case t == nil:
		return Node{}, treeError(ErrNotReachable,
			fmt.Sprintf("no data at %v", addr), nil)

	case t.kind == leafNode:
		if complete {
			return t.hash, nil
		}
		return Node{}, treeError(ErrNotReachable,
			fmt.Sprintf("subtree %v is pruned", addr), nil)

	case complete && t.annotated:
		return t.hash, nil
	}

	l, r := addr.Children()
	left, err := s.rootOf(t.left, l, limit)
	if err != nil {
		return Node{}, err
	}
	right, err := s.rootOf(t.right, r, limit)
	if err != nil {
		return Node{}, err
	}

	return s.hasher.Combine(l.Level, left, right), nil
}

// truncate removes every position at or beyond limit from the subtree t at
// addr. The leaves it drops are reported through dropped.
func truncate(t *tree, addr Address, limit uint64,
	dropped func(pos uint64, flags Retention)) (*tree, error) {

	switch {
	case t == nil:
		return nil, nil

	case addr.Start() >= limit:
		visitLeaves(t, addr, dropped)
		return nil, nil

	case addr.End() <= limit:
		return t, nil

	case t.kind == leafNode:
		return nil, treeError(ErrRewindTooDeep,
			fmt.Sprintf("cannot truncate inside pruned subtree %v",
				addr), nil)
	}

	l, r := addr.Children()
	left, err := truncate(t.left, l, limit, dropped)
	if err != nil {
		return nil, err
	}
	right, err := truncate(t.right, r, limit, dropped)
	if err != nil {
		return nil, err
	}

	if left == nil && right == nil {
		return nil, nil
	}

	// The cached root no longer describes the subtree.
	t.left, t.right = left, right
	t.annotated = false

	return t, nil
}

// visitLeaves calls f for every level 0 leaf in t.
func visitLeaves(t *tree, addr Address, f func(uint64, Retention)) {
	if t == nil || f == nil {
		return
	}
	if t.kind == leafNode {
		if addr.Level == 0 {
			f(addr.Index, t.flags)
		}
		return
	}

	l, r := addr.Children()
	visitLeaves(t.left, l, f)
	visitLeaves(t.right, r, f)
}

// maxLeaf returns the largest position with data in the subtree, if any.
func maxLeaf(t *tree, addr Address) (uint64, bool) {
	for t != nil {
		if t.kind == leafNode {
			return addr.End() - 1, true
		}

		l, r := addr.Children()
		if t.right != nil {
			if pos, ok := maxLeaf(t.right, r); ok {
				return pos, true
			}
		}
		t, addr = t.left, l
	}

	return 0, false
}
