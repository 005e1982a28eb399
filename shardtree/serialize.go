// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	serializationVersion = 1

	tagEmpty  = 0
	tagLeaf   = 1
	tagParent = 2
)

// Serialize writes the tree as its cap (every node above shard height),
// followed by each shard that holds detail, the retained checkpoints and the
// known subtree end heights.
func (s *ShardTree) Serialize(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte(serializationVersion)

	writeNode(&buf, s.root, rootAddr, ShardHeight)

	shards := s.shards()
	writeVarInt(&buf, uint64(len(shards)))
	for _, idx := range shards {
		n, _ := find(s.root, rootAddr, ShardAddress(idx))
		writeVarInt(&buf, idx)
		writeNode(&buf, n, ShardAddress(idx), 0)
	}

	cps := s.Checkpoints()
	writeVarInt(&buf, uint64(len(cps)))
	for _, cp := range cps {
		writeVarInt(&buf, uint64(cp.ID))
		if cp.Position.IsSome() {
			buf.WriteByte(1)
			writeVarInt(&buf, cp.Position.UnsafeFromSome())
		} else {
			buf.WriteByte(0)
		}
		writeVarInt(&buf, uint64(len(cp.MarksRemoved)))
		for _, p := range cp.MarksRemoved {
			writeVarInt(&buf, p)
		}
	}

	ends := make([]uint64, 0, len(s.subtreeEnds))
	for idx := range s.subtreeEnds {
		ends = append(ends, idx)
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i] < ends[j] })
	writeVarInt(&buf, uint64(len(ends)))
	for _, idx := range ends {
		writeVarInt(&buf, idx)
		writeVarInt(&buf, uint64(s.subtreeEnds[idx]))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Deserialize reads a tree written by Serialize.
func Deserialize(h Hasher, maxCheckpoints int, r io.Reader) (*ShardTree,
	error) {

	s := New(h, maxCheckpoints)

	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, corrupted("version", err)
	}
	if version[0] != serializationVersion {
		return nil, treeError(ErrCorrupted,
			fmt.Sprintf("unknown tree version %d", version[0]), nil)
	}

	root, err := readNode(r, Depth)
	if err != nil {
		return nil, corrupted("cap", err)
	}
	s.root = root

	numShards, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, corrupted("shard count", err)
	}
	for i := uint64(0); i < numShards; i++ {
		idx, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, corrupted("shard index", err)
		}
		if idx >= MaxPosition>>ShardHeight {
			return nil, treeError(ErrCorrupted,
				fmt.Sprintf("shard index %d", idx), nil)
		}
		shard, err := readNode(r, ShardHeight)
		if err != nil {
			return nil, corrupted("shard", err)
		}
		s.root, err = s.insert(s.root, rootAddr, ShardAddress(idx), shard)
		if err != nil {
			return nil, corrupted("shard merge", err)
		}
	}

	numCheckpoints, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, corrupted("checkpoint count", err)
	}
	for i := uint64(0); i < numCheckpoints; i++ {
		cp, err := readCheckpoint(r)
		if err != nil {
			return nil, corrupted("checkpoint", err)
		}
		s.checkpoints[cp.ID] = cp
		cp.Position.WhenSome(func(p uint64) {
			s.ckptRefs[p]++
		})
	}

	numEnds, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, corrupted("subtree count", err)
	}
	for i := uint64(0); i < numEnds; i++ {
		idx, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, corrupted("subtree index", err)
		}
		end, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, corrupted("subtree end", err)
		}
		s.subtreeEnds[idx] = uint32(end)
	}

	return s, nil
}

func corrupted(what string, err error) error {
	return treeError(ErrCorrupted, "unable to read "+what, err)
}

// shards returns the indexes of shards that hold more than a root, in
// ascending order.
func (s *ShardTree) shards() []uint64 {
	var idxs []uint64
	var walk func(t *tree, addr Address)
	walk = func(t *tree, addr Address) {
		if t == nil || t.kind == leafNode {
			return
		}
		if addr.Level == ShardHeight {
			idxs = append(idxs, addr.Index)
			return
		}
		l, r := addr.Children()
		walk(t.left, l)
		walk(t.right, r)
	}
	walk(s.root, rootAddr)

	return idxs
}

// writeNode encodes t in pre-order. Parents at stopLevel are left out so
// that they can be written as separate shards.
func writeNode(buf *bytes.Buffer, t *tree, addr Address, stopLevel uint8) {
	switch {
	case t == nil:
		buf.WriteByte(tagEmpty)

	case t.kind == leafNode:
		buf.WriteByte(tagLeaf)
		buf.Write(t.hash[:])
		buf.WriteByte(byte(t.flags))

	case addr.Level == stopLevel && stopLevel > 0:
		buf.WriteByte(tagEmpty)

	default:
		buf.WriteByte(tagParent)
		if t.annotated {
			buf.WriteByte(1)
			buf.Write(t.hash[:])
		} else {
			buf.WriteByte(0)
		}
		l, r := addr.Children()
		writeNode(buf, t.left, l, stopLevel)
		writeNode(buf, t.right, r, stopLevel)
	}
}

// readNode decodes a node at the given level.
func readNode(r io.Reader, level uint8) (*tree, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}

	switch tag[0] {
	case tagEmpty:
		return nil, nil

	case tagLeaf:
		var buf [33]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		n := &tree{kind: leafNode, flags: Retention(buf[32])}
		copy(n.hash[:], buf[:32])
		return n, nil

	case tagParent:
		if level == 0 {
			return nil, fmt.Errorf("parent node at leaf level")
		}
		n := &tree{kind: parentNode}

		var annotated [1]byte
		if _, err := io.ReadFull(r, annotated[:]); err != nil {
			return nil, err
		}
		if annotated[0] == 1 {
			n.annotated = true
			if _, err := io.ReadFull(r, n.hash[:]); err != nil {
				return nil, err
			}
		}

		var err error
		if n.left, err = readNode(r, level-1); err != nil {
			return nil, err
		}
		if n.right, err = readNode(r, level-1); err != nil {
			return nil, err
		}
		return n, nil

	default:
		return nil, fmt.Errorf("unknown node tag %d", tag[0])
	}
}

func readCheckpoint(r io.Reader) (*Checkpoint, error) {
	id, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	var hasPos [1]byte
	if _, err := io.ReadFull(r, hasPos[:]); err != nil {
		return nil, err
	}
	cp := &Checkpoint{ID: uint32(id), Position: fn.None[uint64]()}
	if hasPos[0] == 1 {
		pos, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, err
		}
		cp.Position = fn.Some(pos)
	}

	numMarks, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numMarks; i++ {
		pos, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, err
		}
		cp.MarksRemoved = append(cp.MarksRemoved, pos)
	}

	return cp, nil
}

func writeVarInt(buf *bytes.Buffer, v uint64) {
	// Writes to a bytes.Buffer never fail.
	_ = wire.WriteVarInt(buf, 0, v)
}
