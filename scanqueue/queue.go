// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scanqueue maintains the prioritized set of block ranges a wallet
// still has to scan.
package scanqueue

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrInvalidRanges is returned when restoring a queue from ranges that
// overlap, are unordered or carry an unknown priority.
var ErrInvalidRanges = errors.New("invalid scan ranges")

// Range is a half open range of block heights with a priority.
type Range struct {
	Start    uint32
	End      uint32
	Priority Priority
}

// NewRange returns the range [start, end) with priority p.
func NewRange(start, end uint32, p Priority) Range {
	return Range{Start: start, End: end, Priority: p}
}

// Len returns the number of blocks in the range.
func (r Range) Len() uint32 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// IsEmpty reports whether the range holds no blocks.
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

// Contains reports whether height lies in the range.
func (r Range) Contains(height uint32) bool {
	return height >= r.Start && height < r.End
}

// String returns a human readable form of the range.
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)@%v", r.Start, r.End, r.Priority)
}

// Queue is an ordered set of non-overlapping scan ranges covering a
// contiguous span of heights. At every height exactly one priority holds.
//
// Queue is not safe for concurrent use.
type Queue struct {
	ranges []Range
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// FromRanges restores a queue from ranges previously returned by Ranges.
func FromRanges(rs []Range) (*Queue, error) {
	q := &Queue{ranges: make([]Range, 0, len(rs))}
	for i, r := range rs {
		switch {
		case r.IsEmpty():
			return nil, fmt.Errorf("%w: empty range %v",
				ErrInvalidRanges, r)

		case !r.Priority.Valid():
			return nil, fmt.Errorf("%w: range %v", ErrInvalidRanges, r)

		case i > 0 && rs[i-1].End != r.Start:
			return nil, fmt.Errorf("%w: %v does not follow %v",
				ErrInvalidRanges, r, rs[i-1])
		}
		q.ranges = append(q.ranges, r)
	}
	q.coalesce()

	return q, nil
}

// Ranges returns a copy of the queue in height order.
func (q *Queue) Ranges() []Range {
	return append([]Range(nil), q.ranges...)
}

// Clone returns a copy of the queue.
func (q *Queue) Clone() *Queue {
	return &Queue{ranges: q.Ranges()}
}

// IsEmpty reports whether the queue holds no ranges.
func (q *Queue) IsEmpty() bool {
	return len(q.ranges) == 0
}

// Start returns the lowest height covered by the queue.
func (q *Queue) Start() fn.Option[uint32] {
	if len(q.ranges) == 0 {
		return fn.None[uint32]()
	}
	return fn.Some(q.ranges[0].Start)
}

// End returns one past the highest height covered by the queue.
func (q *Queue) End() fn.Option[uint32] {
	if len(q.ranges) == 0 {
		return fn.None[uint32]()
	}
	return fn.Some(q.ranges[len(q.ranges)-1].End)
}

// PriorityAt returns the priority that holds at height.
func (q *Queue) PriorityAt(height uint32) fn.Option[Priority] {
	i := sort.Search(len(q.ranges), func(i int) bool {
		return q.ranges[i].End > height
	})
	if i == len(q.ranges) || !q.ranges[i].Contains(height) {
		return fn.None[Priority]()
	}

	return fn.Some(q.ranges[i].Priority)
}

// MaxScanned returns the highest scanned height.
func (q *Queue) MaxScanned() fn.Option[uint32] {
	for i := len(q.ranges) - 1; i >= 0; i-- {
		if q.ranges[i].Priority == Scanned {
			return fn.Some(q.ranges[i].End - 1)
		}
	}

	return fn.None[uint32]()
}

// FullyScannedTo returns the highest height h such that every height from
// the start of the queue up to and including h is scanned or ignored.
func (q *Queue) FullyScannedTo() fn.Option[uint32] {
	var (
		last  uint32
		found bool
	)
	for _, r := range q.ranges {
		if r.Priority != Scanned && r.Priority != Ignored {
			break
		}
		if r.Priority == Scanned {
			found = true
		}
		last = r.End - 1
	}
	if !found {
		return fn.None[uint32]()
	}

	return fn.Some(last)
}

// Replace splices entries into the queue. Where an entry overlaps an
// existing range the priority is decided per height: equal priorities
// merge, an inserted Verify or Scanned priority wins, an existing Scanned
// priority wins unless force is set, and otherwise the higher priority
// wins. Heights between the existing span and a disjoint entry are filled
// with Historic so the queue stays contiguous.
//
// The Logical Steps are as follows:
//  1. Each entry is applied in turn against the current ranges: the parts
//     of existing ranges outside the entry are kept, the overlapping
//     parts take the dominating priority, and the parts of the entry
//     not covered by any range take the entry's priority.
//  2. The pieces are sorted, interior gaps are filled with Historic and
//     neighbours of equal priority are coalesced.
func (q *Queue) Replace(entries []Range, force bool) {
	for _, e := range entries {
		if e.IsEmpty() {
			continue
		}
		q.apply(e, force)
	}
}

func (q *Queue) apply(e Range, force bool) {
	pieces := make([]Range, 0, len(q.ranges)+2)

	// uncovered tracks the start of the part of e not yet matched with
	// an existing range.
	uncovered := e.Start
	for _, r := range q.ranges {
		if r.End <= e.Start || r.Start >= e.End {
			pieces = append(pieces, r)
			continue
		}

		lo, hi := max(r.Start, e.Start), min(r.End, e.End)
		if r.Start < lo {
			pieces = append(pieces, NewRange(r.Start, lo, r.Priority))
		}
		if uncovered < lo {
			pieces = append(pieces, NewRange(uncovered, lo, e.Priority))
		}
		pieces = append(pieces, NewRange(
			lo, hi, resolve(r.Priority, e.Priority, force),
		))
		if hi < r.End {
			pieces = append(pieces, NewRange(hi, r.End, r.Priority))
		}
		uncovered = hi
	}
	if uncovered < e.End {
		pieces = append(pieces, NewRange(uncovered, e.End, e.Priority))
	}

	sort.Slice(pieces, func(i, j int) bool {
		return pieces[i].Start < pieces[j].Start
	})

	q.ranges = fillGaps(pieces)
	q.coalesce()
}

// fillGaps inserts Historic ranges between sorted, non-overlapping pieces
// that do not touch.
func fillGaps(pieces []Range) []Range {
	out := make([]Range, 0, len(pieces))
	for _, p := range pieces {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev.End < p.Start {
				out = append(out, NewRange(prev.End, p.Start, Historic))
			}
		}
		out = append(out, p)
	}

	return out
}

// coalesce merges adjacent ranges of equal priority and drops empty ones.
func (q *Queue) coalesce() {
	out := q.ranges[:0]
	for _, r := range q.ranges {
		if r.IsEmpty() {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Priority == r.Priority &&
			out[n-1].End == r.Start {

			out[n-1].End = r.End
			continue
		}
		out = append(out, r)
	}
	q.ranges = out
}

// MarkScanned sets the priority of exactly [start, end) to Scanned.
func (q *Queue) MarkScanned(start, end uint32) {
	q.Replace([]Range{NewRange(start, end, Scanned)}, false)
}

// SuggestNext returns the ranges with priority at least min, highest
// priority first and lowest start height first within a priority.
func (q *Queue) SuggestNext(min Priority) []Range {
	var out []Range
	for _, r := range q.ranges {
		if r.Priority >= min {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Start < out[j].Start
	})

	return out
}

// TruncateTo drops every height above height from the queue.
func (q *Queue) TruncateTo(height uint32) {
	out := q.ranges[:0]
	for _, r := range q.ranges {
		if r.Start > height {
			break
		}
		if r.End > height+1 {
			r.End = height + 1
		}
		out = append(out, r)
	}
	q.ranges = out

	log.Debugf("Truncated scan queue to height %d", height)
}
