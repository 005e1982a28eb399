// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanqueue

import "fmt"

// Priority orders scan ranges. Higher priorities are scanned first.
type Priority uint8

const (
	// Ignored ranges are never scanned, for example heights before the
	// wallet birthday.
	Ignored Priority = iota

	// Scanned ranges have been scanned.
	Scanned

	// Historic ranges are old blocks that must be scanned eventually.
	Historic

	// OpenAdjacent ranges neighbour a range that was found to contain
	// notes.
	OpenAdjacent

	// FoundNote ranges belong to a shard in which the wallet found a
	// note and must be scanned to produce its witness.
	FoundNote

	// ChainTip ranges are near the chain tip.
	ChainTip

	// Verify ranges follow the last scanned block and are scanned first
	// to detect reorgs.
	Verify
)

var priorityStrings = map[Priority]string{
	Ignored:      "Ignored",
	Scanned:      "Scanned",
	Historic:     "Historic",
	OpenAdjacent: "OpenAdjacent",
	FoundNote:    "FoundNote",
	ChainTip:     "ChainTip",
	Verify:       "Verify",
}

// String returns the priority name.
func (p Priority) String() string {
	if s, ok := priorityStrings[p]; ok {
		return s
	}
	return fmt.Sprintf("Priority(%d)", uint8(p))
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p <= Verify
}

// dominance is the outcome of comparing an existing priority with an
// inserted one over the same heights.
type dominance uint8

const (
	keepExisting dominance = iota
	takeInserted
	equal
)

// dominate decides which priority holds a height covered by both an
// existing range and an inserted one. Inserted Verify and Scanned
// priorities always win; an existing Scanned priority is only overridden
// when force is set; otherwise the higher priority wins.
func dominate(existing, inserted Priority, force bool) dominance {
	switch {
	case existing == inserted:
		return equal

	case inserted == Verify || inserted == Scanned:
		return takeInserted

	case existing == Scanned && !force:
		return keepExisting

	case existing > inserted:
		return keepExisting

	default:
		return takeInserted
	}
}

// resolve returns the priority that holds a height covered by both.
func resolve(existing, inserted Priority, force bool) Priority {
	if dominate(existing, inserted, force) == keepExisting {
		return existing
	}
	return inserted
}
