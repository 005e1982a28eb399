// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific TreeError.
const (
	// ErrInsertionConflict indicates that a value was inserted at a
	// position that already holds a different value.
	ErrInsertionConflict ErrorCode = iota

	// ErrNonContiguous indicates an append batch whose positions do not
	// follow on from each other.
	ErrNonContiguous

	// ErrNotReachable indicates that the data needed to compute a
	// witness or root has been pruned or was never inserted.
	ErrNotReachable

	// ErrRewindTooDeep indicates a truncation request below the earliest
	// retained checkpoint.
	ErrRewindTooDeep

	// ErrCheckpointNotFound indicates a reference to a checkpoint that
	// the tree does not hold.
	ErrCheckpointNotFound

	// ErrCheckpointConflict indicates an attempt to re-add a checkpoint
	// id at a different position.
	ErrCheckpointConflict

	// ErrPositionOutOfRange indicates a position beyond the capacity of
	// the tree.
	ErrPositionOutOfRange

	// ErrCorrupted indicates that serialized tree data could not be
	// decoded.
	ErrCorrupted
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInsertionConflict:  "ErrInsertionConflict",
	ErrNonContiguous:      "ErrNonContiguous",
	ErrNotReachable:       "ErrNotReachable",
	ErrRewindTooDeep:      "ErrRewindTooDeep",
	ErrCheckpointNotFound: "ErrCheckpointNotFound",
	ErrCheckpointConflict: "ErrCheckpointConflict",
	ErrPositionOutOfRange: "ErrPositionOutOfRange",
	ErrCorrupted:          "ErrCorrupted",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// TreeError provides a single type for errors that can happen during shard
// tree operation.
type TreeError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e TreeError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e TreeError) Unwrap() error {
	return e.Err
}

// treeError creates a TreeError given a set of arguments.
func treeError(c ErrorCode, desc string, err error) TreeError {
	return TreeError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is, or wraps, a TreeError with the given
// code.
func IsError(err error, code ErrorCode) bool {
	var e TreeError
	return errors.As(err, &e) && e.ErrorCode == code
}
