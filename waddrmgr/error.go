// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific ManagerError.
const (
	// ErrAccountUnknown indicates that the requested account does not
	// exist.
	ErrAccountUnknown ErrorCode = iota

	// ErrViewingKeyNotFound indicates that an account has no viewing key
	// for the requested pool.
	ErrViewingKeyNotFound

	// ErrKeyDerivation indicates that a key could not be derived.
	ErrKeyDerivation

	// ErrAddressGeneration indicates that an address could not be
	// generated for the requested receivers.
	ErrAddressGeneration

	// ErrInvalidSeedLength indicates that a seed is too short or too long.
	ErrInvalidSeedLength

	// ErrAccountOutOfRange indicates that the next account index for a
	// seed would leave the hardened index range.
	ErrAccountOutOfRange

	// ErrAccountCollision indicates that an account with the same viewing
	// key already exists.
	ErrAccountCollision

	// ErrDiversifierSpaceExhausted indicates that no diversifier index is
	// left to generate an address from.
	ErrDiversifierSpaceExhausted

	// ErrAddressNotRecognized indicates that an address does not belong
	// to the wallet.
	ErrAddressNotRecognized

	// ErrReachedGapLimit indicates that reserving more ephemeral addresses
	// would exceed the gap limit. The error is a ReachedGapLimitError.
	ErrReachedGapLimit

	// ErrInvalidEncoding indicates that a key or address string could not
	// be decoded.
	ErrInvalidEncoding

	// ErrWrongNet indicates that a key or address belongs to a different
	// network.
	ErrWrongNet

	// ErrCorruptedData indicates that serialized manager state could not
	// be decoded.
	ErrCorruptedData
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrAccountUnknown:            "ErrAccountUnknown",
	ErrViewingKeyNotFound:        "ErrViewingKeyNotFound",
	ErrKeyDerivation:             "ErrKeyDerivation",
	ErrAddressGeneration:         "ErrAddressGeneration",
	ErrInvalidSeedLength:         "ErrInvalidSeedLength",
	ErrAccountOutOfRange:         "ErrAccountOutOfRange",
	ErrAccountCollision:          "ErrAccountCollision",
	ErrDiversifierSpaceExhausted: "ErrDiversifierSpaceExhausted",
	ErrAddressNotRecognized:      "ErrAddressNotRecognized",
	ErrReachedGapLimit:           "ErrReachedGapLimit",
	ErrInvalidEncoding:           "ErrInvalidEncoding",
	ErrWrongNet:                  "ErrWrongNet",
	ErrCorruptedData:             "ErrCorruptedData",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// ManagerError provides a single type for errors that can happen during
// address manager operation. It is used to indicate several types of
// failures including errors with caller requests such as invalid accounts
// or requesting addresses beyond the gap limit, as well as key derivation
// failures.
//
// The caller can use type assertions to determine if an error is a
// ManagerError and access the ErrorCode field to ascertain the specific
// reason for the failure.
type ManagerError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e ManagerError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e ManagerError) Unwrap() error {
	return e.Err
}

// managerError creates a ManagerError given a set of arguments.
func managerError(c ErrorCode, desc string, err error) ManagerError {
	return ManagerError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is, or wraps, a ManagerError with the given
// code.
func IsError(err error, code ErrorCode) bool {
	var e ManagerError
	return errors.As(err, &e) && e.ErrorCode == code
}

func accountUnknown(account uint32) ManagerError {
	return managerError(ErrAccountUnknown,
		fmt.Sprintf("account %d not found", account), nil)
}

// ReachedGapLimitError is returned when reserving ephemeral addresses would
// pass the gap limit. FirstUnsafe is the lowest index that may not be
// reserved yet.
type ReachedGapLimitError struct {
	Account     uint32
	FirstUnsafe uint32
}

// Error satisfies the error interface.
func (e *ReachedGapLimitError) Error() string {
	return fmt.Sprintf("account %d reached the ephemeral address gap "+
		"limit at index %d", e.Account, e.FirstUnsafe)
}

// Unwrap lets callers match the error with IsError(err, ErrReachedGapLimit).
func (e *ReachedGapLimitError) Unwrap() error {
	return managerError(ErrReachedGapLimit, "reached gap limit", nil)
}
