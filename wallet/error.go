// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrNonSequentialBlocks indicates that the blocks passed to Scan do
	// not form a contiguous run of heights.
	ErrNonSequentialBlocks ErrorCode = iota

	// ErrPrevHashMismatch indicates that a scanned block does not connect
	// to the chain the wallet knows. The error is a PrevHashMismatchError
	// and the caller is expected to truncate.
	ErrPrevHashMismatch

	// ErrScanRequired indicates that the wallet does not know the chain
	// tip yet.
	ErrScanRequired

	// ErrPaysEphemeralTransparentAddress indicates that a payment is
	// addressed to one of the wallet's own ephemeral addresses. The error
	// is a PaysEphemeralTransparentAddressError.
	ErrPaysEphemeralTransparentAddress

	// ErrEphemeralOutputLeftUnspent indicates that a proposal creates an
	// ephemeral output that no later step spends.
	ErrEphemeralOutputLeftUnspent

	// ErrBalance indicates that the inputs and outputs of a transaction
	// do not balance with its fee.
	ErrBalance

	// ErrRequestedRewindInvalid indicates that the wallet cannot rewind
	// to the requested height.
	ErrRequestedRewindInvalid

	// ErrCorruptedData indicates inconsistent chain data or a snapshot
	// that could not be decoded. The error is a CorruptedDataError.
	ErrCorruptedData

	// ErrAddressNotRecognized indicates that a received output pays an
	// address the wallet does not own.
	ErrAddressNotRecognized

	// ErrDustOutput indicates that a transparent payment is below the
	// dust threshold.
	ErrDustOutput

	// ErrKeyMismatch indicates that a spending key does not belong to the
	// account it is used for.
	ErrKeyMismatch

	// ErrInvalidProposal indicates a proposal that cannot be built.
	ErrInvalidProposal
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrNonSequentialBlocks:             "ErrNonSequentialBlocks",
	ErrPrevHashMismatch:                "ErrPrevHashMismatch",
	ErrScanRequired:                    "ErrScanRequired",
	ErrPaysEphemeralTransparentAddress: "ErrPaysEphemeralTransparentAddress",
	ErrEphemeralOutputLeftUnspent:      "ErrEphemeralOutputLeftUnspent",
	ErrBalance:                         "ErrBalance",
	ErrRequestedRewindInvalid:          "ErrRequestedRewindInvalid",
	ErrCorruptedData:                   "ErrCorruptedData",
	ErrAddressNotRecognized:            "ErrAddressNotRecognized",
	ErrDustOutput:                      "ErrDustOutput",
	ErrKeyMismatch:                     "ErrKeyMismatch",
	ErrInvalidProposal:                 "ErrInvalidProposal",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during wallet
// operation.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

func walletError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is, or wraps, an Error with the given code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.ErrorCode == code
}

// PrevHashMismatchError is returned by Scan when the block at Height does
// not connect to its parent.
type PrevHashMismatchError struct {
	Height uint32
}

// Error satisfies the error interface.
func (e *PrevHashMismatchError) Error() string {
	return fmt.Sprintf("block at height %d does not connect to the "+
		"known chain", e.Height)
}

// Unwrap lets callers match the error with IsError(err,
// ErrPrevHashMismatch).
func (e *PrevHashMismatchError) Unwrap() error {
	return walletError(ErrPrevHashMismatch, "previous hash mismatch", nil)
}

// PaysEphemeralTransparentAddressError is returned when a proposal pays one
// of the wallet's own ephemeral addresses.
type PaysEphemeralTransparentAddressError struct {
	Address string
}

// Error satisfies the error interface.
func (e *PaysEphemeralTransparentAddressError) Error() string {
	return fmt.Sprintf("payment to ephemeral address %s is not allowed",
		e.Address)
}

// Unwrap lets callers match the error with IsError(err,
// ErrPaysEphemeralTransparentAddress).
func (e *PaysEphemeralTransparentAddressError) Unwrap() error {
	return walletError(ErrPaysEphemeralTransparentAddress,
		"pays ephemeral transparent address", nil)
}

// CorruptedDataError reports chain or stored data that is internally
// inconsistent.
type CorruptedDataError struct {
	Msg string
}

// Error satisfies the error interface.
func (e *CorruptedDataError) Error() string {
	return "corrupted data: " + e.Msg
}

// Unwrap lets callers match the error with IsError(err, ErrCorruptedData).
func (e *CorruptedDataError) Unwrap() error {
	return walletError(ErrCorruptedData, "corrupted data", nil)
}

func corrupted(format string, args ...any) error {
	return &CorruptedDataError{Msg: fmt.Sprintf(format, args...)}
}
