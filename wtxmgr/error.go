// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zecsuite/zecwallet/pkg/unit"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific TxStoreError.
const (
	// ErrTxNotFound indicates that the requested transaction is not known
	// to the store.
	ErrTxNotFound ErrorCode = iota

	// ErrNoteNotFound indicates that no tracked note matches the request.
	ErrNoteNotFound

	// ErrOutputNotFound indicates that the requested transparent output is
	// not known to the store.
	ErrOutputNotFound

	// ErrConflictingTxLocator indicates that a different transaction is
	// already recorded at a block height and transaction index.
	ErrConflictingTxLocator

	// ErrImmutableField indicates that a re-inserted note disagrees with
	// the stored note on a field that may not change.
	ErrImmutableField

	// ErrInsufficientFunds indicates that the eligible notes do not cover
	// the requested value. The error is an InsufficientFundsError.
	ErrInsufficientFunds

	// ErrCorruptedData indicates that serialized store data could not be
	// decoded.
	ErrCorruptedData

	// ErrInput indicates an invalid argument.
	ErrInput
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrTxNotFound:           "ErrTxNotFound",
	ErrNoteNotFound:         "ErrNoteNotFound",
	ErrOutputNotFound:       "ErrOutputNotFound",
	ErrConflictingTxLocator: "ErrConflictingTxLocator",
	ErrImmutableField:       "ErrImmutableField",
	ErrInsufficientFunds:    "ErrInsufficientFunds",
	ErrCorruptedData:        "ErrCorruptedData",
	ErrInput:                "ErrInput",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// TxStoreError provides a single type for errors that can happen during tx
// store operation. It is similar to waddrmgr.ManagerError.
type TxStoreError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxStoreError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e TxStoreError) Unwrap() error {
	return e.Err
}

// txStoreError creates a TxStoreError given a set of arguments.
func txStoreError(c ErrorCode, desc string, err error) TxStoreError {
	return TxStoreError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is, or wraps, a TxStoreError with the given
// code.
func IsError(err error, code ErrorCode) bool {
	var e TxStoreError
	return errors.As(err, &e) && e.ErrorCode == code
}

func txNotFound(txid *chainhash.Hash) TxStoreError {
	return txStoreError(ErrTxNotFound,
		fmt.Sprintf("transaction %v not found", txid), nil)
}

// InsufficientFundsError is returned when note selection cannot cover the
// required value. Available is the total of every eligible note.
type InsufficientFundsError struct {
	Available unit.Zatoshi
	Required  unit.Zatoshi
}

// Error satisfies the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, required %d",
		uint64(e.Available), uint64(e.Required))
}

// Unwrap lets callers match the error with IsError(err,
// ErrInsufficientFunds).
func (e *InsufficientFundsError) Unwrap() error {
	return txStoreError(ErrInsufficientFunds, "insufficient funds", nil)
}
