// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with Zcash units and the
// conventional fee rule.
package unit

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// ZatoshiPerZEC is the number of zatoshi in one ZEC.
	ZatoshiPerZEC = 100_000_000

	// MaxMoney is the total supply cap, in zatoshi.
	MaxMoney = 21_000_000 * ZatoshiPerZEC

	// zecExponent is the decimal exponent of one zatoshi in ZEC.
	zecExponent = -8
)

var (
	// ErrNegativeAmount is returned when an amount would be negative.
	ErrNegativeAmount = errors.New("amount is negative")

	// ErrAmountOverflow is returned when an amount exceeds MaxMoney.
	ErrAmountOverflow = errors.New("amount exceeds the money supply")
)

// Zatoshi is a non-negative amount of ZEC expressed in its smallest unit.
type Zatoshi uint64

// NewZatoshi validates v and converts it to a Zatoshi amount.
func NewZatoshi(v int64) (Zatoshi, error) {
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	if v > MaxMoney {
		return 0, ErrAmountOverflow
	}

	return Zatoshi(v), nil
}

// ParseZEC parses a decimal ZEC string such as "0.0006" into zatoshi.
func ParseZEC(s string) (Zatoshi, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ZEC amount %q: %w", s, err)
	}

	zat := d.Shift(-zecExponent)
	if !zat.Equal(zat.Truncate(0)) {
		return 0, fmt.Errorf("invalid ZEC amount %q: more than 8 "+
			"decimal places", s)
	}

	return NewZatoshi(zat.IntPart())
}

// Add returns z + other, failing if the sum leaves the valid money range.
func (z Zatoshi) Add(other Zatoshi) (Zatoshi, error) {
	sum := uint64(z) + uint64(other)
	if sum < uint64(z) || sum > MaxMoney {
		return 0, ErrAmountOverflow
	}

	return Zatoshi(sum), nil
}

// Sub returns z - other, failing if the result would be negative.
func (z Zatoshi) Sub(other Zatoshi) (Zatoshi, error) {
	if other > z {
		return 0, ErrNegativeAmount
	}

	return z - other, nil
}

// ToZEC returns the amount as a decimal number of ZEC.
func (z Zatoshi) ToZEC() decimal.Decimal {
	if uint64(z) > math.MaxInt64 {
		return decimal.New(math.MaxInt64, zecExponent)
	}

	return decimal.New(int64(z), zecExponent)
}

// String returns the amount formatted in ZEC.
func (z Zatoshi) String() string {
	return z.ToZEC().String() + " ZEC"
}

// Sum adds up a list of amounts.
func Sum(amounts ...Zatoshi) (Zatoshi, error) {
	var (
		total Zatoshi
		err   error
	)
	for _, a := range amounts {
		total, err = total.Add(a)
		if err != nil {
			return 0, err
		}
	}

	return total, nil
}
