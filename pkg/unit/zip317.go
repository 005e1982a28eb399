// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

const (
	// MarginalFee is the ZIP-317 fee per logical action.
	MarginalFee Zatoshi = 5000

	// GraceActions is the number of logical actions every transaction is
	// charged for at minimum.
	GraceActions = 2

	// P2PKHStandardInputSize is the ZIP-317 reference size of a transparent
	// P2PKH input.
	P2PKHStandardInputSize = 150

	// P2PKHStandardOutputSize is the ZIP-317 reference size of a
	// transparent P2PKH output, which is the same as bitcoin's.
	P2PKHStandardOutputSize = txsizes.P2PKHOutputSize

	// MinShieldedOutputs is the number of outputs a shielded bundle is
	// padded to whenever it is present.
	MinShieldedOutputs = 2
)

// TxShape describes the parts of a transaction the conventional fee depends
// on.
type TxShape struct {
	// TransparentInputSizes holds the serialized size of each
	// transparent input.
	TransparentInputSizes []int

	// TransparentOutputSizes holds the serialized size of each
	// transparent output.
	TransparentOutputSizes []int

	SaplingSpends  int
	SaplingOutputs int

	OrchardSpends  int
	OrchardOutputs int
}

// LogicalActions returns the ZIP-317 logical action count of the shape.
func (s TxShape) LogicalActions() int {
	var inSize, outSize int
	for _, n := range s.TransparentInputSizes {
		inSize += n
	}
	for _, n := range s.TransparentOutputSizes {
		outSize += n
	}

	transparent := max(
		ceilDiv(inSize, P2PKHStandardInputSize),
		ceilDiv(outSize, P2PKHStandardOutputSize),
	)

	sapling := 0
	if s.SaplingSpends > 0 || s.SaplingOutputs > 0 {
		sapling = max(
			s.SaplingSpends, s.SaplingOutputs, MinShieldedOutputs,
		)
	}

	orchard := 0
	if s.OrchardSpends > 0 || s.OrchardOutputs > 0 {
		orchard = max(
			s.OrchardSpends, s.OrchardOutputs, MinShieldedOutputs,
		)
	}

	return transparent + sapling + orchard
}

// ZIP317Fee returns the conventional fee of a transaction with the given
// shape: MarginalFee * max(GraceActions, logical actions).
func ZIP317Fee(s TxShape) Zatoshi {
	actions := max(GraceActions, s.LogicalActions())
	return MarginalFee * Zatoshi(actions)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
