// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestZIP317Fee checks the conventional fee against known transaction
// shapes.
func TestZIP317Fee(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		shape    TxShape
		expected Zatoshi
	}{
		{
			name:     "empty",
			expected: 10_000,
		},
		{
			name:     "one sapling spend with payment and change",
			shape:    TxShape{SaplingSpends: 1, SaplingOutputs: 2},
			expected: 10_000,
		},
		{
			name:     "single sapling output is padded",
			shape:    TxShape{SaplingOutputs: 1},
			expected: 10_000,
		},
		{
			name:     "three orchard spends",
			shape:    TxShape{OrchardSpends: 3, OrchardOutputs: 1},
			expected: 15_000,
		},
		{
			name: "sapling spend to transparent output",
			shape: TxShape{
				SaplingSpends: 1,
				TransparentOutputSizes: []int{
					P2PKHStandardOutputSize,
				},
			},
			expected: 15_000,
		},
		{
			name: "two transparent inputs",
			shape: TxShape{
				TransparentInputSizes: []int{
					P2PKHStandardInputSize,
					P2PKHStandardInputSize,
				},
				TransparentOutputSizes: []int{
					P2PKHStandardOutputSize,
				},
			},
			expected: 10_000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, ZIP317Fee(tc.shape))
		})
	}
}
