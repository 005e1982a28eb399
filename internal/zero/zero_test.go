package zero

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBytes(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOf(rapid.Byte()).Draw(t, "b")
		n := len(b)

		Bytes(b)
		require.Len(t, b, n)
		require.Equal(t, make([]byte, n), b)
	})
}

func TestBytea32(t *testing.T) {
	t.Parallel()

	var b [32]byte
	copy(b[:], bytes.Repeat([]byte{0xff}, 32))

	Bytea32(&b)
	require.Equal(t, [32]byte{}, b)
}
