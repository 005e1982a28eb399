package prompt

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromptListBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "\n", want: false},
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "maybe\nno\n", want: false},
	}
	for _, test := range tests {
		r := bufio.NewReader(strings.NewReader(test.input))
		got, err := promptListBool(r, "Continue?", "no")
		require.NoError(t, err, test.input)
		require.Equal(t, test.want, got, test.input)
	}
}

func TestBirthdayHeight(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(strings.NewReader("\n"))
	height, err := BirthdayHeight(r, 100, 150)
	require.NoError(t, err)
	require.Equal(t, uint32(150), height)

	r = bufio.NewReader(strings.NewReader("abc\n50\n120\n"))
	height, err = BirthdayHeight(r, 100, 150)
	require.NoError(t, err)
	require.Equal(t, uint32(120), height)

	r = bufio.NewReader(strings.NewReader("abc"))
	_, err = BirthdayHeight(r, 100, 150)
	require.Error(t, err)
}

func TestSeedGenerated(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(strings.NewReader("no\nnot yet\nOK\n"))
	seed, restored, err := Seed(r)
	require.NoError(t, err)
	require.False(t, restored)
	require.Len(t, seed, RecommendedSeedLen)
}
