package cfgutil

import (
	"os"
	"path/filepath"
	"testing"

	flags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.db")

	exists, err := FileExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, os.WriteFile(path, nil, 0600))
	exists, err = FileExists(path)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = FileExists(dir)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestExplicitString(t *testing.T) {
	t.Parallel()

	type options struct {
		Cache *ExplicitString `long:"blockcache"`
	}

	tests := []struct {
		name     string
		args     []string
		want     string
		explicit bool
	}{{
		name: "default",
		want: "default.sqlite",
	}, {
		name:     "set",
		args:     []string{"--blockcache=/tmp/cache.sqlite"},
		want:     "/tmp/cache.sqlite",
		explicit: true,
	}, {
		name:     "set to default",
		args:     []string{"--blockcache=default.sqlite"},
		want:     "default.sqlite",
		explicit: true,
	}}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			opts := options{Cache: NewExplicitString("default.sqlite")}
			_, err := flags.NewParser(&opts, flags.None).ParseArgs(
				test.args,
			)
			require.NoError(t, err)
			require.Equal(t, test.want, opts.Cache.Value)
			require.Equal(t, test.explicit, opts.Cache.ExplicitlySet())
		})
	}
}
