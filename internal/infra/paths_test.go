package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/.pomomon", filepath.Join(home, ".pomomon")},
		{"/var/lib/pomomon", "/var/lib/pomomon"},
		{"relative/~dir", "relative/~dir"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.in), tt.in)
	}
}

func TestDefaultDataDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)
	assert.Equal(t, dir, DefaultDataDir())

	t.Setenv(DataDirEnv, "")
	assert.Equal(t, ".pomomon", filepath.Base(DefaultDataDir()))
}

func TestPaths_Ensure(t *testing.T) {
	p := NewPaths(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, p.Ensure())

	for _, dir := range []string{p.DataDir, p.RunDir, p.ControlDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, p.RunDir, filepath.Dir(p.LockPath))
}
