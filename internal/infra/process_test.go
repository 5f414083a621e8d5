package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessManager_NameOfAndFindByName(t *testing.T) {
	pm := NewProcessManager()
	self := pm.GetCurrentPID()
	assert.Equal(t, os.Getpid(), self)
	assert.True(t, pm.IsRunning(self))

	name, err := pm.NameOf(self)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	pids, err := pm.FindByName(name)
	require.NoError(t, err)
	assert.Contains(t, pids, self)

	// exact match only
	pids, err = pm.FindByName(name[:len(name)-1] + "#")
	require.NoError(t, err)
	assert.NotContains(t, pids, self)
}
