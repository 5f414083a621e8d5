package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// TestDaemonCommand_Detached verifies the self-exec arguments and session detach.
func TestDaemonCommand_Detached(t *testing.T) {
	cmd := daemonCommand("/usr/local/bin/pomomon", "/home/u/.pomomon")

	assert.Equal(t, "/usr/local/bin/pomomon", cmd.Path)
	assert.Equal(t, []string{"/usr/local/bin/pomomon", "daemon", "--data-dir", "/home/u/.pomomon"}, cmd.Args)
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setsid)
	assert.Nil(t, cmd.Stdout)
	assert.Nil(t, cmd.Stderr)
}

// TestWaitForRunning_ReturnsEntry verifies a registered daemon is returned at once.
func TestWaitForRunning_ReturnsEntry(t *testing.T) {
	reg := &memRegistry{}
	require.NoError(t, reg.Register(domain.RegistryEntry{PID: 4242}))

	entry, err := WaitForRunning(reg, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 4242, entry.PID)
}

// TestWaitForRunning_Timeout verifies the wait gives up.
func TestWaitForRunning_Timeout(t *testing.T) {
	_, err := WaitForRunning(&memRegistry{}, 150*time.Millisecond)
	assert.Error(t, err)
}

type stubProcessManager struct{ running bool }

func (s stubProcessManager) FindByName(string) ([]int, error) { return nil, nil }
func (s stubProcessManager) NameOf(int) (string, error)       { return "", nil }
func (s stubProcessManager) Kill(int) error                   { return nil }
func (s stubProcessManager) IsRunning(int) bool               { return s.running }
func (s stubProcessManager) GetCurrentPID() int               { return 1 }

// TestStopDaemon_NotRunning verifies stop reports a missing daemon.
func TestStopDaemon_NotRunning(t *testing.T) {
	_, err := StopDaemon(&memRegistry{}, stubProcessManager{}, time.Second)
	assert.True(t, errors.Is(err, ErrNotRunning))
}
