package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// ErrNotRunning is returned when no live daemon is registered.
var ErrNotRunning = errors.New("pomomon daemon is not running")

// pollInterval is how often Start/Stop re-check the registry.
const pollInterval = 100 * time.Millisecond

// StartDaemon spawns a detached daemon process using the current executable.
func StartDaemon(dataDir string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, dataDir)
}

// StartDaemonWithPath spawns a detached daemon from a specific binary.
func StartDaemonWithPath(binaryPath, dataDir string) error {
	return daemonCommand(binaryPath, dataDir).Start()
}

// daemonCommand builds the hidden self-exec: pomomon daemon --data-dir <dir>
func daemonCommand(binaryPath, dataDir string) *exec.Cmd {
	cmd := exec.Command(binaryPath, "daemon", "--data-dir", dataDir)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - the daemon logs through zap to its own files
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd
}

// WaitForRunning polls the registry until a live daemon is registered.
func WaitForRunning(registry domain.DaemonRegistry, timeout time.Duration) (*domain.RegistryEntry, error) {
	deadline := time.Now().Add(timeout)
	for {
		if alive, _ := registry.IsAlive(); alive {
			return registry.Get()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("daemon did not register within %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

// StopDaemon sends SIGTERM to the registered daemon and waits for it to exit.
// The daemon closes its open interval and flushes before exiting.
func StopDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager, timeout time.Duration) (int, error) {
	alive, err := registry.IsAlive()
	if err != nil {
		return 0, err
	}
	if !alive {
		return 0, ErrNotRunning
	}
	entry, err := registry.Get()
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, ErrNotRunning
	}

	if err := syscall.Kill(entry.PID, syscall.SIGTERM); err != nil {
		return entry.PID, fmt.Errorf("signal daemon %d: %w", entry.PID, err)
	}

	deadline := time.Now().Add(timeout)
	for pm.IsRunning(entry.PID) {
		if time.Now().After(deadline) {
			return entry.PID, fmt.Errorf("daemon %d still running after %s", entry.PID, timeout)
		}
		time.Sleep(pollInterval)
	}
	return entry.PID, nil
}
