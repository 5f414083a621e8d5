package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const (
	registryFileName = "daemon.json"
	registryVersion  = 1
)

// FileRegistry implements domain.DaemonRegistry using a JSON file in the run
// directory. The daemon rewrites it on every heartbeat; CLI commands read it.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
	now            func() time.Time

	mu    sync.Mutex
	entry *domain.RegistryEntry
}

// NewFileRegistry creates a registry inside runDir.
func NewFileRegistry(runDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(runDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
		now:            time.Now,
	}
}

// GetRegistryPath returns the registry file path.
func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register records the running daemon, replacing any previous entry.
func (r *FileRegistry) Register(entry domain.RegistryEntry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	// File lock serialises writers from different processes
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	entry.Version = registryVersion
	if entry.StartedAt == 0 {
		entry.StartedAt = r.now().Unix()
	}
	entry.LastHeartbeat = r.now().Unix()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.atomicWrite(&entry); err != nil {
		return err
	}
	r.entry = &entry
	return nil
}

// Publish refreshes the heartbeat and stores the latest clock snapshot.
func (r *FileRegistry) Publish(snapshot domain.ClockSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry == nil {
		entry, err := r.read()
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("daemon not registered")
		}
		r.entry = entry
	}

	updated := *r.entry
	updated.LastHeartbeat = r.now().Unix()
	updated.Clock = &snapshot
	if err := r.atomicWrite(&updated); err != nil {
		return err
	}
	r.entry = &updated
	return nil
}

// Get returns the registry state, or nil if no daemon registered.
func (r *FileRegistry) Get() (*domain.RegistryEntry, error) {
	return r.read()
}

// IsAlive checks if the registered daemon is running via PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	entry, err := r.read()
	if err != nil {
		return false, err
	}
	if entry == nil || entry.PID == 0 {
		return false, nil // Not registered = not alive
	}
	return r.processManager.IsRunning(entry.PID), nil
}

// Clear removes the registry file.
func (r *FileRegistry) Clear() error {
	r.mu.Lock()
	r.entry = nil
	r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *FileRegistry) read() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt registry %s: %w", r.path, err)
	}
	return &entry, nil
}

func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return err
	}
	return AtomicWrite(r.path, data, 0600)
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
