package domain

import (
	"context"
	"time"
)

// ForegroundSampler reports the currently active application.
// Implementations never fail: an undeterminable foreground yields ok=false.
type ForegroundSampler interface {
	Active() (appName, windowTitle string, ok bool)
}

// IdleDetector reports how long the user has been away from the keyboard.
// Implementations return 0 when idle time cannot be determined.
type IdleDetector interface {
	IdleTime() time.Duration
}

// Notifier delivers desktop notifications. Fire-and-forget: it must not block
// and must not surface delivery failures to the caller.
type Notifier interface {
	Notify(title, message string)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes whose name equals name (case-insensitive).
	FindByName(name string) ([]int, error)

	// NameOf returns the executable name of a PID.
	NameOf(pid int) (string, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// IntervalLog is the buffered, durable interval store.
type IntervalLog interface {
	// Init ensures the store directory and header exist. Idempotent.
	Init() error

	// LogEvent buffers one interval. Sub-second intervals are dropped.
	LogEvent(start, end time.Time, appName, windowTitle string, phase Label, paused bool)

	// Flush drains the buffer to durable storage.
	Flush() error

	// MaybeCompact prunes expired records, at most once per cooldown.
	MaybeCompact(now time.Time) (bool, error)

	// Compact prunes expired records unconditionally.
	Compact(now time.Time) error
}

// IntervalSource streams persisted records for read-side aggregation.
type IntervalSource interface {
	// ForEach calls fn for every well-formed record. A missing store is empty.
	ForEach(fn func(IntervalRecord) error) error
}

// BlocklistStore persists the applications blocked during work phases.
type BlocklistStore interface {
	// Add inserts a normalized app name. Adding an existing name is a no-op.
	Add(name string) error

	// Remove deletes a name. Removing a missing name is a no-op.
	Remove(name string) error

	// List returns all blocked apps ordered by name.
	List() ([]BlockedApp, error)

	// RecordKill stores one enforcement kill for history.
	RecordKill(name string, pid int, at time.Time) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// DaemonRegistry provides daemon discovery and state publication.
// Implementation: JSON file in the run directory.
type DaemonRegistry interface {
	// Register records the running daemon.
	Register(entry RegistryEntry) error

	// Publish updates the heartbeat and clock snapshot.
	Publish(snapshot ClockSnapshot) error

	// Get returns the registry state, or nil if no daemon registered.
	Get() (*RegistryEntry, error)

	// IsAlive checks whether the registered daemon process is running.
	IsAlive() (bool, error)

	// Clear removes the registry file.
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// Enforcer kills blocked applications while the clock is in a work phase.
type Enforcer interface {
	Enforce(ctx context.Context) (*EnforcementResult, error)
}
