// Package policy holds the blocklist rules: which names may be blocked and
// which presets expand to which process names.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProtected is returned when a critical system process is added to the blocklist.
var ErrProtected = errors.New("protected system process")

// protectedApps are never killed, whatever the blocklist says.
var protectedApps = map[string]struct{}{
	"explorer.exe": {},
	"taskmgr.exe":  {},
	"svchost.exe":  {},
	"csrss.exe":    {},
	"launchd":      {},
	"kernel_task":  {},
	"windowserver": {},
	"loginwindow":  {},
	"systemd":      {},
	"init":         {},
	"xorg":         {},
	"gnome-shell":  {},
	"pomomon":      {},
}

// Preset is a named group of process names, such as every process Steam spawns.
type Preset interface {
	// ID returns the unique identifier used on the command line (e.g., "steam").
	ID() string

	// Name returns a human-readable name for display.
	Name() string

	// ProcessNames returns the process names to block.
	ProcessNames() []string
}

// Normalize returns the canonical blocklist form of a process name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsProtected reports whether name is a critical process that must never be killed.
func IsProtected(name string) bool {
	_, ok := protectedApps[Normalize(name)]
	return ok
}

// ProtectedApps returns the protected process names.
func ProtectedApps() []string {
	names := make([]string, 0, len(protectedApps))
	for n := range protectedApps {
		names = append(names, n)
	}
	return names
}

// Validate checks that name can be added to the blocklist and returns its
// normalized form.
func Validate(name string) (string, error) {
	n := Normalize(name)
	if n == "" {
		return "", errors.New("app name is empty")
	}
	if strings.ContainsAny(n, "/\\") {
		return "", fmt.Errorf("%q looks like a path, use the process name", name)
	}
	if IsProtected(n) {
		return "", fmt.Errorf("%q: %w", name, ErrProtected)
	}
	return n, nil
}
