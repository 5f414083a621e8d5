package infra

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "POMOMON_HOME"

// Paths holds every on-disk location the daemon and CLI share.
type Paths struct {
	DataDir    string // config, interval log, blocklist, key, logs
	RunDir     string // registry, lock, control queue
	ControlDir string // pending control commands
	LockPath   string // single-instance lock
}

// DefaultDataDir returns $POMOMON_HOME or ~/.pomomon.
func DefaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return ExpandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pomomon"
	}
	return filepath.Join(home, ".pomomon")
}

// NewPaths derives all locations from a data directory.
func NewPaths(dataDir string) Paths {
	dataDir = ExpandHome(dataDir)
	runDir := filepath.Join(dataDir, "run")
	return Paths{
		DataDir:    dataDir,
		RunDir:     runDir,
		ControlDir: filepath.Join(runDir, "control"),
		LockPath:   filepath.Join(runDir, "pomomon.lock"),
	}
}

// Ensure creates the data and run directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.DataDir, p.RunDir, p.ControlDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
