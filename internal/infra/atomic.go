package infra

import (
	"fmt"
	"os"
	"path/filepath"
)

// renameFile is swapped in tests to simulate a failed replace.
var renameFile = os.Rename

// AtomicWrite writes data to a temporary file in the target directory, fsyncs
// it, then renames it over path. Readers see the old or the new content only.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("atomic write create tmp: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("atomic write chmod: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("atomic write fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomic write close: %w", err)
	}
	if err := renameFile(tmpPath, path); err != nil {
		return fmt.Errorf("atomic write rename: %w", err)
	}
	success = true

	// The rename already happened; a failed directory fsync only weakens durability.
	_ = FsyncDir(dir)
	return nil
}

// FsyncDir fsyncs a directory so a rename inside it is durable.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("fsync dir open: %w", err)
	}
	defer d.Close()
	return d.Sync()
}
