package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const controlExt = ".json"

// ControlQueue passes commands from CLI invocations to the daemon as one JSON
// file per command in the control directory. Files are written atomically and
// consumed in name order, which is issue order.
type ControlQueue struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewControlQueue creates a queue rooted at dir.
func NewControlQueue(dir string, logger *zap.Logger) *ControlQueue {
	return &ControlQueue{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the queue directory.
func (q *ControlQueue) Dir() string {
	return q.dir
}

// Send enqueues a command.
func (q *ControlQueue) Send(cmd domain.ControlCommand) error {
	if err := os.MkdirAll(q.dir, 0700); err != nil {
		return fmt.Errorf("failed to create control directory: %w", err)
	}
	now := q.now()
	if cmd.IssuedAt == 0 {
		cmd.IssuedAt = now.Unix()
	}
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%020d-%d%s", now.UnixNano(), os.Getpid(), controlExt)
	return AtomicWrite(filepath.Join(q.dir, name), data, 0600)
}

// Drain returns every pending command in issue order and removes the files.
// Unreadable commands are logged and discarded.
func (q *ControlQueue) Drain() ([]domain.ControlCommand, error) {
	entries, err := os.ReadDir(q.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read control directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || filepath.Ext(n) != controlExt {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	var cmds []domain.ControlCommand
	for _, n := range names {
		path := filepath.Join(q.dir, n)
		data, err := os.ReadFile(path)
		if err != nil {
			q.logger.Warn("failed to read control command", zap.String("file", n), zap.Error(err))
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			q.logger.Warn("failed to remove control command", zap.String("file", n), zap.Error(err))
		}

		var cmd domain.ControlCommand
		if err := sonic.Unmarshal(data, &cmd); err != nil {
			q.logger.Warn("discarding malformed control command", zap.String("file", n), zap.Error(err))
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
