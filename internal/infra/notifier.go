package infra

import (
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// DesktopNotifier implements domain.Notifier with notify-send on Linux and
// osascript on macOS. Each notification is delivered on its own goroutine.
type DesktopNotifier struct {
	cmdRunner CommandRunner
	goos      string
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewDesktopNotifier creates a notifier for the running platform.
func NewDesktopNotifier(logger *zap.Logger) *DesktopNotifier {
	return NewDesktopNotifierWithDeps(&RealCommandRunner{}, runtime.GOOS, logger)
}

// NewDesktopNotifierWithDeps creates a notifier with injectable dependencies (for testing)
func NewDesktopNotifierWithDeps(cmdRunner CommandRunner, goos string, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{
		cmdRunner: cmdRunner,
		goos:      goos,
		logger:    logger,
	}
}

// Notify shows a desktop notification without blocking the caller.
// Delivery failures are logged at debug level and otherwise dropped.
func (n *DesktopNotifier) Notify(title, message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.deliver(title, message); err != nil {
			n.logger.Debug("notification not delivered",
				zap.String("title", title),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every pending notification finished.
func (n *DesktopNotifier) Wait() {
	n.wg.Wait()
}

func (n *DesktopNotifier) deliver(title, message string) error {
	switch n.goos {
	case "linux":
		return n.cmdRunner.Run("notify-send", "--app-name=pomomon", title, message)
	case "darwin":
		script := "display notification " + appleScriptString(message) +
			" with title " + appleScriptString(title)
		return n.cmdRunner.Run("osascript", "-e", script)
	default:
		n.logger.Info("notification", zap.String("title", title), zap.String("message", message))
		return nil
	}
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Ensure DesktopNotifier implements domain.Notifier.
var _ domain.Notifier = (*DesktopNotifier)(nil)
