// Package usecase contains application business logic.
package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/policy"
)

// WarningCooldown is the minimum gap between two kill notifications for one app.
const WarningCooldown = 5 * time.Second

// EnforcerImpl implements domain.Enforcer.
type EnforcerImpl struct {
	processManager domain.ProcessManager
	blocklist      domain.BlocklistStore
	clock          PhaseSource
	notifier       domain.Notifier
	logger         *zap.Logger
	now            func() time.Time

	showWarnings atomic.Bool

	mu          sync.Mutex
	lastWarning map[string]time.Time
}

// NewEnforcer creates a blocklist enforcer that only acts during WORK.
func NewEnforcer(
	pm domain.ProcessManager,
	store domain.BlocklistStore,
	clock PhaseSource,
	notifier domain.Notifier,
	showWarnings bool,
	logger *zap.Logger,
) *EnforcerImpl {
	e := &EnforcerImpl{
		processManager: pm,
		blocklist:      store,
		clock:          clock,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
		lastWarning:    make(map[string]time.Time),
	}
	e.showWarnings.Store(showWarnings)
	return e
}

// SetShowWarnings toggles kill notifications.
func (e *EnforcerImpl) SetShowWarnings(on bool) {
	e.showWarnings.Store(on)
}

// Enforce kills every running process on the blocklist. Outside WORK it
// returns a skipped result.
func (e *EnforcerImpl) Enforce(ctx context.Context) (*domain.EnforcementResult, error) {
	start := e.now()
	result := &domain.EnforcementResult{
		KilledPIDs: make([]int, 0),
		KilledApps: make([]string, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}

	if e.clock.Phase() != domain.PhaseWork {
		result.Skipped = true
		return result, nil
	}

	apps, err := e.blocklist.List()
	if err != nil {
		return nil, err
	}

	self := e.processManager.GetCurrentPID()
	for _, app := range apps {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if policy.IsProtected(app.Name) {
			e.logger.Warn("refusing to kill protected process",
				zap.String("app", app.Name))
			continue
		}

		pids, err := e.processManager.FindByName(app.Name)
		if err != nil {
			e.logger.Warn("failed to find processes",
				zap.String("app", app.Name),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		killed := false
		for _, pid := range pids {
			if pid == self {
				continue
			}
			if err := e.processManager.Kill(pid); err != nil {
				e.logger.Warn("failed to kill process",
					zap.Int("pid", pid),
					zap.Error(err))
				result.Errors = append(result.Errors, err)
				continue
			}
			e.logger.Info("killed blocked process",
				zap.String("app", app.Name),
				zap.Int("pid", pid))
			result.KilledPIDs = append(result.KilledPIDs, pid)
			killed = true

			if err := e.blocklist.RecordKill(app.Name, pid, start); err != nil {
				e.logger.Debug("failed to record kill", zap.Error(err))
			}
		}

		if killed {
			result.KilledApps = append(result.KilledApps, app.Name)
			e.warn(app.Name, start)
		}
	}

	return result, nil
}

// warn notifies about a kill at most once per WarningCooldown per app.
func (e *EnforcerImpl) warn(app string, now time.Time) {
	if !e.showWarnings.Load() || e.notifier == nil {
		return
	}

	e.mu.Lock()
	last, seen := e.lastWarning[app]
	due := !seen || now.Sub(last) > WarningCooldown
	if due {
		e.lastWarning[app] = now
	}
	e.mu.Unlock()

	if due {
		e.notifier.Notify("App Blocked", app+" was blocked and closed.")
	}
}

// Ensure EnforcerImpl implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcerImpl)(nil)
