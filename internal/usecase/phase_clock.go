package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const notifyTitle = "Pomodoro Timer"

// ClockConfig holds the initial phase clock settings.
type ClockConfig struct {
	WorkDuration  time.Duration
	BreakDuration time.Duration
	AutoPhase     bool
	OvertimeMode  domain.OvertimeMode
}

// PhaseClock is the WORK/BREAK state machine advanced once per second.
// All state sits behind one mutex; critical sections never do I/O.
type PhaseClock struct {
	mu sync.Mutex

	phase         domain.Phase
	phaseDuration int64
	elapsed       int64
	paused        bool
	afk           bool // AFK result of the latest tick
	overtime      float64
	notified      bool
	autoPhase     bool
	workDuration  int64
	breakDuration int64
	overtimeMode  domain.OvertimeMode

	notifier domain.Notifier
	logger   *zap.Logger
}

// NewPhaseClock creates a clock in the WORK phase with a fresh timer.
func NewPhaseClock(cfg ClockConfig, notifier domain.Notifier, logger *zap.Logger) *PhaseClock {
	mode := cfg.OvertimeMode
	if mode == "" {
		mode = domain.OvertimePauseOnly
	}
	c := &PhaseClock{
		phase:         domain.PhaseWork,
		autoPhase:     cfg.AutoPhase,
		workDuration:  int64(cfg.WorkDuration / time.Second),
		breakDuration: int64(cfg.BreakDuration / time.Second),
		overtimeMode:  mode,
		notifier:      notifier,
		logger:        logger,
	}
	c.startPhaseTimerLocked(c.workDuration)
	return c
}

// Tick advances the clock by one second. isAFK is consulted once per tick.
func (c *PhaseClock) Tick(isAFK func() bool) {
	afk := isAFK != nil && isAFK()

	c.mu.Lock()
	c.afk = afk
	timerPaused := c.paused || (afk && c.phase == domain.PhaseWork)
	if !timerPaused {
		c.elapsed++
	}

	var message string
	switch {
	case timerPaused:
		c.overtime--

	case c.phase == domain.PhaseWork && c.elapsed >= c.workDuration:
		if c.overtimeMode == domain.OvertimeScaled && c.workDuration > 0 {
			c.overtime += float64(c.breakDuration) / float64(c.workDuration)
		}
		if !c.notified {
			message = "Work session complete! Take a break. Remember to transfer phases"
			if c.autoPhase {
				message = "Work session complete! Taking a break automatically."
			}
			c.notified = true
		}

	case c.phase == domain.PhaseBreak && c.elapsed >= c.breakDuration:
		if c.overtimeMode == domain.OvertimeScaled {
			c.overtime--
		}
		if !c.notified {
			message = "Break over! Time to get back to work. Remember to transfer phases"
			if c.autoPhase {
				message = "Break over! Starting next work session automatically."
			}
			c.notified = true
		}
	}
	phase := c.phase
	c.mu.Unlock()

	if message != "" {
		c.logger.Info("phase complete", zap.String("phase", string(phase)))
		if c.notifier != nil {
			c.notifier.Notify(notifyTitle, message)
		}
	}
}

// TimeRemaining returns max(0, phase_duration - time_elapsed) in seconds.
func (c *PhaseClock) TimeRemaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *PhaseClock) remainingLocked() int64 {
	if r := c.phaseDuration - c.elapsed; r > 0 {
		return r
	}
	return 0
}

// StartPhaseTimer restarts the current phase with the given target duration.
func (c *PhaseClock) StartPhaseTimer(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startPhaseTimerLocked(int64(d / time.Second))
}

func (c *PhaseClock) startPhaseTimerLocked(seconds int64) {
	c.phaseDuration = seconds
	c.elapsed = 0
	c.notified = false
}

func (c *PhaseClock) durationForLocked(p domain.Phase) int64 {
	if p == domain.PhaseBreak {
		return c.breakDuration
	}
	return c.workDuration
}

// NextPhase flips WORK<->BREAK. It refuses to skip a phase early and reports
// whether a transition happened.
func (c *PhaseClock) NextPhase() bool {
	c.mu.Lock()
	if c.remainingLocked() > 0 {
		c.mu.Unlock()
		return false
	}
	c.phase = c.phase.Next()
	c.startPhaseTimerLocked(c.durationForLocked(c.phase))
	phase := c.phase
	c.mu.Unlock()

	c.logger.Info("phase started", zap.String("phase", string(phase)))
	return true
}

// AdvanceIfDue runs the automatic transition when auto_phase is on and the
// current phase has no time left.
func (c *PhaseClock) AdvanceIfDue() bool {
	c.mu.Lock()
	due := c.autoPhase && c.remainingLocked() == 0
	c.mu.Unlock()
	if !due {
		return false
	}
	return c.NextPhase()
}

// SetPhase switches to p unconditionally and restarts its timer.
func (c *PhaseClock) SetPhase(p domain.Phase) {
	c.mu.Lock()
	c.phase = p
	c.startPhaseTimerLocked(c.durationForLocked(p))
	c.mu.Unlock()

	c.logger.Info("phase set manually", zap.String("phase", string(p)))
}

// SetDurations replaces the configured durations. The running phase restarts
// with its new duration, matching how a settings change is applied.
func (c *PhaseClock) SetDurations(work, brk time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	newWork, newBreak := int64(work/time.Second), int64(brk/time.Second)
	if newWork == c.workDuration && newBreak == c.breakDuration {
		return
	}
	c.workDuration = newWork
	c.breakDuration = newBreak
	c.startPhaseTimerLocked(c.durationForLocked(c.phase))
}

// SetAutoPhase toggles automatic phase transitions.
func (c *PhaseClock) SetAutoPhase(on bool) {
	c.mu.Lock()
	c.autoPhase = on
	c.mu.Unlock()
}

// TogglePause flips the manual pause flag and returns the new state.
func (c *PhaseClock) TogglePause() bool {
	c.mu.Lock()
	c.paused = !c.paused
	paused := c.paused
	c.mu.Unlock()

	c.logger.Info("pause toggled", zap.Bool("paused", paused))
	return paused
}

// Phase returns the current phase.
func (c *PhaseClock) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Overtime returns the signed overtime accumulator in seconds.
func (c *PhaseClock) Overtime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overtime
}

// IsUnscheduled reports whether time is currently neither work nor break:
// manually paused, or AFK during a work phase.
func (c *PhaseClock) IsUnscheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unscheduledLocked()
}

func (c *PhaseClock) unscheduledLocked() bool {
	return c.paused || (c.afk && c.phase == domain.PhaseWork)
}

// Snapshot returns a consistent copy of the clock state.
func (c *PhaseClock) Snapshot() domain.ClockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ClockSnapshot{
		Phase:         c.phase,
		PhaseDuration: c.phaseDuration,
		Elapsed:       c.elapsed,
		Remaining:     c.remainingLocked(),
		Overtime:      c.overtime,
		Paused:        c.paused,
		AFK:           c.afk,
		Unscheduled:   c.unscheduledLocked(),
		AutoPhase:     c.autoPhase,
		WorkDuration:  c.workDuration,
		BreakDuration: c.breakDuration,
		OvertimeMode:  c.overtimeMode,
	}
}

// isNotified reports whether the completion notification fired for this phase.
func (c *PhaseClock) isNotified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified
}
