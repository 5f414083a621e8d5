// Package daemon runs the pomomon background loops.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/usecase"
)

// RunnerConfig holds loop cadences and identity of the daemon.
type RunnerConfig struct {
	TickInterval      time.Duration // phase clock tick, one second of phase time per tick
	SampleInterval    time.Duration // foreground sampling
	FlushInterval     time.Duration // buffer flush + compaction check
	EnforceInterval   time.Duration // blocklist enforcement
	HeartbeatInterval time.Duration // registry snapshot
	ControlPoll       time.Duration // control directory rescan when no event arrives
	AFKTimeout        time.Duration // idle time that counts as AFK

	ControlDir string // watched for control commands; empty disables
	ConfigDir  string // watched for config.yaml changes; empty disables

	PID        int
	AppVersion string
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		TickInterval:      time.Second,
		SampleInterval:    time.Second,
		FlushInterval:     10 * time.Second,
		EnforceInterval:   time.Second,
		HeartbeatInterval: time.Second,
		ControlPoll:       2 * time.Second,
		AFKTimeout:        5 * time.Minute,
		PID:               os.Getpid(),
	}
}

// ControlSource yields pending control commands.
type ControlSource interface {
	Drain() ([]domain.ControlCommand, error)
}

// ConfigLoader reads the current configuration.
type ConfigLoader func() (*config.Config, error)

// warningToggler is implemented by enforcers whose notifications can be switched.
type warningToggler interface {
	SetShowWarnings(on bool)
}

// Runner owns the periodic loops: tick, sample, flush, enforce, heartbeat,
// control and config. Each loop has its own ticker and observes one context.
type Runner struct {
	config     RunnerConfig
	clock      *usecase.PhaseClock
	tracker    *usecase.Tracker
	intervals  domain.IntervalLog
	enforcer   domain.Enforcer
	registry   domain.DaemonRegistry
	idle       domain.IdleDetector
	control    ControlSource
	loadConfig ConfigLoader
	logger     *zap.Logger
	now        func() time.Time

	afkTimeout atomic.Int64
}

// NewRunner creates a runner. enforcer, control and loadConfig may be nil.
func NewRunner(
	cfg RunnerConfig,
	clock *usecase.PhaseClock,
	tracker *usecase.Tracker,
	intervals domain.IntervalLog,
	enforcer domain.Enforcer,
	registry domain.DaemonRegistry,
	idle domain.IdleDetector,
	control ControlSource,
	loadConfig ConfigLoader,
	logger *zap.Logger,
) *Runner {
	r := &Runner{
		config:     cfg,
		clock:      clock,
		tracker:    tracker,
		intervals:  intervals,
		enforcer:   enforcer,
		registry:   registry,
		idle:       idle,
		control:    control,
		loadConfig: loadConfig,
		logger:     logger,
		now:        time.Now,
	}
	r.afkTimeout.Store(int64(cfg.AFKTimeout))
	return r
}

// Run starts every loop and blocks until ctx is canceled. On the way out the
// open interval is closed and the buffer is flushed.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.intervals.Init(); err != nil {
		r.logger.Error("failed to initialise interval log", zap.Error(err))
		return err
	}

	if err := r.registry.Register(domain.RegistryEntry{
		PID:        r.config.PID,
		AppVersion: r.config.AppVersion,
	}); err != nil {
		r.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}

	r.logger.Info("pomomon daemon started",
		zap.Int("pid", r.config.PID),
		zap.String("phase", string(r.clock.Phase())))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.every(gctx, r.config.TickInterval, r.tick)
		return nil
	})
	g.Go(func() error {
		// Whole-second boundaries keep ticker jitter from producing 0.999s intervals
		r.every(gctx, r.config.SampleInterval, func() { r.tracker.Step(r.now().Truncate(time.Second)) })
		return nil
	})
	g.Go(func() error {
		r.every(gctx, r.config.FlushInterval, r.flush)
		return nil
	})
	g.Go(func() error {
		r.every(gctx, r.config.HeartbeatInterval, r.heartbeat)
		return nil
	})
	if r.enforcer != nil {
		g.Go(func() error {
			r.every(gctx, r.config.EnforceInterval, func() { r.enforce(gctx) })
			return nil
		})
	}
	if r.control != nil {
		g.Go(func() error {
			r.watchControl(gctx)
			return nil
		})
	}
	if r.loadConfig != nil && r.config.ConfigDir != "" {
		g.Go(func() error {
			r.watchConfig(gctx)
			return nil
		})
	}

	err := g.Wait()

	r.shutdown()
	return err
}

// every calls fn on each tick until ctx is done.
func (r *Runner) every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (r *Runner) tick() {
	r.clock.Tick(r.isAFK)
	if r.clock.AdvanceIfDue() {
		r.logger.Info("phase advanced automatically", zap.String("phase", string(r.clock.Phase())))
	}
}

func (r *Runner) isAFK() bool {
	if r.idle == nil {
		return false
	}
	return r.idle.IdleTime() >= time.Duration(r.afkTimeout.Load())
}

func (r *Runner) flush() {
	if err := r.intervals.Flush(); err != nil {
		r.logger.Warn("flush failed, records kept for retry", zap.Error(err))
	}
	if _, err := r.intervals.MaybeCompact(r.now()); err != nil {
		r.logger.Warn("compaction failed", zap.Error(err))
	}
}

func (r *Runner) heartbeat() {
	if err := r.registry.Publish(r.clock.Snapshot()); err != nil {
		r.logger.Warn("failed to publish heartbeat", zap.Error(err))
	}
}

func (r *Runner) enforce(ctx context.Context) {
	result, err := r.enforcer.Enforce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("enforcement failed", zap.Error(err))
		}
		return
	}
	if len(result.KilledPIDs) > 0 {
		r.logger.Info("enforcement completed",
			zap.Int("processes_killed", len(result.KilledPIDs)),
			zap.Strings("apps", result.KilledApps))
	}
}

// watchControl applies control commands as they arrive. fsnotify wakes it
// early; the poll ticker covers platforms or filesystems without events.
func (r *Runner) watchControl(ctx context.Context) {
	var events <-chan string
	if r.config.ControlDir != "" {
		if err := os.MkdirAll(r.config.ControlDir, 0700); err != nil {
			r.logger.Warn("control directory unavailable", zap.Error(err))
		} else if w, err := infra.NewDirWatcher(r.config.ControlDir, infra.MatchExt(".json"), r.logger); err != nil {
			r.logger.Warn("control watcher unavailable, polling only", zap.Error(err))
		} else {
			defer w.Close()
			events = w.Events()
		}
	}

	poll := time.NewTicker(r.config.ControlPoll)
	defer poll.Stop()

	r.drainControl()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.drainControl()
		case <-poll.C:
			r.drainControl()
		}
	}
}

func (r *Runner) drainControl() {
	cmds, err := r.control.Drain()
	if err != nil {
		r.logger.Warn("failed to read control commands", zap.Error(err))
		return
	}
	for _, cmd := range cmds {
		r.apply(cmd)
	}
}

// apply executes one control command.
func (r *Runner) apply(cmd domain.ControlCommand) {
	switch cmd.Op {
	case domain.OpTogglePause:
		r.clock.TogglePause()
	case domain.OpNextPhase:
		if !r.clock.NextPhase() {
			r.logger.Info("next phase refused, time remaining",
				zap.Int64("remaining_secs", r.clock.TimeRemaining()))
		}
	case domain.OpSetPhase:
		p, err := domain.ParsePhase(string(cmd.Phase))
		if err != nil {
			r.logger.Warn("invalid phase in control command", zap.Error(err))
			return
		}
		r.clock.SetPhase(p)
	case domain.OpCompact:
		r.flush()
		if err := r.intervals.Compact(r.now()); err != nil {
			r.logger.Warn("requested compaction failed", zap.Error(err))
		}
	default:
		r.logger.Warn("unknown control command", zap.String("op", string(cmd.Op)))
		return
	}
	// Publish right away so the CLI sees the effect without waiting a heartbeat
	r.heartbeat()
}

// watchConfig reloads config.yaml whenever it is replaced or written.
func (r *Runner) watchConfig(ctx context.Context) {
	w, err := infra.NewDirWatcher(r.config.ConfigDir, infra.MatchBase(config.FileName), r.logger)
	if err != nil {
		r.logger.Warn("config watcher unavailable, live reload disabled", zap.Error(err))
		return
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-w.Events():
			if !ok {
				return
			}
			r.logger.Debug("config changed", zap.String("file", filepath.Base(name)))
			r.reloadConfig()
		}
	}
}

// reloadConfig applies the live-reloadable settings.
func (r *Runner) reloadConfig() {
	cfg, err := r.loadConfig()
	if err != nil {
		r.logger.Warn("ignoring invalid config", zap.Error(err))
		return
	}
	r.applyConfig(cfg)
}

func (r *Runner) applyConfig(cfg *config.Config) {
	r.clock.SetDurations(cfg.WorkDuration, cfg.BreakDuration)
	r.clock.SetAutoPhase(cfg.AutoPhase)
	r.afkTimeout.Store(int64(cfg.AFKTimeout))
	if t, ok := r.enforcer.(warningToggler); ok {
		t.SetShowWarnings(cfg.ShowWarnings)
	}
	r.logger.Info("config reloaded",
		zap.Duration("work", cfg.WorkDuration),
		zap.Duration("break", cfg.BreakDuration),
		zap.Bool("auto_phase", cfg.AutoPhase))
}

// shutdown closes the open interval and persists everything still buffered.
func (r *Runner) shutdown() {
	r.tracker.Close(r.now().Truncate(time.Second))
	if err := r.intervals.Flush(); err != nil {
		r.logger.Error("final flush failed, buffered records lost", zap.Error(err))
	}
	if err := r.registry.Clear(); err != nil {
		r.logger.Warn("failed to clear registry", zap.Error(err))
	}
	r.logger.Info("pomomon daemon stopped")
}
