package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/usecase"
)

// memRegistry implements domain.DaemonRegistry in memory.
type memRegistry struct {
	mu          sync.Mutex
	entry       *domain.RegistryEntry
	publishes   int
	cleared     bool
	registerErr error
}

func (m *memRegistry) Register(entry domain.RegistryEntry) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = &entry
	return nil
}

func (m *memRegistry) Publish(snapshot domain.ClockSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return errors.New("daemon not registered")
	}
	m.entry.Clock = &snapshot
	m.publishes++
	return nil
}

func (m *memRegistry) Get() (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return nil, nil
	}
	e := *m.entry
	return &e, nil
}

func (m *memRegistry) IsAlive() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry != nil, nil
}

func (m *memRegistry) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	m.cleared = true
	return nil
}

func (m *memRegistry) GetRegistryPath() string { return "" }

func (m *memRegistry) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishes
}

func (m *memRegistry) wasCleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

type fixedSampler struct{ app, title string }

func (s fixedSampler) Active() (string, string, bool) { return s.app, s.title, s.app != "" }

type fixedIdle time.Duration

func (d fixedIdle) IdleTime() time.Duration { return time.Duration(d) }

// countingEnforcer implements domain.Enforcer and records warning toggles.
type countingEnforcer struct {
	calls    atomic.Int32
	warnings atomic.Bool
}

func (e *countingEnforcer) Enforce(ctx context.Context) (*domain.EnforcementResult, error) {
	e.calls.Add(1)
	return &domain.EnforcementResult{}, nil
}

func (e *countingEnforcer) SetShowWarnings(on bool) { e.warnings.Store(on) }

// steppingClock returns whole seconds advancing by one on every call.
type steppingClock struct {
	base time.Time
	n    atomic.Int64
}

func (c *steppingClock) Now() time.Time {
	return c.base.Add(time.Duration(c.n.Add(1)) * time.Second)
}

type runnerFixture struct {
	runner    *Runner
	clock     *usecase.PhaseClock
	intervals *infra.CSVIntervalLog
	registry  *memRegistry
	enforcer  *countingEnforcer
	queue     *infra.ControlQueue
	dir       string
}

func fastConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.SampleInterval = 5 * time.Millisecond
	cfg.FlushInterval = time.Hour // only the shutdown flush persists
	cfg.EnforceInterval = 5 * time.Millisecond
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.ControlPoll = 10 * time.Millisecond
	cfg.AppVersion = "test"
	return cfg
}

func newFixture(t *testing.T, cfg RunnerConfig, loader ConfigLoader) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	clock := usecase.NewPhaseClock(usecase.ClockConfig{
		WorkDuration:  25 * time.Minute,
		BreakDuration: 5 * time.Minute,
	}, nil, logger)
	intervals := infra.NewCSVIntervalLog(infra.IntervalLogConfig{
		Path:            filepath.Join(dir, "usage_log.csv"),
		Retention:       30 * 24 * time.Hour,
		CompactCooldown: time.Hour,
	}, logger)
	tracker := usecase.NewTracker(fixedSampler{"code", "main.go"}, clock, intervals, logger)
	registry := &memRegistry{}
	enforcer := &countingEnforcer{}
	queue := infra.NewControlQueue(filepath.Join(dir, "control"), logger)
	if cfg.ControlDir == "" {
		cfg.ControlDir = queue.Dir()
	}

	r := NewRunner(cfg, clock, tracker, intervals, enforcer, registry, fixedIdle(0), queue, loader, logger)
	sc := &steppingClock{base: time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)}
	r.now = sc.Now

	return &runnerFixture{
		runner:    r,
		clock:     clock,
		intervals: intervals,
		registry:  registry,
		enforcer:  enforcer,
		queue:     queue,
		dir:       dir,
	}
}

// start runs the runner in the background and returns a stop func that
// cancels it and returns Run's error.
func (f *runnerFixture) start(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool { return f.registry.publishCount() > 0 },
		2*time.Second, 5*time.Millisecond, "runner never published a heartbeat")

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("runner did not stop")
			return nil
		}
	}
}

func TestDefaultRunnerConfig(t *testing.T) {
	cfg := DefaultRunnerConfig()

	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, time.Second, cfg.SampleInterval)
	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
	assert.Equal(t, time.Second, cfg.EnforceInterval)
	assert.Equal(t, time.Second, cfg.HeartbeatInterval)
	assert.NotZero(t, cfg.ControlPoll)
	assert.NotZero(t, cfg.PID)
}

func TestRunner_FlushesEverythingOnShutdown(t *testing.T) {
	f := newFixture(t, fastConfig(), nil)
	stop := f.start(t)

	require.Eventually(t, func() bool { return f.intervals.Pending() >= 3 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Zero(t, f.intervals.Pending(), "buffer drained by the final flush")
	assert.True(t, f.registry.wasCleared())
	assert.Positive(t, f.enforcer.calls.Load())

	var records []domain.IntervalRecord
	require.NoError(t, f.intervals.ForEach(func(rec domain.IntervalRecord) error {
		records = append(records, rec)
		return nil
	}))
	require.NotEmpty(t, records)
	for i, rec := range records {
		assert.Equal(t, "code", rec.AppName)
		assert.Equal(t, domain.LabelWork, rec.Phase)
		assert.GreaterOrEqual(t, rec.Duration, int64(1))
		if i > 0 {
			assert.Equal(t, records[i-1].End, rec.Start, "intervals are contiguous")
		}
	}
}

func TestRunner_AppliesControlCommands(t *testing.T) {
	f := newFixture(t, fastConfig(), nil)
	stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	require.NoError(t, f.queue.Send(domain.ControlCommand{Op: domain.OpTogglePause}))
	assert.Eventually(t, func() bool { return f.clock.Snapshot().Paused },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.queue.Send(domain.ControlCommand{Op: domain.OpSetPhase, Phase: domain.PhaseBreak}))
	assert.Eventually(t, func() bool { return f.clock.Phase() == domain.PhaseBreak },
		2*time.Second, 5*time.Millisecond)

	entry, err := f.registry.Get()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "test", entry.AppVersion)
}

func TestRunner_Apply(t *testing.T) {
	f := newFixture(t, fastConfig(), nil)
	require.NoError(t, f.registry.Register(domain.RegistryEntry{PID: 1}))

	f.runner.apply(domain.ControlCommand{Op: domain.OpNextPhase})
	assert.Equal(t, domain.PhaseWork, f.clock.Phase(), "next refused while time remains")

	f.runner.apply(domain.ControlCommand{Op: domain.OpSetPhase, Phase: "lunch"})
	assert.Equal(t, domain.PhaseWork, f.clock.Phase(), "invalid phase ignored")

	f.runner.apply(domain.ControlCommand{Op: "reboot"})
	assert.Equal(t, domain.PhaseWork, f.clock.Phase())

	f.runner.apply(domain.ControlCommand{Op: domain.OpSetPhase, Phase: "BREAK"})
	assert.Equal(t, domain.PhaseBreak, f.clock.Phase())
	assert.Equal(t, 2, f.registry.publishCount(), "rejected commands do not publish")
}

func TestRunner_ReloadConfig(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, fastConfig(), func() (*config.Config, error) { return config.Load(dir) })

	cfg := config.Default()
	cfg.WorkDuration = 50 * time.Minute
	cfg.BreakDuration = 10 * time.Minute
	cfg.AutoPhase = true
	cfg.ShowWarnings = true
	cfg.AFKTimeout = time.Minute
	require.NoError(t, config.Save(dir, cfg))

	f.runner.reloadConfig()

	snap := f.clock.Snapshot()
	assert.Equal(t, int64(3000), snap.WorkDuration)
	assert.Equal(t, int64(600), snap.BreakDuration)
	assert.True(t, snap.AutoPhase)
	assert.True(t, f.enforcer.warnings.Load())
	assert.Equal(t, int64(time.Minute), f.runner.afkTimeout.Load())
}

func TestRunner_ReloadConfigKeepsStateOnError(t *testing.T) {
	f := newFixture(t, fastConfig(), func() (*config.Config, error) {
		return nil, errors.New("parse config: bad yaml")
	})

	f.runner.reloadConfig()

	assert.Equal(t, int64(1500), f.clock.Snapshot().WorkDuration)
}

func TestRunner_WatchesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig()
	cfg.ConfigDir = dir
	f := newFixture(t, cfg, func() (*config.Config, error) { return config.Load(dir) })
	stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	updated := config.Default()
	updated.WorkDuration = 40 * time.Minute
	// Rewrite until the watcher, started concurrently, has seen a change
	assert.Eventually(t, func() bool {
		_ = config.Save(dir, updated)
		return f.clock.Snapshot().WorkDuration == 2400
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunner_IsAFK(t *testing.T) {
	f := newFixture(t, fastConfig(), nil)

	f.runner.idle = fixedIdle(10 * time.Minute)
	assert.True(t, f.runner.isAFK())

	f.runner.idle = fixedIdle(time.Minute)
	assert.False(t, f.runner.isAFK())

	f.runner.idle = nil
	assert.False(t, f.runner.isAFK())
}

func TestRunner_RegisterFailureAborts(t *testing.T) {
	f := newFixture(t, fastConfig(), nil)
	f.registry.registerErr = errors.New("run dir read-only")

	err := f.runner.Run(context.Background())

	assert.EqualError(t, err, "run dir read-only")
}
