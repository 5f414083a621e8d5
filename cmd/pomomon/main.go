// Package main is the CLI entry point for pomomon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pomomon",
	Short: "Pomodoro timer that records what you actually worked on",
	Long: `pomomon runs a WORK/BREAK timer in the background, records the foreground
application every second into a CSV log, and kills blocked applications
while you are in a work phase.

Use 'pomomon summary' and 'pomomon apps' to see where the time went.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the timer daemon in the background",
	RunE:  runStart,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the timer daemon in the foreground",
	Long:  `Runs the daemon attached to the terminal, logging to stderr as well. Ctrl-C stops it cleanly.`,
	RunE:  runForeground,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the timer daemon",
	Long:  `Stops the daemon. The open interval is closed and the buffer flushed before it exits.`,
	RunE:  runStop,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	RunE:  runVersion,
}

// Hidden daemon command - used for self-exec when spawning the daemon
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	dataDir    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", infra.DefaultDataDir(),
		"Data directory (env "+infra.DataDirEnv+")")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func paths() infra.Paths {
	return infra.NewPaths(dataDir)
}

func newRegistry(p infra.Paths) *infra.FileRegistry {
	return infra.NewFileRegistry(p.RunDir, infra.NewProcessManager())
}

func runStart(cmd *cobra.Command, args []string) error {
	p := paths()
	if err := p.Ensure(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	registry := newRegistry(p)
	if alive, _ := registry.IsAlive(); alive {
		entry, _ := registry.Get()
		fmt.Printf("pomomon is already running (pid %d)\n", entry.PID)
		return nil
	}

	if err := daemon.StartDaemon(p.DataDir); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	entry, err := daemon.WaitForRunning(registry, 5*time.Second)
	if err != nil {
		return fmt.Errorf("%w (see %s)", err, filepath.Join(p.DataDir, "pomomon.error.log"))
	}

	fmt.Println("\n=== pomomon Started ===")
	fmt.Printf("PID: %d\n", entry.PID)
	fmt.Printf("Data: %s\n", p.DataDir)
	fmt.Println("Phase: Work")
	fmt.Println("=======================")
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	p := paths()
	pid, err := daemon.StopDaemon(newRegistry(p), infra.NewProcessManager(), 10*time.Second)
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("pomomon is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("pomomon stopped (pid %d)\n", pid)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	return serve(false)
}

func runForeground(cmd *cobra.Command, args []string) error {
	return serve(true)
}

// serve runs the daemon until SIGINT/SIGTERM.
func serve(foreground bool) error {
	p := paths()
	if err := p.Ensure(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := config.Load(p.DataDir)
	if err != nil {
		return err
	}

	logger := createLogger(p.DataDir, cfg.LogLevel, foreground)
	defer func() { _ = logger.Sync() }()

	lock, err := infra.AcquireInstanceLock(p.LockPath)
	if errors.Is(err, infra.ErrAlreadyRunning) {
		return fmt.Errorf("pomomon already running (pid %d)", infra.LockHolder(p.LockPath))
	}
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// Initialize infrastructure
	pm := infra.NewProcessManager()
	notifier := infra.NewDesktopNotifier(logger)
	defer notifier.Wait()

	clock := usecase.NewPhaseClock(usecase.ClockConfig{
		WorkDuration:  cfg.WorkDuration,
		BreakDuration: cfg.BreakDuration,
		AutoPhase:     cfg.AutoPhase,
		OvertimeMode:  cfg.OvertimeMode,
	}, notifier, logger)

	intervals := newIntervalLog(p, cfg, logger)
	tracker := usecase.NewTracker(infra.NewForegroundSampler(pm, logger), clock, intervals, logger)
	registry := infra.NewFileRegistry(p.RunDir, pm)

	var enforcer domain.Enforcer
	store, err := infra.OpenBlocklist(p.DataDir)
	if err != nil {
		logger.Warn("blocklist unavailable, blocking disabled", zap.Error(err))
	} else {
		defer store.Close()
		enforcer = usecase.NewEnforcer(pm, store, clock, notifier, cfg.ShowWarnings, logger)
	}

	runnerCfg := daemon.DefaultRunnerConfig()
	runnerCfg.SampleInterval = cfg.SampleInterval
	runnerCfg.FlushInterval = cfg.FlushInterval
	runnerCfg.AFKTimeout = cfg.AFKTimeout
	runnerCfg.ControlDir = p.ControlDir
	runnerCfg.ConfigDir = p.DataDir
	runnerCfg.AppVersion = Version

	runner := daemon.NewRunner(
		runnerCfg,
		clock,
		tracker,
		intervals,
		enforcer,
		registry,
		infra.NewIdleDetector(logger),
		infra.NewControlQueue(p.ControlDir, logger),
		func() (*config.Config, error) { return config.Load(p.DataDir) },
		logger,
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	return runner.Run(ctx)
}

func newIntervalLog(p infra.Paths, cfg *config.Config, logger *zap.Logger) *infra.CSVIntervalLog {
	return infra.NewCSVIntervalLog(infra.IntervalLogConfig{
		Path:            infra.ExpandHome(cfg.ResolveLogPath(p.DataDir)),
		Mode:            cfg.FlushMode,
		Retention:       cfg.Retention,
		CompactCooldown: cfg.CompactCooldown,
	}, logger)
}

func createLogger(dir, level string, foreground bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{filepath.Join(dir, "pomomon.log")}
	zc.ErrorOutputPaths = []string{filepath.Join(dir, "pomomon.error.log")}
	if foreground {
		zc.OutputPaths = append(zc.OutputPaths, "stderr")
		zc.ErrorOutputPaths = append(zc.ErrorOutputPaths, "stderr")
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zc.Level = lvl
	}

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		out, err := sonic.Marshal(versionInfo{Version, Commit, BuildTime})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("pomomon %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	return nil
}
