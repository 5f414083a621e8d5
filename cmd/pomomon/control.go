package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
)

// staleAfter marks a heartbeat as stale in status output.
const staleAfter = 10 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current phase and timer",
	Long:  `Shows the phase, remaining time, overtime and pause/AFK state published by the daemon.`,
	RunE:  runStatus,
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause or resume the timer",
	Long:  `Toggles the pause flag. Time spent paused is logged as unscheduled and drains overtime.`,
	Args:  cobra.NoArgs,
	RunE:  runPause,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Move to the next phase once the current one is complete",
	Args:  cobra.NoArgs,
	RunE:  runNext,
}

var phaseCmd = &cobra.Command{
	Use:       "phase work|break",
	Short:     "Switch to a phase immediately",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(domain.PhaseWork), string(domain.PhaseBreak)},
	RunE:      runPhase,
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove interval records older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runCompact,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(phaseCmd)
	rootCmd.AddCommand(compactCmd)
}

type statusReport struct {
	Running       bool                  `json:"running"`
	PID           int                   `json:"pid,omitempty"`
	AppVersion    string                `json:"app_version,omitempty"`
	StartedAt     int64                 `json:"started_at,omitempty"`
	LastHeartbeat int64                 `json:"last_heartbeat,omitempty"`
	Clock         *domain.ClockSnapshot `json:"clock,omitempty"`
}

func loadStatus(registry domain.DaemonRegistry) (*statusReport, error) {
	alive, err := registry.IsAlive()
	if err != nil {
		return nil, err
	}
	if !alive {
		return &statusReport{}, nil
	}
	entry, err := registry.Get()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &statusReport{}, nil
	}
	return &statusReport{
		Running:       true,
		PID:           entry.PID,
		AppVersion:    entry.AppVersion,
		StartedAt:     entry.StartedAt,
		LastHeartbeat: entry.LastHeartbeat,
		Clock:         entry.Clock,
	}, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	report, err := loadStatus(newRegistry(paths()))
	if err != nil {
		return err
	}

	if statusJSON {
		out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println("\n=== pomomon Status ===")
	if !report.Running {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'pomomon start' to start the timer.")
		return nil
	}

	fmt.Printf("Status: RUNNING (pid %d)\n", report.PID)
	if c := report.Clock; c != nil {
		fmt.Printf("Phase: %s%s\n", phaseTitle(c.Phase), stateSuffix(c))
		fmt.Printf("Remaining: %s (elapsed %s of %s)\n",
			clockTime(c.Remaining), clockTime(c.Elapsed), clockTime(c.PhaseDuration))
		fmt.Printf("Overtime: %s\n", signedClockTime(c.Overtime))
		fmt.Printf("Auto phase: %s\n", onOff(c.AutoPhase))
		fmt.Printf("Durations: work %s, break %s\n", clockTime(c.WorkDuration), clockTime(c.BreakDuration))
	}
	if report.LastHeartbeat > 0 {
		ago := time.Since(time.Unix(report.LastHeartbeat, 0)).Round(time.Second)
		if ago > staleAfter {
			fmt.Printf("Last heartbeat: %s ago (stale)\n", ago)
		} else {
			fmt.Printf("Last heartbeat: %s ago\n", ago)
		}
	}
	fmt.Println("======================")
	return nil
}

// sendControl queues cmd for the running daemon and waits until the published
// snapshot satisfies done.
func sendControl(cmd domain.ControlCommand, done func(domain.ClockSnapshot) bool) (*domain.ClockSnapshot, error) {
	p := paths()
	registry := newRegistry(p)
	if alive, _ := registry.IsAlive(); !alive {
		return nil, daemon.ErrNotRunning
	}

	queue := infra.NewControlQueue(p.ControlDir, zap.NewNop())
	if err := queue.Send(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if entry, err := registry.Get(); err == nil && entry != nil && entry.Clock != nil && done(*entry.Clock) {
			return entry.Clock, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, errors.New("daemon did not apply the command in time")
}

func currentClock() (*domain.ClockSnapshot, error) {
	report, err := loadStatus(newRegistry(paths()))
	if err != nil {
		return nil, err
	}
	if !report.Running || report.Clock == nil {
		return nil, daemon.ErrNotRunning
	}
	return report.Clock, nil
}

func runPause(cmd *cobra.Command, args []string) error {
	before, err := currentClock()
	if err != nil {
		return err
	}
	after, err := sendControl(domain.ControlCommand{Op: domain.OpTogglePause},
		func(s domain.ClockSnapshot) bool { return s.Paused != before.Paused })
	if err != nil {
		return err
	}
	if after.Paused {
		fmt.Println("Paused")
	} else {
		fmt.Println("Resumed")
	}
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	before, err := currentClock()
	if err != nil {
		return err
	}
	if before.Remaining > 0 {
		return fmt.Errorf("%s remaining in %s phase; use 'pomomon phase' to switch early",
			clockTime(before.Remaining), phaseTitle(before.Phase))
	}
	after, err := sendControl(domain.ControlCommand{Op: domain.OpNextPhase},
		func(s domain.ClockSnapshot) bool { return s.Phase != before.Phase })
	if err != nil {
		return err
	}
	fmt.Printf("%s started (%s)\n", phaseTitle(after.Phase), clockTime(after.PhaseDuration))
	return nil
}

func runPhase(cmd *cobra.Command, args []string) error {
	phase, err := domain.ParsePhase(args[0])
	if err != nil {
		return err
	}
	after, err := sendControl(domain.ControlCommand{Op: domain.OpSetPhase, Phase: phase},
		func(s domain.ClockSnapshot) bool { return s.Phase == phase && s.Elapsed <= 1 })
	if err != nil {
		return err
	}
	fmt.Printf("%s started (%s)\n", phaseTitle(after.Phase), clockTime(after.PhaseDuration))
	return nil
}

// runCompact asks a running daemon to compact, so only one process ever
// rewrites the log; without a daemon it compacts in place.
func runCompact(cmd *cobra.Command, args []string) error {
	p := paths()
	registry := newRegistry(p)
	if alive, _ := registry.IsAlive(); alive {
		queue := infra.NewControlQueue(p.ControlDir, zap.NewNop())
		if err := queue.Send(domain.ControlCommand{Op: domain.OpCompact}); err != nil {
			return fmt.Errorf("failed to send command: %w", err)
		}
		fmt.Println("Compaction requested from the running daemon")
		return nil
	}

	cfg, err := config.Load(p.DataDir)
	if err != nil {
		return err
	}
	intervals := newIntervalLog(p, cfg, zap.NewNop())
	if err := intervals.Compact(time.Now()); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	fmt.Printf("Compacted %s (retention %s)\n", intervals.Path(), cfg.Retention)
	return nil
}
