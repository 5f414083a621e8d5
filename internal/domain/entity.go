// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the scheduling state of the timer.
type Phase string

const (
	PhaseWork  Phase = "work"
	PhaseBreak Phase = "break"
)

// ParsePhase accepts "work" or "break" in any case.
func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(s))) {
	case PhaseWork:
		return PhaseWork, nil
	case PhaseBreak:
		return PhaseBreak, nil
	}
	return "", fmt.Errorf("unknown phase %q (want work or break)", s)
}

// Next returns the phase that follows p.
func (p Phase) Next() Phase {
	if p == PhaseWork {
		return PhaseBreak
	}
	return PhaseWork
}

// Label is the phase label stored in the interval log.
type Label string

const (
	LabelWork        Label = "work"
	LabelBreak       Label = "break"
	LabelUnscheduled Label = "unscheduled"
)

// LabelFor maps a clock phase to a log label. Unscheduled time overrides the phase.
func LabelFor(p Phase, unscheduled bool) Label {
	if unscheduled {
		return LabelUnscheduled
	}
	if p == PhaseBreak {
		return LabelBreak
	}
	return LabelWork
}

// OvertimeMode selects how overtime reacts to phase completion.
type OvertimeMode string

const (
	// OvertimePauseOnly drains overtime by one per paused second and nothing else.
	OvertimePauseOnly OvertimeMode = "pause-only"
	// OvertimeScaled additionally grows overtime by break/work per second past
	// work completion and drains it by one per second past break completion.
	OvertimeScaled OvertimeMode = "scaled"
)

// FlushMode selects how buffered intervals reach the store.
type FlushMode string

const (
	FlushAppend FlushMode = "append"
	FlushMerge  FlushMode = "merge"
)

// IntervalRecord is one logged span of continuous foreground-application usage.
type IntervalRecord struct {
	Start       time.Time
	End         time.Time
	Duration    int64 // whole seconds, >= 1
	AppName     string
	WindowTitle string
	Phase       Label
}

// ClockSnapshot is a consistent copy of the phase clock state.
type ClockSnapshot struct {
	Phase         Phase        `json:"phase"`
	PhaseDuration int64        `json:"phase_duration"`
	Elapsed       int64        `json:"elapsed"`
	Remaining     int64        `json:"remaining"`
	Overtime      float64      `json:"overtime"`
	Paused        bool         `json:"paused"`
	AFK           bool         `json:"afk"`
	Unscheduled   bool         `json:"unscheduled"`
	AutoPhase     bool         `json:"auto_phase"`
	WorkDuration  int64        `json:"work_duration"`
	BreakDuration int64        `json:"break_duration"`
	OvertimeMode  OvertimeMode `json:"overtime_mode"`
}

// Period is a summary window.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
)

// ParsePeriod accepts today/daily and week/weekly.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today", "daily", "day":
		return PeriodToday, nil
	case "week", "weekly":
		return PeriodWeek, nil
	}
	return "", fmt.Errorf("unknown period %q (want today or week)", s)
}

// WindowStart returns the first instant covered by the period relative to now:
// local midnight today, or local midnight on the most recent Monday.
func (p Period) WindowStart(now time.Time) time.Time {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if p == PeriodWeek {
		offset := (int(start.Weekday()) + 6) % 7 // Monday = 0
		start = start.AddDate(0, 0, -offset)
	}
	return start
}

// Summary holds per-phase totals for a period.
type Summary struct {
	Period      Period  `json:"period"`
	Work        int64   `json:"work"`
	Break       int64   `json:"break"`
	Unscheduled int64   `json:"unscheduled"`
	Cycles      float64 `json:"cycles"`
}

// AppTotal is the usage of one application.
type AppTotal struct {
	AppName string `json:"app_name"`
	Seconds int64  `json:"seconds"`
}

// AppUsageSummary is the per-application breakdown for a period.
type AppUsageSummary struct {
	Period  Period                   `json:"period"`
	TopApps []AppTotal               `json:"top_apps"`
	Hourly  map[int]map[string]int64 `json:"hourly"`
}

// RegistryEntry stores the running daemon and its latest clock snapshot.
// Persisted to a file so one-shot CLI commands can read state.
type RegistryEntry struct {
	Version       int            `json:"version"`
	PID           int            `json:"pid"`
	StartedAt     int64          `json:"started_at"`
	LastHeartbeat int64          `json:"last_heartbeat"`
	AppVersion    string         `json:"app_version,omitempty"`
	Clock         *ClockSnapshot `json:"clock,omitempty"`
}

// ControlOp is an operation requested from the CLI.
type ControlOp string

const (
	OpTogglePause ControlOp = "toggle_pause"
	OpNextPhase   ControlOp = "next_phase"
	OpSetPhase    ControlOp = "set_phase"
	OpCompact     ControlOp = "compact"
)

// ControlCommand is a request dropped into the control directory.
type ControlCommand struct {
	Op       ControlOp `json:"op"`
	Phase    Phase     `json:"phase,omitempty"`
	IssuedAt int64     `json:"issued_at"`
}

// BlockedApp is one entry of the blocklist.
type BlockedApp struct {
	Name      string
	AddedAt   time.Time
	KillCount int
}

// EnforcementResult captures what happened during a single enforcement run.
type EnforcementResult struct {
	KilledPIDs []int
	KilledApps []string
	Errors     []error
	Skipped    bool // not in a work phase
	ExecutedAt time.Time
}
