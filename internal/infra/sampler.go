package infra

import (
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const (
	frontAppScript   = `tell application "System Events" to get name of first application process whose frontmost is true`
	frontTitleScript = `tell application "System Events" to tell (first application process whose frontmost is true) to get name of front window`
)

// ForegroundSamplerImpl implements domain.ForegroundSampler with xdotool on
// Linux and osascript on macOS. Other platforms never report a foreground app.
type ForegroundSamplerImpl struct {
	pm        domain.ProcessManager
	cmdRunner CommandRunner
	goos      string
	logger    *zap.Logger
}

// NewForegroundSampler creates a sampler for the running platform.
func NewForegroundSampler(pm domain.ProcessManager, logger *zap.Logger) *ForegroundSamplerImpl {
	return NewForegroundSamplerWithDeps(pm, &RealCommandRunner{}, runtime.GOOS, logger)
}

// NewForegroundSamplerWithDeps creates a sampler with injectable dependencies (for testing)
func NewForegroundSamplerWithDeps(pm domain.ProcessManager, cmdRunner CommandRunner, goos string, logger *zap.Logger) *ForegroundSamplerImpl {
	return &ForegroundSamplerImpl{
		pm:        pm,
		cmdRunner: cmdRunner,
		goos:      goos,
		logger:    logger,
	}
}

// Active returns the foreground application and its window title.
func (s *ForegroundSamplerImpl) Active() (string, string, bool) {
	switch s.goos {
	case "linux":
		return s.activeLinux()
	case "darwin":
		return s.activeDarwin()
	default:
		return "", "", false
	}
}

func (s *ForegroundSamplerImpl) activeLinux() (string, string, bool) {
	out, err := s.cmdRunner.Output("xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		s.logger.Debug("xdotool pid lookup failed", zap.Error(err))
		return "", "", false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return "", "", false
	}
	name, err := s.pm.NameOf(pid)
	if err != nil || name == "" {
		return "", "", false
	}

	title := ""
	if out, err := s.cmdRunner.Output("xdotool", "getactivewindow", "getwindowname"); err == nil {
		title = strings.TrimSpace(string(out))
	}
	return name, title, true
}

func (s *ForegroundSamplerImpl) activeDarwin() (string, string, bool) {
	out, err := s.cmdRunner.Output("osascript", "-e", frontAppScript)
	if err != nil {
		s.logger.Debug("osascript frontmost lookup failed", zap.Error(err))
		return "", "", false
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", "", false
	}

	// Apps without windows (or without accessibility permission) have no title.
	title := ""
	if out, err := s.cmdRunner.Output("osascript", "-e", frontTitleScript); err == nil {
		title = strings.TrimSpace(string(out))
	}
	return name, title, true
}

// Ensure ForegroundSamplerImpl implements domain.ForegroundSampler.
var _ domain.ForegroundSampler = (*ForegroundSamplerImpl)(nil)
