package infra

import (
	"bufio"
	"bytes"
	"errors"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// HIDIdleTime is reported by ioreg in nanoseconds since the last input event.
var hidIdleRe = regexp.MustCompile(`HIDIdleTime"\s*=\s*([0-9]+)`)

var errHIDIdleMissing = errors.New("HIDIdleTime not found")

// IdleDetectorImpl implements domain.IdleDetector using ioreg on macOS and
// xprintidle on Linux. Any failure reads as "not idle".
type IdleDetectorImpl struct {
	cmdRunner CommandRunner
	goos      string
	logger    *zap.Logger
}

// NewIdleDetector creates an idle detector for the running platform.
func NewIdleDetector(logger *zap.Logger) *IdleDetectorImpl {
	return NewIdleDetectorWithDeps(&RealCommandRunner{}, runtime.GOOS, logger)
}

// NewIdleDetectorWithDeps creates an idle detector with injectable dependencies (for testing)
func NewIdleDetectorWithDeps(cmdRunner CommandRunner, goos string, logger *zap.Logger) *IdleDetectorImpl {
	return &IdleDetectorImpl{
		cmdRunner: cmdRunner,
		goos:      goos,
		logger:    logger,
	}
}

// IdleTime returns the time since the last keyboard or mouse input.
func (d *IdleDetectorImpl) IdleTime() time.Duration {
	var (
		idle time.Duration
		err  error
	)
	switch d.goos {
	case "darwin":
		idle, err = d.idleDarwin()
	case "linux":
		idle, err = d.idleLinux()
	default:
		return 0
	}
	if err != nil {
		d.logger.Debug("idle time unavailable", zap.Error(err))
		return 0
	}
	return idle
}

func (d *IdleDetectorImpl) idleDarwin() (time.Duration, error) {
	out, err := d.cmdRunner.Output("/usr/sbin/ioreg", "-c", "IOHIDSystem")
	if err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "HIDIdleTime") {
			continue
		}
		if m := hidIdleRe.FindStringSubmatch(line); len(m) == 2 {
			ns, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return 0, err
			}
			return time.Duration(ns), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errHIDIdleMissing
}

func (d *IdleDetectorImpl) idleLinux() (time.Duration, error) {
	out, err := d.cmdRunner.Output("xprintidle")
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Ensure IdleDetectorImpl implements domain.IdleDetector.
var _ domain.IdleDetector = (*IdleDetectorImpl)(nil)
