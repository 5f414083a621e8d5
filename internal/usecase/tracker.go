package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// PhaseSource is the part of the phase clock the tracker reads.
type PhaseSource interface {
	Phase() domain.Phase
	IsUnscheduled() bool
}

// openInterval is the foreground span currently being measured.
type openInterval struct {
	start       time.Time
	app         string
	title       string
	phase       domain.Phase
	unscheduled bool
}

// Tracker turns foreground samples into interval records. Each interval keeps
// the phase and unscheduled flag observed when it was opened.
type Tracker struct {
	sampler domain.ForegroundSampler
	clock   PhaseSource
	log     domain.IntervalLog
	logger  *zap.Logger

	mu      sync.Mutex
	current *openInterval
}

// NewTracker creates a tracker with no open interval.
func NewTracker(sampler domain.ForegroundSampler, clock PhaseSource, log domain.IntervalLog, logger *zap.Logger) *Tracker {
	return &Tracker{
		sampler: sampler,
		clock:   clock,
		log:     log,
		logger:  logger,
	}
}

// Step closes the open interval at now and opens the next one from a fresh
// sample. An undeterminable foreground leaves no interval open.
func (t *Tracker) Step(now time.Time) {
	app, title, ok := t.sampler.Active()

	t.mu.Lock()
	defer t.mu.Unlock()

	wasOpen := t.current != nil
	t.closeLocked(now)
	if !ok || app == "" {
		if wasOpen {
			t.logger.Debug("foreground lost")
		}
		return
	}

	t.current = &openInterval{
		start:       now,
		app:         app,
		title:       title,
		phase:       t.clock.Phase(),
		unscheduled: t.clock.IsUnscheduled(),
	}
}

// Close ends the open interval, if any, at now.
func (t *Tracker) Close(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked(now)
}

func (t *Tracker) closeLocked(now time.Time) {
	cur := t.current
	t.current = nil
	if cur == nil {
		return
	}
	t.log.LogEvent(cur.start, now, cur.app, cur.title, domain.LabelFor(cur.phase, false), cur.unscheduled)
}
