package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// topAppsLimit is how many applications AppUsage ranks.
const topAppsLimit = 5

// Summarizer computes read-only reports over the durable interval store.
// It only reads flushed records and may trail an in-flight flush.
type Summarizer struct {
	source       domain.IntervalSource
	workDuration func() time.Duration
}

// NewSummarizer creates a summarizer. workDuration supplies the configured
// WORK length used for cycle counts.
func NewSummarizer(source domain.IntervalSource, workDuration func() time.Duration) *Summarizer {
	return &Summarizer{
		source:       source,
		workDuration: workDuration,
	}
}

// Summarize returns per-phase totals for records starting inside the period.
func (s *Summarizer) Summarize(period domain.Period, now time.Time) (*domain.Summary, error) {
	from := period.WindowStart(now)
	sum := &domain.Summary{Period: period}

	err := s.source.ForEach(func(rec domain.IntervalRecord) error {
		if rec.Start.Before(from) {
			return nil
		}
		switch rec.Phase {
		case domain.LabelWork:
			sum.Work += rec.Duration
		case domain.LabelBreak:
			sum.Break += rec.Duration
		default:
			sum.Unscheduled += rec.Duration
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", period, err)
	}

	if secs := int64(s.workDuration() / time.Second); secs > 0 {
		sum.Cycles = float64(sum.Work) / float64(secs)
	}
	return sum, nil
}

// AppUsage returns the top applications of the period and an hour-of-day
// breakdown. Records spanning an hour boundary are split in proportion to wall time.
func (s *Summarizer) AppUsage(period domain.Period, now time.Time) (*domain.AppUsageSummary, error) {
	from := period.WindowStart(now)
	totals := make(map[string]int64)
	hourly := make(map[int]map[string]int64)

	err := s.source.ForEach(func(rec domain.IntervalRecord) error {
		if rec.Start.Before(from) {
			return nil
		}
		totals[rec.AppName] += rec.Duration
		splitByHour(rec, func(hour int, secs int64) {
			apps, ok := hourly[hour]
			if !ok {
				apps = make(map[string]int64)
				hourly[hour] = apps
			}
			apps[rec.AppName] += secs
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("app usage %s: %w", period, err)
	}

	top := make([]domain.AppTotal, 0, len(totals))
	for app, secs := range totals {
		top = append(top, domain.AppTotal{AppName: app, Seconds: secs})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Seconds != top[j].Seconds {
			return top[i].Seconds > top[j].Seconds
		}
		return top[i].AppName < top[j].AppName
	})
	if len(top) > topAppsLimit {
		top = top[:topAppsLimit]
	}

	return &domain.AppUsageSummary{
		Period:  period,
		TopApps: top,
		Hourly:  hourly,
	}, nil
}

// splitByHour spreads rec.Duration over the local clock hours of [start, end)
// in proportion to the wall time in each hour. A merged row spans more wall
// time than it was used, so shares are scaled to Duration; the rounding
// remainder goes to the last hour.
func splitByHour(rec domain.IntervalRecord, add func(hour int, secs int64)) {
	if rec.Duration <= 0 {
		return
	}
	start, end := rec.Start.Local(), rec.End.Local()
	span := int64(end.Sub(start) / time.Second)
	if span <= 0 {
		add(start.Hour(), rec.Duration)
		return
	}

	type segment struct {
		hour int
		secs int64
	}
	var segments []segment
	for current := start; current.Before(end); {
		next := time.Date(current.Year(), current.Month(), current.Day(), current.Hour(), 0, 0, 0, current.Location()).Add(time.Hour)
		if next.After(end) {
			next = end
		}
		if secs := int64(next.Sub(current) / time.Second); secs > 0 {
			segments = append(segments, segment{hour: current.Hour(), secs: secs})
		}
		current = next
	}

	var given int64
	for i, seg := range segments {
		share := seg.secs * rec.Duration / span
		if i == len(segments)-1 {
			share = rec.Duration - given
		}
		given += share
		if share > 0 {
			add(seg.hour, share)
		}
	}
}
