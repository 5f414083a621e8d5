package infra

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

// TimeLayout is the timestamp format of the interval log (local time, no zone).
const TimeLayout = "2006-01-02 15:04:05"

// LogHeader is the first line of every interval log.
var LogHeader = []string{"timestamp_start", "timestamp_end", "duration_secs", "app_name", "window_title", "phase"}

// IntervalLogConfig configures a CSVIntervalLog.
type IntervalLogConfig struct {
	Path            string
	Mode            domain.FlushMode
	Retention       time.Duration
	CompactCooldown time.Duration
}

// CSVIntervalLog implements domain.IntervalLog and domain.IntervalSource on a CSV file.
//
// Two locks with disjoint scope: bufMu guards only the in-memory buffer and is
// never held across I/O; ioMu serialises every write to the store so flush and
// compaction never interleave. Readers take neither lock; the store is only ever
// replaced by rename, so they see the old or the new file, never a partial one.
type CSVIntervalLog struct {
	cfg    IntervalLogConfig
	logger *zap.Logger
	now    func() time.Time

	bufMu  sync.Mutex
	buffer []domain.IntervalRecord

	ioMu        sync.Mutex
	lastCompact time.Time
}

// NewCSVIntervalLog creates an interval log. Call Init before the first Flush.
func NewCSVIntervalLog(cfg IntervalLogConfig, logger *zap.Logger) *CSVIntervalLog {
	if cfg.Mode == "" {
		cfg.Mode = domain.FlushAppend
	}
	return &CSVIntervalLog{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the store file path.
func (l *CSVIntervalLog) Path() string {
	return l.cfg.Path
}

// Init ensures the store directory exists and the file starts with the header.
func (l *CSVIntervalLog) Init() error {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.cfg.Path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	info, err := os.Stat(l.cfg.Path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stat log: %w", err)
	}
	return l.rewriteLocked(func(w *csv.Writer) error {
		return w.Write(LogHeader)
	})
}

// LogEvent buffers one interval. paused forces the unscheduled label;
// intervals shorter than one whole second are dropped.
func (l *CSVIntervalLog) LogEvent(start, end time.Time, appName, windowTitle string, phase domain.Label, paused bool) {
	if paused {
		phase = domain.LabelUnscheduled
	}
	duration := int64(end.Sub(start) / time.Second)
	if duration < 1 {
		return
	}
	start = start.Truncate(time.Second)

	rec := domain.IntervalRecord{
		Start:       start,
		End:         start.Add(time.Duration(duration) * time.Second),
		Duration:    duration,
		AppName:     appName,
		WindowTitle: windowTitle,
		Phase:       phase,
	}

	l.bufMu.Lock()
	l.buffer = append(l.buffer, rec)
	l.bufMu.Unlock()
}

// Pending returns the number of buffered, unflushed records.
func (l *CSVIntervalLog) Pending() int {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()
	return len(l.buffer)
}

// errRowsUnsynced marks an append whose rows reached the file but whose fsync failed.
var errRowsUnsynced = errors.New("rows written but not synced")

// syncFile is swapped in tests to simulate a failed fsync.
var syncFile = (*os.File).Sync

// Flush drains the buffer and persists it with the configured mode.
// When the store was not written the drained records are put back in front of
// the buffer; rows that were written but not synced are not requeued.
func (l *CSVIntervalLog) Flush() error {
	l.bufMu.Lock()
	if len(l.buffer) == 0 {
		l.bufMu.Unlock()
		return nil
	}
	drained := l.buffer
	l.buffer = nil
	l.bufMu.Unlock()

	l.ioMu.Lock()
	var err error
	if l.cfg.Mode == domain.FlushMerge {
		err = l.mergeLocked(drained)
	} else {
		err = l.appendLocked(drained)
	}
	l.ioMu.Unlock()

	if err != nil {
		if !errors.Is(err, errRowsUnsynced) {
			l.bufMu.Lock()
			l.buffer = append(drained, l.buffer...)
			l.bufMu.Unlock()
		}
		return fmt.Errorf("flush %d records: %w", len(drained), err)
	}

	l.logger.Debug("flushed interval buffer",
		zap.Int("records", len(drained)),
		zap.String("mode", string(l.cfg.Mode)))
	return nil
}

// appendLocked appends rows with a single write so a crash cannot interleave
// a half row with a later one.
func (l *CSVIntervalLog) appendLocked(records []domain.IntervalRecord) error {
	f, err := os.OpenFile(l.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(LogHeader); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := w.Write(formatRecord(rec)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	if err := syncFile(f); err != nil {
		return fmt.Errorf("%w: %v", errRowsUnsynced, err)
	}
	return nil
}

type mergeKey struct {
	hour  string
	app   string
	title string
	phase domain.Label
}

func keyOf(rec domain.IntervalRecord) mergeKey {
	return mergeKey{
		hour:  rec.Start.Local().Format("2006-01-02 15"),
		app:   rec.AppName,
		title: rec.WindowTitle,
		phase: rec.Phase,
	}
}

// splitAtHours cuts a record at local clock-hour boundaries so a merged row
// never spans more than the hour it is keyed by. Records whose duration is not
// their span are returned whole.
func splitAtHours(rec domain.IntervalRecord) []domain.IntervalRecord {
	start, end := rec.Start.Local(), rec.End.Local()
	if int64(end.Sub(start)/time.Second) != rec.Duration {
		return []domain.IntervalRecord{rec}
	}
	var parts []domain.IntervalRecord
	for current := start; current.Before(end); {
		next := time.Date(current.Year(), current.Month(), current.Day(), current.Hour(), 0, 0, 0, current.Location()).Add(time.Hour)
		if next.After(end) {
			next = end
		}
		part := rec
		part.Start, part.End = current, next
		part.Duration = int64(next.Sub(current) / time.Second)
		if part.Duration > 0 {
			parts = append(parts, part)
		}
		current = next
	}
	return parts
}

// mergeLocked rewrites the store with expired rows dropped and rows sharing
// (hour of start, app, title, phase) coalesced: durations summed, later end kept.
// New records are first cut at hour boundaries. Malformed rows pass through untouched.
func (l *CSVIntervalLog) mergeLocked(records []domain.IntervalRecord) error {
	existing, err := readRows(l.cfg.Path)
	if err != nil {
		return err
	}
	cutoff := l.now().Add(-l.cfg.Retention)

	type entry struct {
		raw []string // set for malformed rows
		rec domain.IntervalRecord
	}
	var entries []entry
	index := make(map[mergeKey]int)

	add := func(rec domain.IntervalRecord) {
		k := keyOf(rec)
		if i, ok := index[k]; ok {
			merged := &entries[i].rec
			merged.Duration += rec.Duration
			if rec.End.After(merged.End) {
				merged.End = rec.End
			}
			return
		}
		index[k] = len(entries)
		entries = append(entries, entry{rec: rec})
	}

	for _, row := range existing {
		rec, err := parseRecord(row, true)
		if err != nil {
			entries = append(entries, entry{raw: row})
			continue
		}
		if rec.End.Before(cutoff) {
			continue
		}
		add(rec)
	}
	for _, rec := range records {
		for _, part := range splitAtHours(rec) {
			add(part)
		}
	}

	return l.rewriteLocked(func(w *csv.Writer) error {
		if err := w.Write(LogHeader); err != nil {
			return err
		}
		for _, e := range entries {
			row := e.raw
			if row == nil {
				row = formatRecord(e.rec)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// MaybeCompact runs Compact at most once per CompactCooldown and reports
// whether it ran.
func (l *CSVIntervalLog) MaybeCompact(now time.Time) (bool, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	if !l.lastCompact.IsZero() && now.Sub(l.lastCompact) < l.cfg.CompactCooldown {
		return false, nil
	}
	l.lastCompact = now
	return true, l.compactLocked(now)
}

// Compact rewrites the store keeping only rows whose end is within the
// retention window. Malformed rows are kept.
func (l *CSVIntervalLog) Compact(now time.Time) error {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	l.lastCompact = now
	return l.compactLocked(now)
}

func (l *CSVIntervalLog) compactLocked(now time.Time) error {
	src, err := os.Open(l.cfg.Path)
	if os.IsNotExist(err) {
		return nil // nothing to compact
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer src.Close()

	cutoff := now.Add(-l.cfg.Retention)
	kept, dropped := 0, 0

	err = l.rewriteLocked(func(w *csv.Writer) error {
		r := newLogReader(src)
		header, err := r.Read()
		if err == io.EOF || (err == nil && len(header) == 0) {
			header = LogHeader
		} else if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if err := w.Write(header); err != nil {
			return err
		}

		for {
			row, err := r.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read row: %w", err)
			}
			if len(row) > 1 {
				if end, perr := parseTime(row[1]); perr == nil && end.Before(cutoff) {
					dropped++
					continue
				}
			}
			kept++
			if err := w.Write(row); err != nil {
				return err
			}
		}
	})
	if err != nil {
		l.logger.Warn("compaction aborted, store left untouched", zap.Error(err))
		return fmt.Errorf("compact: %w", err)
	}

	l.logger.Info("interval log compacted",
		zap.Int("kept", kept),
		zap.Int("dropped", dropped))
	return nil
}

// rewriteLocked writes a complete new store to a temp file in the same
// directory, fsyncs it, then renames it over the live store. Any failure
// removes the temp file and leaves the live store as it was.
func (l *CSVIntervalLog) rewriteLocked(write func(w *csv.Writer) error) error {
	dir := filepath.Dir(l.cfg.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.cfg.Path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := write(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := renameFile(tmpPath, l.cfg.Path); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	success = true

	if err := FsyncDir(dir); err != nil {
		l.logger.Debug("fsync log directory failed", zap.Error(err))
	}
	return nil
}

// ForEach streams every well-formed record of the durable store.
// It never touches the buffer; records not yet flushed are not visible.
func (l *CSVIntervalLog) ForEach(fn func(domain.IntervalRecord) error) error {
	f, err := os.Open(l.cfg.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	r := newLogReader(f)
	if _, err := r.Read(); err != nil { // header
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read header: %w", err)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		rec, err := parseRecord(row, false)
		if err != nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func newLogReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	rows, err := newLogReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}
	return rows, nil
}

func formatRecord(rec domain.IntervalRecord) []string {
	return []string{
		rec.Start.Local().Format(TimeLayout),
		rec.End.Local().Format(TimeLayout),
		strconv.FormatInt(rec.Duration, 10),
		rec.AppName,
		rec.WindowTitle,
		string(rec.Phase),
	}
}

// parseRecord decodes a row. In strict mode every column must be present and
// valid; otherwise a bad duration reads as 0 and missing trailing columns are empty.
func parseRecord(row []string, strict bool) (domain.IntervalRecord, error) {
	if len(row) < len(LogHeader) && (strict || len(row) < 4) {
		return domain.IntervalRecord{}, fmt.Errorf("short row: %d columns", len(row))
	}
	start, err := parseTime(row[0])
	if err != nil {
		return domain.IntervalRecord{}, err
	}
	end, err := parseTime(row[1])
	if err != nil {
		return domain.IntervalRecord{}, err
	}
	duration, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		if strict {
			return domain.IntervalRecord{}, err
		}
		duration = 0
	}

	rec := domain.IntervalRecord{
		Start:    start,
		End:      end,
		Duration: duration,
		AppName:  row[3],
	}
	if len(row) > 4 {
		rec.WindowTitle = row[4]
	}
	if len(row) > 5 {
		rec.Phase = domain.Label(row[5])
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// Ensure CSVIntervalLog implements the domain interfaces.
var _ domain.IntervalLog = (*CSVIntervalLog)(nil)
var _ domain.IntervalSource = (*CSVIntervalLog)(nil)
