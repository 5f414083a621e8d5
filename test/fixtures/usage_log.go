// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/infra"
)

// Row is one interval as it appears in the usage log.
type Row struct {
	Start time.Time
	End   time.Time
	App   string
	Title string
	Phase string
}

// WriteUsageLog creates a usage log at path holding the header and rows.
// Raw rows are written verbatim after the well-formed ones, for malformed-row cases.
func WriteUsageLog(path string, rows []Row, raw ...[]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(infra.LogHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Start.Format(infra.TimeLayout),
			r.End.Format(infra.TimeLayout),
			strconv.FormatInt(int64(r.End.Sub(r.Start)/time.Second), 10),
			r.App,
			r.Title,
			r.Phase,
		}); err != nil {
			return err
		}
	}
	for _, r := range raw {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadUsageLog returns every line of the usage log, header included.
func ReadUsageLog(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// ScriptedSampler plays a foreground application that the test can switch.
type ScriptedSampler struct {
	mu    sync.Mutex
	app   string
	title string
}

// NewScriptedSampler starts with app in the foreground.
func NewScriptedSampler(app, title string) *ScriptedSampler {
	return &ScriptedSampler{app: app, title: title}
}

// Switch changes the foreground application. An empty app means none.
func (s *ScriptedSampler) Switch(app, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app, s.title = app, title
}

// Active implements domain.ForegroundSampler.
func (s *ScriptedSampler) Active() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app, s.title, s.app != ""
}
