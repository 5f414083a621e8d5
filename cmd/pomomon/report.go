package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/config"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/usecase"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show work, break and unscheduled time",
	Long: `Totals the interval log for today (default) or the current week, starting Monday.
Cycles is work time divided by the configured work duration.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Show the most used applications and hourly usage",
	Args:  cobra.NoArgs,
	RunE:  runApps,
}

var (
	reportWeek bool
	reportJSON bool
)

func init() {
	for _, c := range []*cobra.Command{summaryCmd, appsCmd} {
		c.Flags().BoolVar(&reportWeek, "week", false, "Report the current week instead of today")
		c.Flags().BoolVar(&reportJSON, "json", false, "Output as JSON")
	}

	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(appsCmd)
}

func reportPeriod() domain.Period {
	if reportWeek {
		return domain.PeriodWeek
	}
	return domain.PeriodToday
}

func newSummarizer() (*usecase.Summarizer, error) {
	p := paths()
	cfg, err := config.Load(p.DataDir)
	if err != nil {
		return nil, err
	}
	source := newIntervalLog(p, cfg, zap.NewNop())
	return usecase.NewSummarizer(source, func() time.Duration { return cfg.WorkDuration }), nil
}

func printJSON(v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := newSummarizer()
	if err != nil {
		return err
	}
	summary, err := s.Summarize(reportPeriod(), time.Now())
	if err != nil {
		return err
	}
	if reportJSON {
		return printJSON(summary)
	}
	writeSummary(os.Stdout, summary)
	return nil
}

func writeSummary(w io.Writer, s *domain.Summary) {
	fmt.Fprintf(w, "\n=== Summary (%s) ===\n", s.Period)
	renderTable(w, []string{"Phase", "Time"}, [][]string{
		{labelTitle(domain.LabelWork), humanDuration(s.Work)},
		{labelTitle(domain.LabelBreak), humanDuration(s.Break)},
		{labelTitle(domain.LabelUnscheduled), humanDuration(s.Unscheduled)},
	}, terminalWidth())
	fmt.Fprintf(w, "\nCycles: %.1f\n", s.Cycles)
}

func runApps(cmd *cobra.Command, args []string) error {
	s, err := newSummarizer()
	if err != nil {
		return err
	}
	usage, err := s.AppUsage(reportPeriod(), time.Now())
	if err != nil {
		return err
	}
	if reportJSON {
		return printJSON(usage)
	}
	writeAppUsage(os.Stdout, usage, terminalWidth())
	return nil
}

func writeAppUsage(w io.Writer, u *domain.AppUsageSummary, width int) {
	fmt.Fprintf(w, "\n=== Top applications (%s) ===\n", u.Period)
	if len(u.TopApps) == 0 {
		fmt.Fprintln(w, "No activity recorded.")
		return
	}

	rows := make([][]string, 0, len(u.TopApps))
	for i, app := range u.TopApps {
		rows = append(rows, []string{app.AppName, humanDuration(app.Seconds), strconv.Itoa(i + 1)})
	}
	renderTable(w, []string{"App", "Time", "Rank"}, rows, width)

	hours := make([]int, 0, len(u.Hourly))
	for h := range u.Hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	fmt.Fprintln(w, "\n=== By hour ===")
	rows = rows[:0]
	for _, h := range hours {
		apps := u.Hourly[h]
		names := make([]string, 0, len(apps))
		for name := range apps {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if apps[names[i]] != apps[names[j]] {
				return apps[names[i]] > apps[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			rows = append(rows, []string{name, humanDuration(apps[name]), fmt.Sprintf("%02d:00", h)})
		}
	}
	renderTable(w, []string{"App", "Time", "Hour"}, rows, width)
}
