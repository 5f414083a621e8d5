package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const defaultTermWidth = 80

var titleCaser = cases.Title(language.English)

func phaseTitle(p domain.Phase) string {
	return titleCaser.String(string(p))
}

func labelTitle(l domain.Label) string {
	return titleCaser.String(string(l))
}

func stateSuffix(c *domain.ClockSnapshot) string {
	switch {
	case c.Paused:
		return " (paused)"
	case c.AFK && c.Phase == domain.PhaseWork:
		return " (away)"
	case c.Remaining == 0:
		return " (complete)"
	}
	return ""
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// clockTime formats seconds as m:ss, or h:mm:ss from one hour.
func clockTime(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// signedClockTime formats an overtime balance with an explicit sign.
func signedClockTime(secs float64) string {
	sign := "+"
	if secs < 0 {
		sign = "-"
	}
	return sign + clockTime(int64(math.Round(math.Abs(secs))))
}

// humanDuration formats seconds as "1h 05m", "12m 30s" or "45s".
func humanDuration(secs int64) string {
	h, m, s := secs/3600, secs%3600/60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// terminalWidth returns the stdout width, or a default when not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultTermWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

// renderTable writes rows under headers, aligning by display width so CJK and
// emoji app names line up. The first column shrinks to fit width.
func renderTable(w io.Writer, headers []string, rows [][]string, width int) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	const gap = 2
	total := 0
	for _, cw := range widths {
		total += cw + gap
	}
	if over := total - gap - width; over > 0 && widths[0]-over >= runewidth.StringWidth(headers[0]) {
		widths[0] -= over
	}

	line := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			cell = runewidth.Truncate(cell, widths[i], "…")
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]+gap))
		}
		fmt.Fprintln(w, b.String())
	}

	line(headers)
	for _, row := range rows {
		line(row)
	}
}
