package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mpvtrakt/mpvtrakt/internal/store"
	"github.com/mpvtrakt/mpvtrakt/internal/ui"
)

// RenderHistory formats scrobble history rows, newest first, for --history.
func RenderHistory(entries []store.HistoryEntry, theme ui.Theme, now time.Time) string {
	if len(entries) == 0 {
		return theme.Dim.Render("No scrobbles recorded yet.") + "\n"
	}
	var b strings.Builder
	b.WriteString(theme.Title.Render("Recent scrobbles") + "\n")
	for _, e := range entries {
		outcome := theme.Success.Render(fmt.Sprintf("%d", e.StatusCode))
		if e.Error != "" {
			outcome = theme.Error.Render(fmt.Sprintf("%d %s", e.StatusCode, e.Error))
		}
		fmt.Fprintf(&b, "%s  %s  %s %5.1f%%  %s\n",
			theme.Dim.Render(humanize.RelTime(e.At, now, "ago", "from now")),
			theme.Action(e.Action),
			theme.Text.Render(e.Title),
			e.Progress,
			outcome)
		fmt.Fprintf(&b, "    %s\n", theme.Dim.Render(e.Path))
	}
	return b.String()
}

// Check is one line of the doctor report.
type Check struct {
	Name   string
	OK     bool
	Detail string
	// Optional failures are reported as warnings.
	Optional bool
}

// RenderDoctor formats checks and reports whether all required ones passed.
func RenderDoctor(checks []Check, theme ui.Theme) (string, bool) {
	var b strings.Builder
	b.WriteString(theme.Title.Render("mpvtrakt doctor") + "\n")
	healthy := true
	for _, c := range checks {
		mark := theme.Success.Render("OK")
		switch {
		case c.OK:
		case c.Optional:
			mark = theme.Warning.Render("WARN")
		default:
			mark = theme.Error.Render("FAIL")
			healthy = false
		}
		line := fmt.Sprintf("%s: %s", c.Name, mark)
		if c.Detail != "" {
			line += " " + theme.Dim.Render("("+c.Detail+")")
		}
		b.WriteString(line + "\n")
	}
	return b.String(), healthy
}
