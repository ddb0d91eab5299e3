package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Name      string
	Accent    lipgloss.Style
	Dim       lipgloss.Style
	Text      lipgloss.Style
	Title     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
}

// palette is the set of colors a theme is built from.
type palette struct {
	accent, dim, text, title, err, success, warning, border, highlight string
}

var palettes = map[string]palette{
	"default": {
		accent: "#FF6FF7", dim: "#6C6F93", text: "#E6E6FA", title: "#8EEBFF",
		err: "#FF5F56", success: "#5CFF5C", warning: "#FFD166", border: "#7C7CFF", highlight: "#FFA7C4",
	},
	"nord": {
		accent: "#88C0D0", dim: "#4C566A", text: "#D8DEE9", title: "#8FBCBB",
		err: "#BF616A", success: "#A3BE8C", warning: "#EBCB8B", border: "#5E81AC", highlight: "#B48EAD",
	},
	"green": {
		accent: "#00FF00", dim: "#005500", text: "#00CC00", title: "#00FF00",
		err: "#00FF00", success: "#00FF00", warning: "#00CC00", border: "#008800", highlight: "#00FF00",
	},
	"mono": {
		accent: "#FFFFFF", dim: "#666666", text: "#CCCCCC", title: "#FFFFFF",
		err: "#FFFFFF", success: "#CCCCCC", warning: "#AAAAAA", border: "#888888", highlight: "#FFFFFF",
	},
}

// ThemeNames returns the selectable theme names, nocolor included.
func ThemeNames() []string {
	return []string{"default", "nord", "green", "mono", "nocolor"}
}

// ValidTheme reports whether name is a known theme.
func ValidTheme(name string) bool {
	if name == "nocolor" {
		return true
	}
	_, ok := palettes[name]
	return ok
}

// GetTheme returns a theme by name, falling back to default. noColor (the
// NO_COLOR convention) overrides the name.
func GetTheme(name string, noColor bool) Theme {
	if noColor || name == "nocolor" {
		return NoColor()
	}
	p, ok := palettes[name]
	if !ok {
		name, p = "default", palettes["default"]
	}
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Theme{
		Name:      name,
		Accent:    fg(p.accent).Bold(true),
		Dim:       fg(p.dim),
		Text:      fg(p.text),
		Title:     fg(p.title).Bold(true),
		Error:     fg(p.err).Bold(true),
		Success:   fg(p.success).Bold(true),
		Warning:   fg(p.warning).Bold(true),
		Border:    fg(p.border),
		Highlight: fg(p.highlight).Bold(true),
	}
}

// NoColor is a high-contrast theme using only bold and reverse.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:      "nocolor",
		Accent:    reset.Bold(true),
		Dim:       reset,
		Text:      reset,
		Title:     reset.Bold(true),
		Error:     reset.Bold(true),
		Success:   reset.Bold(true),
		Warning:   reset.Bold(true),
		Border:    reset,
		Highlight: reset.Reverse(true),
	}
}

// Connection styles a player connection state name.
func (t Theme) Connection(state string) string {
	switch state {
	case "connected":
		return t.Success.Render("● " + state)
	case "connecting":
		return t.Warning.Render("◐ " + state)
	default:
		return t.Error.Render("○ " + state)
	}
}

// Action styles a scrobble action (start, pause, stop).
func (t Theme) Action(action string) string {
	switch action {
	case "start":
		return t.Success.Render(action)
	case "pause":
		return t.Warning.Render(action)
	case "stop":
		return t.Accent.Render(action)
	default:
		return t.Dim.Render(action)
	}
}

// ProgressBar renders percent (0-100) as a bar of the given width.
func (t Theme) ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100 * float64(width))
	return t.Accent.Render(strings.Repeat("█", filled)) +
		t.Dim.Render(strings.Repeat("░", width-filled))
}
