package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestGetTheme(t *testing.T) {
	tests := []struct {
		name     string
		noColor  bool
		expected string
	}{
		{"default", false, "default"},
		{"nord", false, "nord"},
		{"mono", false, "mono"},
		{"nocolor", false, "nocolor"},
		{"unknown", false, "default"},
		{"nord", true, "nocolor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetTheme(tt.name, tt.noColor).Name)
		})
	}
}

func TestColoredThemesHaveForeground(t *testing.T) {
	for _, name := range ThemeNames() {
		if name == "nocolor" {
			continue
		}
		th := GetTheme(name, false)
		_, isNoColor := th.Accent.GetForeground().(lipgloss.NoColor)
		assert.False(t, isNoColor, "theme %s should have colors", name)
	}
}

func TestNoColorUsesBold(t *testing.T) {
	th := NoColor()
	assert.True(t, th.Title.GetBold())
	assert.True(t, th.Highlight.GetReverse())
}

func TestValidTheme(t *testing.T) {
	for _, name := range ThemeNames() {
		assert.True(t, ValidTheme(name), name)
	}
	assert.False(t, ValidTheme("rainbow"))
}

func TestConnectionAndAction(t *testing.T) {
	th := NoColor()
	assert.Contains(t, th.Connection("connected"), "● connected")
	assert.Contains(t, th.Connection("disconnected"), "○ disconnected")
	assert.Contains(t, th.Action("stop"), "stop")
}

func TestProgressBar(t *testing.T) {
	th := NoColor()
	tests := []struct {
		percent      float64
		filled, rest int
	}{
		{0, 0, 10},
		{50, 5, 5},
		{100, 10, 0},
		{150, 10, 0},
		{-3, 0, 10},
	}
	for _, tt := range tests {
		bar := th.ProgressBar(tt.percent, 10)
		assert.Equal(t, tt.filled, strings.Count(bar, "█"), "percent %v", tt.percent)
		assert.Equal(t, tt.rest, strings.Count(bar, "░"), "percent %v", tt.percent)
	}
	assert.Empty(t, th.ProgressBar(50, 0))
}
