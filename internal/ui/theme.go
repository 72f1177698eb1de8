package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/engine"
)

// Catppuccin Mocha palette, overridable from the config file.
var (
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorPeach  = lipgloss.Color("#fab387")
	ColorMauve  = lipgloss.Color("#cba6f7")
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorBright = lipgloss.Color("#cdd6f4")
)

// Outcome colours, indexed by engine.Outcome.
var outcomeColors = map[engine.Outcome]*lipgloss.Color{
	engine.OutcomeError:   &ColorRed,
	engine.OutcomeAborted: &ColorPeach,
	engine.OutcomeSkipped: &ColorMauve,
	engine.OutcomeWarning: &ColorYellow,
	engine.OutcomeDone:    &ColorGreen,
}

// ApplyTheme overrides colours from a config ThemeConfig.
func ApplyTheme(tc config.ThemeConfig) {
	set := func(dst *lipgloss.Color, v *string) {
		if v != nil {
			*dst = lipgloss.Color(*v)
		}
	}
	set(&ColorRed, tc.Error)
	set(&ColorPeach, tc.Aborted)
	set(&ColorMauve, tc.Skipped)
	set(&ColorYellow, tc.Warning)
	set(&ColorGreen, tc.Done)
	set(&ColorMuted, tc.Muted)
}

// OutcomeStyle returns the style for a report outcome label.
func OutcomeStyle(o engine.Outcome) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	if c, ok := outcomeColors[o]; ok {
		s = s.Foreground(*c)
	}
	return s
}

// MutedStyle is used for secondary text such as directory prefixes.
func MutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorMuted)
}
