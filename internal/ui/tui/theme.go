package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/ferry/internal/ui"
)

// Pre-built styles, rebuilt by rebuildStyles() after the ui palette changes.
var (
	styleHeader         lipgloss.Style
	styleHeaderLabel    lipgloss.Style
	styleFilePath       lipgloss.Style
	styleFileDir        lipgloss.Style
	styleFileSize       lipgloss.Style
	styleBigNumber      lipgloss.Style
	styleSparkline      lipgloss.Style
	styleProgressFilled lipgloss.Style
	styleSuspended      lipgloss.Style
	styleKeybindKey     lipgloss.Style
	styleKeybindLabel   lipgloss.Style
	styleStatus         lipgloss.Style
)

func init() {
	rebuildStyles()
}

// rebuildStyles reconstructs all lipgloss styles from the ui colour vars.
func rebuildStyles() {
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorBright)
	styleHeaderLabel = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorMauve)
	styleFilePath = lipgloss.NewStyle().Foreground(ui.ColorBright)
	styleFileDir = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	styleFileSize = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	styleBigNumber = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorGreen)
	styleSparkline = lipgloss.NewStyle().Foreground(ui.ColorBlue)
	styleProgressFilled = lipgloss.NewStyle().Foreground(ui.ColorGreen)
	styleSuspended = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorYellow)
	styleKeybindKey = lipgloss.NewStyle().Foreground(ui.ColorMauve).Bold(true)
	styleKeybindLabel = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	styleStatus = lipgloss.NewStyle().Foreground(ui.ColorYellow).Italic(true)
}
