package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/ui"
)

// Config configures the TUI presenter.
type Config struct {
	Stats      *stats.Collector
	Controller Controller
	Title      string
	Root       string
}

// Presenter wraps a Bubble Tea program and implements ui.Presenter.
type Presenter struct {
	cfg Config
}

// NewPresenter creates a new TUI presenter. Styles pick up whatever
// ui.ApplyTheme has set by now.
func NewPresenter(cfg Config) *Presenter {
	rebuildStyles()
	return &Presenter{cfg: cfg}
}

// Run starts the Bubble Tea program and blocks until the job is done.
// Signals stay with the caller, which maps them onto the controller.
func (p *Presenter) Run(src ui.Source) error {
	prog := tea.NewProgram(
		NewModel(p.cfg, src),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	_, err := prog.Run()
	return err
}
