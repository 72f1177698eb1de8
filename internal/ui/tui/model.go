package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/ui"
)

// Controller steers the running job. *engine.Worker implements it.
type Controller interface {
	Suspend()
	Resume()
	Suspended() bool
	Skip()
	Abort()
	Detach()
	Done() <-chan struct{}
}

// Bubble Tea messages.
type progressMsg engine.Progress
type jobDoneMsg struct{}
type tickMsg time.Time

// waitProgress blocks until the mailbox has a newer value or the job ends.
func waitProgress(progress *event.Latest[engine.Progress], done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-progress.Updated():
			p, _ := progress.Load()
			return progressMsg(p)
		case <-done:
			return jobDoneMsg{}
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the progress dialog of a single job.
type Model struct {
	ctl      Controller
	progress *event.Latest[engine.Progress]
	stats    *stats.Collector
	title    string
	root     string

	width  int
	height int

	current   engine.Progress
	lastSnap  stats.Snapshot
	lastSpeed float64
	lastETA   time.Duration
	statusMsg string // transient notification
	done      bool
}

// NewModel creates a dialog for the job driven by ctl.
func NewModel(cfg Config, src ui.Source) Model {
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	return Model{
		ctl:      cfg.Controller,
		progress: src.Progress,
		stats:    collector,
		title:    cfg.Title,
		root:     cfg.Root,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitProgress(m.progress, m.ctl.Done()),
		tickCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case progressMsg:
		m.current = engine.Progress(msg)
		m.lastSnap = m.current.Stats
		return m, waitProgress(m.progress, m.ctl.Done())

	case jobDoneMsg:
		m.done = true
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.stats.Tick()
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		m.lastETA = m.stats.ETA()
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p", " ":
		if m.ctl.Suspended() {
			m.ctl.Resume()
			m.statusMsg = "resumed"
		} else {
			m.ctl.Suspend()
			m.statusMsg = "suspended"
		}

	case "s":
		m.ctl.Skip()
		m.statusMsg = "skipping " + ui.StripRoot(m.root, m.current.Source)

	case "a", "q", "ctrl+c":
		// Aborting resumes a suspended job on its own; the dialog stays up
		// until the worker reports it has stopped.
		m.ctl.Abort()
		m.statusMsg = "aborting"

	case "d":
		m.ctl.Detach()
		m.statusMsg = "detached: this job can no longer be resumed"
	}
	return m, nil
}

func (m Model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString("  " + styleBigNumber.Render(ui.FormatRate(m.lastSpeed)))
	b.WriteString("\n\n")

	sparkWidth := max(m.width-4, 10)
	spark := ui.Sparkline(m.stats.SparklineData(sparkWidth), sparkWidth)
	b.WriteString("  " + styleSparkline.Render(spark))
	b.WriteString("\n\n")

	b.WriteString(m.renderCurrent())
	b.WriteString("\n\n")

	if m.statusMsg != "" {
		b.WriteString(styleStatus.Render("  " + m.statusMsg))
	}
	b.WriteByte('\n')

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.lastSnap
	pct := ui.Percent(snap.BytesDone, snap.BytesTotal)
	settled := snap.FilesDone + snap.FilesFailed + snap.FilesSkipped

	header := fmt.Sprintf("  %s  %3.0f%%  %s  %s / %s  %s / %s files  eta %s",
		styleHeaderLabel.Render(m.title),
		pct*100,
		styleProgressFilled.Render(ui.ProgressBar(pct, 10)),
		ui.FormatBytes(snap.BytesDone),
		ui.FormatBytes(snap.BytesTotal),
		ui.FormatCount(settled),
		ui.FormatCount(snap.FilesTotal),
		ui.FormatETA(m.lastETA),
	)
	if m.ctl.Suspended() {
		header += "  " + styleSuspended.Render("suspended")
	}
	return styleHeader.Render(header)
}

func (m Model) renderCurrent() string {
	if m.current.Source == "" {
		return ""
	}
	path := ui.StripRoot(m.root, m.current.Source)
	dir, base := filepath.Split(path)
	line := "  " + styleFileDir.Render(dir) + styleFilePath.Render(base)
	if m.current.FileSize > 0 {
		line += "  " + styleFileSize.Render(fmt.Sprintf("%s / %s",
			ui.FormatBytes(m.current.FileDone), ui.FormatBytes(m.current.FileSize)))
	}
	return line
}

func (m Model) renderFooter() string {
	type keybind struct {
		key   string
		label string
	}
	pause := "suspend"
	if m.ctl.Suspended() {
		pause = "resume"
	}
	binds := []keybind{
		{"p", pause},
		{"s", "skip"},
		{"a", "abort"},
		{"d", "detach"},
	}

	var parts []string
	for _, kb := range binds {
		parts = append(parts,
			styleKeybindKey.Render(kb.key)+" "+styleKeybindLabel.Render(kb.label))
	}
	return "  " + strings.Join(parts, "   ")
}
