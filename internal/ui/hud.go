package ui

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bamsammich/ferry/internal/engine"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
	hudRedraw        = 100 * time.Millisecond
)

// hudPresenter redraws a three-line display in place: throughput, overall
// progress and the entry being worked on.
type hudPresenter struct {
	cfg Config

	hudDrawn     bool
	hudLineCount int // actual number of lines in the last HUD draw
	lastHUDDraw  time.Time
}

func (p *hudPresenter) Run(src Source) error {
	// Fire first tick quickly to seed the ring buffer with initial speed data,
	// then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no progress is published (e.g. suspended).
	redrawTicker := time.NewTicker(hudRedraw)
	defer redrawTicker.Stop()

	for {
		select {
		case <-src.Done:
			p.clearHUD()
			return nil

		case <-src.Progress.Updated():
			p.maybeDrawHUD(src)

		case <-redrawTicker.C:
			p.drawHUD(src)

		case <-secTicker.C:
			p.cfg.Stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD(src Source) {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD(src)
}

func (p *hudPresenter) drawHUD(src Source) {
	prog, _ := src.Progress.Load()
	snap := p.cfg.Stats.Snapshot()

	p.clearHUD()
	w := p.cfg.Writer

	// Line 1: throughput sparkline + speed + byte totals.
	spark := Sparkline(p.cfg.Stats.SparklineData(sparklineWidth), sparklineWidth)
	fmt.Fprintf(w, "%s%-6s%s %s   %s   %s / %s\n",
		ansiBold, p.cfg.Title, ansiReset,
		spark, FormatRate(p.cfg.Stats.Speed()),
		FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal))

	// Line 2: progress bar (▪/□) + files + eta.
	pct := Percent(snap.BytesDone, snap.BytesTotal)
	settled := snap.FilesDone + snap.FilesFailed + snap.FilesSkipped
	state := ""
	if p.cfg.Suspended != nil && p.cfg.Suspended() {
		state = "   " + ansiBold + "suspended" + ansiReset
	}
	fmt.Fprintf(w, " %3.0f%%  %s   %s / %s files   eta %s%s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(settled), FormatCount(snap.FilesTotal),
		FormatETA(p.cfg.Stats.ETA()), state)

	// Line 3: current entry.
	fmt.Fprintln(w, p.currentLine(prog))

	p.hudDrawn = true
	p.hudLineCount = 3
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) currentLine(prog engine.Progress) string {
	if prog.Source == "" {
		return ""
	}
	width := p.cfg.Width
	if width <= 0 {
		width = 80
	}
	suffix := ""
	if prog.FileSize > 0 {
		suffix = fmt.Sprintf("  %s / %s", FormatBytes(prog.FileDone), FormatBytes(prog.FileSize))
	}
	// "→ " prefix plus the suffix must fit on the line.
	room := max(width-2-len(suffix), 10)
	return "→ " + p.styledPath(truncPath(StripRoot(p.cfg.Root, prog.Source), room)) + suffix
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	lines := p.hudLineCount
	if lines == 0 {
		lines = 3 // fallback
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.cfg.Writer, "\033[%dA\033[J", lines)
	p.hudDrawn = false
}

// styledPath returns the path with the directory portion dimmed and the
// filename in normal weight, making the actual filename stand out.
func (p *hudPresenter) styledPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-maxLen+3:]
}
