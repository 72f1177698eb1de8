package ui

import (
	"fmt"
	"time"

	"github.com/bamsammich/ferry/internal/engine"
)

const plainInterval = 5 * time.Second

// plainPresenter writes a progress line at a fixed interval. It is used
// when output is not a terminal, so nothing is redrawn in place.
type plainPresenter struct {
	cfg      Config
	interval time.Duration
}

func (p *plainPresenter) Run(src Source) error {
	interval := p.interval
	if interval <= 0 {
		interval = plainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-src.Done:
			return nil
		case <-secTicker.C:
			p.cfg.Stats.Tick()
		case <-ticker.C:
			prog, _ := src.Progress.Load()
			fmt.Fprintln(p.cfg.Writer, p.line(prog))
		}
	}
}

func (p *plainPresenter) line(prog engine.Progress) string {
	snap := p.cfg.Stats.Snapshot()
	s := fmt.Sprintf("%s: %.0f%% %s/%s %s/%s files %s eta %s",
		p.cfg.Title,
		Percent(snap.BytesDone, snap.BytesTotal)*100,
		FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal),
		FormatCount(snap.FilesDone+snap.FilesFailed+snap.FilesSkipped), FormatCount(snap.FilesTotal),
		FormatRate(p.cfg.Stats.Speed()),
		FormatETA(p.cfg.Stats.ETA()),
	)
	if p.cfg.Suspended != nil && p.cfg.Suspended() {
		s += " (suspended)"
	}
	if prog.Source != "" {
		s += "  " + StripRoot(p.cfg.Root, prog.Source)
	}
	return s
}
