package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/event"
)

// WatchScan shows scan progress until done is closed. On a terminal the
// status line is redrawn in place and cleared at the end; otherwise a line
// is written every few seconds.
func WatchScan(w io.Writer, isTTY bool, progress *event.Latest[engine.ScanProgress], done <-chan struct{}) {
	interval := plainInterval
	if isTTY {
		interval = hudRedraw
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	drawn := false
	for {
		select {
		case <-done:
			if drawn {
				fmt.Fprint(w, "\r\033[K")
			}
			return
		case <-ticker.C:
			p, ok := progress.Load()
			if !ok {
				continue
			}
			line := scanLine(p)
			if isTTY {
				fmt.Fprintf(w, "\r\033[K%s", line)
				drawn = true
			} else {
				fmt.Fprintln(w, line)
			}
		}
	}
}

func scanLine(p engine.ScanProgress) string {
	s := "scanning: " + FormatCount(p.Files) + " entries"
	if p.Sized {
		s += ", " + FormatBytes(p.Bytes)
	}
	if p.Current != "" {
		s += "  " + truncPath(p.Current, 60)
	}
	return s
}
