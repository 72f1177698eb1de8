package ui

import (
	"fmt"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/job"
)

// CompletionSummary builds a final summary line from a result.
// Format: done ✓  files 48,917/48,917  size 2.1 GiB  avg 641 MB/s  time 3m 17s  skipped 0  errors 0
func CompletionSummary(res engine.Result) string {
	snap := res.Stats
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesDone) / snap.Elapsed.Seconds()
	}

	label, icon := "done", "✓"
	switch {
	case res.Interrupted:
		label, icon = "interrupted", "…"
	case res.Status == job.JobAborted:
		label, icon = "aborted", "✗"
	case snap.FilesFailed > 0:
		icon = "✗"
	}

	return fmt.Sprintf("%s %s  files %s/%s  size %s  avg %s  time %s  skipped %d  errors %d",
		label, icon,
		FormatCount(snap.FilesDone),
		FormatCount(snap.FilesTotal),
		FormatBytes(snap.BytesDone),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
		snap.FilesSkipped,
		snap.FilesFailed,
	)
}
