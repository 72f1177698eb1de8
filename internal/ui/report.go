package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bamsammich/ferry/internal/engine"
)

// outcomeWidth pads labels so paths line up.
const outcomeWidth = len("WARNING")

// ReportConfig controls how a final report is written.
type ReportConfig struct {
	Writer io.Writer
	// Color enables lipgloss styling; off when the writer is not a terminal.
	Color bool
}

// WriteReport prints one line per report entry followed by a summary.
// It returns the number of lines written, excluding the summary.
func WriteReport(cfg ReportConfig, lines []engine.ReportLine, res engine.Result) int {
	for _, l := range lines {
		label := fmt.Sprintf("%-*s", outcomeWidth, l.Outcome.String())
		path := l.Path
		if cfg.Color {
			label = OutcomeStyle(l.Outcome).Render(label)
			path = styledPath(path)
		}
		if l.Message != "" {
			fmt.Fprintf(cfg.Writer, "%s  %s  %s\n", label, path, l.Message)
		} else {
			fmt.Fprintf(cfg.Writer, "%s  %s\n", label, path)
		}
	}
	fmt.Fprintln(cfg.Writer, CompletionSummary(res))
	return len(lines)
}

// styledPath dims the directory part so the file name stands out.
func styledPath(path string) string {
	dir, base := filepath.Split(path)
	if dir == "" {
		return base
	}
	return MutedStyle().Render(dir) + base
}

// StripRoot removes a root prefix from a path, returning a clean relative path.
func StripRoot(root, path string) string {
	if root == "" {
		return path
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if strings.HasPrefix(path, root) {
		return path[len(root):]
	}
	return path
}
