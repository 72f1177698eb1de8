package ui

import (
	"io"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

// Source is what a presenter watches: the progress mailbox of a running
// job and a channel closed when the job finishes.
type Source struct {
	Progress *event.Latest[engine.Progress]
	Done     <-chan struct{}
}

// Presenter displays progress of a running job.
type Presenter interface {
	// Run renders progress until src.Done is closed. Blocks until done.
	Run(src Source) error
}

// Config configures a Presenter.
type Config struct {
	Writer io.Writer
	Stats  *stats.Collector
	// Title names the operation, e.g. "copy" or "delete".
	Title string
	// Root is stripped from displayed paths.
	Root string
	// Suspended reports whether the job is paused. Optional.
	Suspended func() bool
	// Width is the terminal width; zero means 80 columns.
	Width      int
	IsTTY      bool
	Quiet      bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet || cfg.NoProgress {
		return quietPresenter{}
	}
	if !cfg.IsTTY {
		return &plainPresenter{cfg: cfg}
	}
	return &hudPresenter{cfg: cfg}
}
