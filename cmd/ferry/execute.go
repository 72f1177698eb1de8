package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/ui/tui"
)

// startJob scans rawPaths, records a new job and runs it.
func (o *options) startJob(spec engine.JobSpec, rawPaths []string, t tuning) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	spec.Cwd = cwd

	paths := make([]string, len(rawPaths))
	for i, p := range rawPaths {
		if paths[i], err = filepath.Abs(p); err != nil {
			return err
		}
	}

	var mapper archive.Mapper = archive.Identity{}
	if len(spec.Archives) > 0 {
		mapper = archive.NewTable(spec.Archives)
	}

	res := o.scan(paths, mapper, spec.Kind != job.Delete)
	if res.Aborted {
		fmt.Fprintln(o.stderr, "scan aborted; nothing was changed")
		return &exitError{code: exitPartial}
	}
	if len(res.Entries) == 0 {
		slog.Info("nothing to do")
		return nil
	}

	store, err := o.openStore()
	if err != nil {
		// The job still runs; it just cannot be resumed.
		slog.Warn("job database unavailable, running without resume", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	op, err := engine.Initiate(store, spec, res.Entries)
	if err != nil {
		return err
	}
	return o.execute(store, op, t)
}

// scan inventories paths while showing scan progress.
func (o *options) scan(paths []string, mapper archive.Mapper, metadata bool) engine.ScanResult {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newScanControl(cancel)
	stop := routeSignals(ctl)
	defer stop()

	progress := event.NewLatest[engine.ScanProgress]()
	done := make(chan struct{})

	var res engine.ScanResult
	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		res = engine.Scan(ctx, engine.ScanConfig{
			Mapper:       mapper,
			Control:      ctl.signals,
			Progress:     progress,
			Paths:        paths,
			ReadMetadata: metadata,
		})
		return nil
	})
	if !o.quiet && !o.noProgress {
		g.Go(func() error {
			ui.WatchScan(o.stderr, ui.IsTTY(o.stderr), progress, done)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // neither goroutine fails

	for _, e := range res.Errors {
		slog.Warn("cannot list directory", "path", e.Path, "error", e.Message)
	}
	for _, p := range res.Skipped {
		slog.Info("skipped", "path", p)
	}
	slog.Debug("scan finished", "entries", len(res.Entries), "aborted", res.Aborted)
	return res
}

// execute runs op on a worker, shows progress until it finishes, then
// prints the report and acknowledges the job.
func (o *options) execute(store *jobstore.Store, op engine.Op, t tuning) error {
	collector := stats.NewCollector()
	progress := event.NewLatest[engine.Progress]()

	var j job.Job
	switch x := op.(type) {
	case *engine.Transfer:
		x.Stats, x.Progress = collector, progress
		x.BlockSize, x.Limiter, x.Verify = t.blockSize, t.limiter, t.verify
		j = x.Job
	case *engine.Removal:
		x.Stats, x.Progress = collector, progress
		j = x.Job
	}
	slog.Debug("starting job",
		"id", j.ID,
		"kind", j.Kind,
		"dest", j.Dest,
		"on_conflict", j.OnConflict,
		"verify", t.verify,
	)

	w := engine.Start(context.Background(), op)
	stop := routeSignals(w)
	defer stop()

	presenter := o.presenter(w, collector, j)
	var res engine.Result
	var g errgroup.Group
	g.Go(func() error {
		return presenter.Run(ui.Source{Progress: progress, Done: w.Done()})
	})
	g.Go(func() error {
		res = w.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Warn("presenter failed", "error", err)
	}
	stop()

	return o.finish(store, j, res)
}

//nolint:ireturn // picks one of several presenters
func (o *options) presenter(w *engine.Worker, collector *stats.Collector, j job.Job) ui.Presenter {
	isTTY := ui.IsTTY(o.stderr)
	if o.tui && !o.quiet {
		if isTTY && ui.IsTTY(os.Stdin) {
			return tui.NewPresenter(tui.Config{
				Stats:      collector,
				Controller: w,
				Title:      j.Kind.String(),
				Root:       j.Cwd,
			})
		}
		slog.Warn("--tui requires a terminal, falling back to inline output")
	}
	return ui.NewPresenter(ui.Config{
		Writer:     o.stderr,
		Stats:      collector,
		Title:      j.Kind.String(),
		Root:       j.Cwd,
		Suspended:  w.Suspended,
		Width:      ui.TermWidth(o.stderr),
		IsTTY:      isTTY,
		Quiet:      o.quiet,
		NoProgress: o.noProgress,
	})
}

// finish reports the result. A job that ran to an end is acknowledged and
// leaves the store; an interrupted one stays for `ferry resume`.
func (o *options) finish(store *jobstore.Store, j job.Job, res engine.Result) error {
	slog.Debug("job finished", "id", j.ID, "status", res.Status, "interrupted", res.Interrupted, "stats", res.Stats)
	lines := engine.Report(res, j.Cwd)
	failed := res.Status == job.JobAborted || res.Stats.FilesFailed > 0
	if !o.quiet || failed || res.Interrupted {
		ui.WriteReport(ui.ReportConfig{Writer: o.stderr, Color: ui.IsTTY(o.stderr)}, lines, res)
	}

	if res.Interrupted {
		if store != nil && j.ID != 0 {
			fmt.Fprintf(o.stderr, "job %d can be continued with: ferry resume %d\n", j.ID, j.ID)
		}
		return &exitError{code: exitInterrupted}
	}
	if err := engine.Acknowledge(store, j.ID); err != nil {
		slog.Warn("failed to remove finished job", "job", j.ID, "error", err)
	}
	if failed {
		return &exitError{code: exitPartial}
	}
	return nil
}
