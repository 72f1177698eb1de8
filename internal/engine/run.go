package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/stats"
)

// Progress is the snapshot published while a transfer or removal runs.
type Progress struct {
	Source string
	Target string
	// FileDone and FileSize describe the entry currently being copied.
	FileDone int64
	FileSize int64
	Stats    stats.Snapshot
}

// Result is the outcome of a run.
type Result struct {
	Entries []job.Entry
	Stats   stats.Snapshot
	Status  job.JobStatus
	// Interrupted is set when the context was canceled. Statuses were left
	// as they were, so the job can be resumed.
	Interrupted bool
}

// control drains the inbound signal stream without blocking the engine.
type control struct {
	ctx      context.Context
	signals  <-chan event.Signal
	// queue, when set, is polled instead of signals.
	queue    *event.Queue
	stats    *stats.Collector
	onDetach func()
}

// next handles every pending signal. Suspend blocks until resumed and
// removes the suspended interval from elapsed time; Detach is applied in
// place. Skip and Abort are returned for the caller to act on. A canceled
// context is returned as an error.
func (c *control) next() (event.SignalKind, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		sig, ok := c.poll()
		if !ok {
			return 0, nil
		}
		switch sig.Kind {
		case event.Suspend:
			start := time.Now()
			slog.Debug("suspended")
			if err := sig.Wait(c.ctx); err != nil {
				return 0, err
			}
			if c.stats != nil {
				c.stats.Shift(time.Since(start))
			}
			slog.Debug("resumed", "after", time.Since(start))
		case event.Detach:
			if c.onDetach != nil {
				c.onDetach()
			}
		case event.Skip, event.Abort:
			return sig.Kind, nil
		}
	}
}

func (c *control) poll() (event.Signal, bool) {
	if c.queue != nil {
		return c.queue.Poll()
	}
	return event.Poll(c.signals)
}

// runner holds what transfers and removals share: the nullable store
// handle, control, accounting and progress.
type runner struct {
	store    *jobstore.Store
	mapper   archive.Mapper
	stats    *stats.Collector
	progress *event.Latest[Progress]
	throttle *event.Throttle
	ctl      control
	entries  []job.Entry
	jobID    int64
}

type runnerConfig struct {
	store    *jobstore.Store
	mapper   archive.Mapper
	stats    *stats.Collector
	progress *event.Latest[Progress]
	signals  <-chan event.Signal
	queue    *event.Queue
	entries  []job.Entry
	jobID    int64
}

func newRunner(ctx context.Context, cfg runnerConfig) *runner {
	r := &runner{
		store:    cfg.store,
		mapper:   archive.OrIdentity(cfg.mapper),
		stats:    cfg.stats,
		progress: cfg.progress,
		throttle: event.NewThrottle(event.ProgressInterval),
		entries:  append([]job.Entry(nil), cfg.entries...),
		jobID:    cfg.jobID,
	}
	if r.stats == nil {
		r.stats = stats.NewCollector()
	}
	r.ctl = control{ctx: ctx, signals: cfg.signals, queue: cfg.queue, stats: r.stats, onDetach: r.detach}

	// Store-less runs have no row ids; entries still need distinct ones.
	if len(r.entries) > 0 && r.entries[0].ID == 0 {
		for i := range r.entries {
			r.entries[i].ID = int64(i + 1)
		}
	}

	var bytes int64
	for _, e := range r.entries {
		if e.Type == job.File {
			bytes += e.Size
		}
	}
	r.stats.SetTotals(int64(len(r.entries)), bytes)
	for _, e := range r.entries {
		r.count(e)
		if e.Status == job.Done && e.Type == job.File {
			r.stats.AddBytesDone(e.Size)
		}
	}
	return r
}

// persist runs f against the store if one is still attached. Store
// failures never stop a job; they cost resumability, not correctness.
func (r *runner) persist(op string, f func(s *jobstore.Store) error) {
	if r.store == nil {
		return
	}
	if err := f(r.store); err != nil {
		slog.Warn("job store write failed", "op", op, "job", r.jobID, "error", err)
	}
}

// detach drops the job from the store and stops persisting for the rest
// of the run.
func (r *runner) detach() {
	if r.store == nil {
		return
	}
	slog.Info("detaching job store", "job", r.jobID)
	if err := r.store.DeleteJob(r.jobID); err != nil {
		slog.Warn("delete detached job", "job", r.jobID, "error", err)
	}
	r.store = nil
}

func (r *runner) release() {
	r.persist("release", func(s *jobstore.Store) error { return s.Release(r.jobID) })
}

func (r *runner) count(e job.Entry) {
	switch e.Status {
	case job.Done:
		r.stats.AddFilesDone(1)
	case job.Error:
		r.stats.AddFilesFailed(1)
	case job.Skipped:
		r.stats.AddFilesSkipped(1)
	}
}

// settle moves e to a terminal status and records it.
func (r *runner) settle(e *job.Entry, status job.Status, message string) {
	next, err := e.Status.Advance(status)
	if err != nil {
		slog.Warn("ignoring status change", "path", e.Path, "error", err)
		return
	}
	e.Status = next
	e.Message = message
	r.count(*e)
	r.persist("set status", func(s *jobstore.Store) error {
		return s.SetEntryStatus(e.ID, e.Status, e.Message)
	})
}

// fail records a per-entry error as "(<step>) <error>".
func (r *runner) fail(e *job.Entry, step string, err error) {
	slog.Debug("entry failed", "path", e.Path, "step", step, "error", err)
	r.settle(e, job.Error, fmt.Sprintf("(%s) %v", step, err))
}

func (r *runner) publish(p Progress) {
	r.throttle.Do(func() { r.publishNow(p) })
}

func (r *runner) publishNow(p Progress) {
	p.Stats = r.stats.Snapshot()
	r.progress.Publish(p)
}

func (r *runner) finish(status job.JobStatus, interrupted bool) Result {
	if !interrupted {
		r.persist("set job status", func(s *jobstore.Store) error { return s.SetJobStatus(r.jobID, status) })
	}
	r.release()
	r.publishNow(Progress{})
	return Result{
		Entries:     r.entries,
		Stats:       r.stats.Snapshot(),
		Status:      status,
		Interrupted: interrupted,
	}
}
