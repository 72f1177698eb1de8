package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
	"golang.org/x/sys/unix"
)

// Removal deletes an inventory children first. Deletion has no partial
// state, so the store is only used to make progress visible after a crash.
type Removal struct {
	Store    *jobstore.Store
	Mapper   archive.Mapper
	Stats    *stats.Collector
	Progress *event.Latest[Progress]
	Control  <-chan event.Signal
	queue    *event.Queue
	Job      job.Job
	Entries  []job.Entry
}

func (rm *Removal) run(ctx context.Context) Result {
	r := newRunner(ctx, runnerConfig{
		store:    rm.Store,
		mapper:   rm.Mapper,
		stats:    rm.Stats,
		progress: rm.Progress,
		signals:  rm.Control,
		queue:    rm.queue,
		entries:  rm.Entries,
		jobID:    rm.Job.ID,
	})
	job.SortDescending(r.entries)
	slog.Debug("removal starting", "job", r.jobID, "entries", len(r.entries))

	aborted := false
	for i := range r.entries {
		e := &r.entries[i]
		if e.Settled() {
			continue
		}

		kind, err := r.ctl.next()
		if err != nil {
			return r.finish(job.JobInProgress, true)
		}
		if kind == event.Abort {
			aborted = true
			break
		}
		if kind == event.Skip {
			r.settle(e, job.Skipped, "")
			continue
		}

		r.publish(Progress{Source: e.Path})
		path := archive.ActualParent(r.mapper, e.Path)
		step := "unlink"
		if e.IsDir() {
			step = "rmdir"
			err = unix.Rmdir(path)
		} else {
			err = unix.Unlink(path)
		}
		switch {
		case err == nil, errors.Is(err, unix.ENOENT):
			r.settle(e, job.Done, "")
		default:
			r.fail(e, step, err)
		}
	}

	platform.SyncAll()
	status := job.JobDone
	if aborted {
		status = job.JobAborted
	}
	slog.Debug("removal finished", "job", r.jobID, "status", status.String())
	return r.finish(status, false)
}
