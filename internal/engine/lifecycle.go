package engine

import (
	"fmt"
	"slices"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
)

// JobSpec describes a new job.
type JobSpec struct {
	Cwd        string
	Dest       string
	Archives   []job.ArchiveMount
	Kind       job.Kind
	OnConflict job.OnConflict
}

// Initiate creates a job for entries and returns the op that runs it. With
// a store the job and its entries are recorded and claimed first; without
// one the job runs but cannot be resumed.
func Initiate(store *jobstore.Store, spec JobSpec, entries []job.Entry) (Op, error) {
	j := job.Job{
		Kind:       spec.Kind,
		Cwd:        spec.Cwd,
		Dest:       spec.Dest,
		OnConflict: spec.OnConflict,
		Archives:   spec.Archives,
		Status:     job.JobInProgress,
	}
	// Entries the scanner could not read arrive already settled as errors.
	entries = slices.Clone(entries)

	if store != nil {
		if err := store.CreateJob(&j, entries); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
		if err := store.Claim(j.ID); err != nil {
			return nil, err
		}
	}
	return newOp(store, j, entries), nil
}

// Resume reloads a pending job from store and returns the op that
// continues it. It fails with jobstore.ErrClaimed while another live
// process drives the job.
func Resume(store *jobstore.Store, id int64) (Op, error) {
	if err := store.Claim(id); err != nil {
		return nil, err
	}
	j, err := store.Job(id)
	if err != nil {
		return nil, err
	}
	entries, err := store.Entries(id)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	if j.Status != job.JobInProgress {
		j.Status = job.JobInProgress
		if err := store.SetJobStatus(id, j.Status); err != nil {
			return nil, err
		}
	}

	op := newOp(store, j, entries)
	t, ok := op.(*Transfer)
	if !ok {
		return op, nil
	}
	if t.Dirs, err = store.DirCompletions(id); err != nil {
		return nil, fmt.Errorf("load dir completions: %w", err)
	}
	if t.RenameBarriers, err = store.RenameBarriers(id); err != nil {
		return nil, fmt.Errorf("load rename barriers: %w", err)
	}
	if t.SkipBarriers, err = store.SkipBarriers(id); err != nil {
		return nil, fmt.Errorf("load skip barriers: %w", err)
	}
	return t, nil
}

// Acknowledge deletes a finished job once its report has been shown.
func Acknowledge(store *jobstore.Store, id int64) error {
	if store == nil {
		return nil
	}
	return store.DeleteJob(id)
}

func newOp(store *jobstore.Store, j job.Job, entries []job.Entry) Op {
	var mapper archive.Mapper = archive.Identity{}
	if len(j.Archives) > 0 {
		mapper = archive.NewTable(j.Archives)
	}
	if j.Kind == job.Delete {
		return &Removal{Store: store, Mapper: mapper, Job: j, Entries: entries}
	}
	return &Transfer{Store: store, Mapper: mapper, Job: j, Entries: entries}
}
