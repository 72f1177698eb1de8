package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
)

type transferKind struct {
	use   string
	short string
	kind  job.Kind
}

var (
	transferCopy = transferKind{
		use:   "cp [flags] <source>... <destination>",
		short: "Copy files and directory trees",
		kind:  job.Copy,
	}
	transferMove = transferKind{
		use:   "mv [flags] <source>... <destination>",
		short: "Move files and directory trees, by rename where possible",
		kind:  job.Move,
	}
)

func newTransferCmd(opts *options, k transferKind) *cobra.Command {
	var (
		conflict conflictFlag
		archives archiveFlag
		tune     tuningFlags
	)
	cmd := &cobra.Command{
		Use:   k.use,
		Short: k.short,
		Long: k.short + `.

A single source whose destination does not exist is copied to the
destination name; otherwise sources land inside the destination directory.
Progress is recorded in the job database, so an interrupted job can be
continued with "ferry resume".`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("on-conflict") && opts.cfg.Defaults.OnConflict != nil {
				if err := conflict.Set(*opts.cfg.Defaults.OnConflict); err != nil {
					return fmt.Errorf("config on_conflict: %w", err)
				}
			}
			t, err := tune.resolve(cmd, opts.cfg.Defaults)
			if err != nil {
				return err
			}
			dest, err := filepath.Abs(args[len(args)-1])
			if err != nil {
				return err
			}
			return opts.startJob(engine.JobSpec{
				Dest:       dest,
				Archives:   archives.mounts,
				Kind:       k.kind,
				OnConflict: conflict.policy,
			}, args[:len(args)-1], t)
		},
	}
	cmd.Flags().Var(&conflict, "on-conflict",
		"what to do when a target exists: overwrite, skip, rename-existing or rename-copy")
	cmd.Flags().Var(&archives, "archive-map",
		"treat paths under ARCHIVE as living under the mounted directory MOUNT (repeatable)")
	tune.register(cmd.Flags())
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	var archives archiveFlag
	cmd := &cobra.Command{
		Use:   "rm [flags] <path>...",
		Short: "Delete files and directory trees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return opts.startJob(engine.JobSpec{
				Archives: archives.mounts,
				Kind:     job.Delete,
			}, args, tuning{})
		},
	}
	cmd.Flags().Var(&archives, "archive-map",
		"treat paths under ARCHIVE as living under the mounted directory MOUNT (repeatable)")
	return cmd
}

func newJobsCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs left behind by interrupted or crashed runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := opts.requireStore()
			if err != nil {
				return err
			}
			defer store.Close()

			list := store.Pending
			if all {
				list = store.Jobs
			}
			jobs, err := list()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(opts.stdout, "no pending jobs")
				return nil
			}
			return writeJobs(opts, store, jobs)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include jobs that finished but were never acknowledged")
	return cmd
}

func writeJobs(opts *options, store *jobstore.Store, jobs []job.Job) error {
	tw := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tENTRIES\tCREATED\tDEST")
	for _, j := range jobs {
		entries, err := store.Entries(j.ID)
		if err != nil {
			return err
		}
		settled := 0
		for _, e := range entries {
			if e.Status.Terminal() {
				settled++
			}
		}
		dest := j.Dest
		if dest == "" {
			dest = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Kind, j.Status, settled, len(entries),
			j.CreatedAt.Local().Format("2006-01-02 15:04"), dest)
	}
	return tw.Flush()
}

func newResumeCmd(opts *options) *cobra.Command {
	var tune tuningFlags
	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Continue an interrupted job where it stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			t, err := tune.resolve(cmd, opts.cfg.Defaults)
			if err != nil {
				return err
			}
			store, err := opts.requireStore()
			if err != nil {
				return err
			}
			defer store.Close()

			op, err := engine.Resume(store, id)
			if err != nil {
				return jobError(id, err)
			}
			return opts.execute(store, op, t)
		},
	}
	tune.register(cmd.Flags())
	return cmd
}

func newDiscardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Forget a pending job without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			store, err := opts.requireStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Claim(id); err != nil {
				return jobError(id, err)
			}
			if err := engine.Acknowledge(store, id); err != nil {
				return jobError(id, err)
			}
			if !opts.quiet {
				fmt.Fprintf(opts.stdout, "discarded job %d\n", id)
			}
			return nil
		},
	}
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func jobError(id int64, err error) error {
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		return fmt.Errorf("no job %d", id)
	case errors.Is(err, jobstore.ErrClaimed):
		return fmt.Errorf("job %d is being run by another ferry process", id)
	}
	return fmt.Errorf("job %d: %w", id, err)
}
