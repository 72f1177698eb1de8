package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Suffixes appended (with a counter) when a conflict is resolved by
// keeping both files.
const (
	saveSuffix = ".ferrysave"
	newSuffix  = ".ferrynew"
)

var errChecksum = errors.New("checksum mismatch")

// Transfer copies or moves an inventory into Job.Dest. Entries are handled
// in ascending path order; directories are finalized afterwards in
// descending order so their contents are complete first.
type Transfer struct {
	// Store is optional. Without it the run is not resumable and ends with
	// a filesystem-wide sync instead of per-entry fsyncs.
	Store    *jobstore.Store
	Mapper   archive.Mapper
	Stats    *stats.Collector
	Progress *event.Latest[Progress]
	Control  <-chan event.Signal
	queue    *event.Queue
	Job      job.Job
	Entries  []job.Entry
	// Dirs and the barrier stacks are only set when resuming.
	Dirs           []job.DirCompletion
	RenameBarriers []job.RenameBarrier
	SkipBarriers   []job.SkipBarrier
	// BlockSize is the copy chunk before rounding to the destination
	// filesystem's block size. Zero means platform.DefaultBlockSize.
	BlockSize int64
	// Limiter caps copy throughput when set.
	Limiter *rate.Limiter
	// Verify compares BLAKE3 digests of source and target after each copy.
	Verify bool
}

type outcome int

const (
	proceed outcome = iota
	// settled means the entry already reached a terminal status.
	settled
	abort
	interrupt
)

type transferRun struct {
	*runner
	t            *Transfer
	copier       *platform.Copier
	renames      *job.Stack[job.RenameBarrier]
	skips        *job.Stack[job.SkipBarrier]
	dirs         []job.DirCompletion
	blockSize    int64
	replaceFirst bool
}

// transferEntry is the working state of one entry.
type transferEntry struct {
	e       *job.Entry
	src     string // actual source path
	dst     string // actual target path
	target  string // display target path
	warning string
	resumed bool
	merge   bool
	// sameFile is set when a RenameExisting copy targets its own source.
	sameFile bool
}

func (t *Transfer) run(ctx context.Context) Result {
	r := &transferRun{
		runner: newRunner(ctx, runnerConfig{
			store:    t.Store,
			mapper:   t.Mapper,
			stats:    t.Stats,
			progress: t.Progress,
			signals:  t.Control,
			queue:    t.queue,
			entries:  t.Entries,
			jobID:    t.Job.ID,
		}),
		t:    t,
		dirs: slices.Clone(t.Dirs),
	}
	job.SortAscending(r.entries)

	dest := r.mapper.Actual(t.Job.Dest)
	r.blockSize = platform.BlockSize(dest, t.BlockSize)
	r.copier = platform.NewCopier(int(r.blockSize))
	r.replaceFirst = r.resolveReplaceFirst(dest)
	if !r.replaceFirst {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			slog.Warn("create destination", "dest", dest, "error", err)
		}
	}

	r.renames = job.NewStack(t.RenameBarriers)
	r.renames.OnPush = func(b job.RenameBarrier) {
		r.persist("push rename barrier", func(s *jobstore.Store) error { return s.PushRenameBarrier(r.jobID, b) })
	}
	r.renames.OnPop = func() {
		r.persist("pop rename barrier", func(s *jobstore.Store) error { return s.PopRenameBarrier(r.jobID) })
	}
	r.skips = job.NewStack(t.SkipBarriers)
	r.skips.OnPush = func(b job.SkipBarrier) {
		r.persist("push skip barrier", func(s *jobstore.Store) error { return s.PushSkipBarrier(r.jobID, b) })
	}
	r.skips.OnPop = func() {
		r.persist("pop skip barrier", func(s *jobstore.Store) error { return s.PopSkipBarrier(r.jobID) })
	}

	slog.Debug("transfer starting",
		"job", r.jobID,
		"kind", t.Job.Kind.String(),
		"entries", len(r.entries),
		"block_size", r.blockSize,
		"copy_method", r.copier.Method().String(),
		"replace_first_path", r.replaceFirst,
	)

	pending := make(map[int64]bool, len(r.dirs))
	for _, d := range r.dirs {
		pending[d.Entry.ID] = true
	}

	aborted := false
	for i := range r.entries {
		e := &r.entries[i]
		if e.Settled() || pending[e.ID] {
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

		switch r.entry(e, kind == event.Skip) {
		case abort:
			aborted = true
		case interrupt:
			return r.finish(job.JobInProgress, true)
		}
		if aborted {
			break
		}
	}

	if !aborted {
		switch r.finalizeDirs() {
		case abort:
			aborted = true
		case interrupt:
			return r.finish(job.JobInProgress, true)
		}
	}

	if r.store == nil {
		platform.SyncAll()
	}
	status := job.JobDone
	if aborted {
		status = job.JobAborted
	}
	slog.Debug("transfer finished", "job", r.jobID, "status", status.String())
	return r.finish(status, false)
}

// resolveReplaceFirst decides once per job whether the first path
// component is replaced by Dest: a single item dragged onto something that
// is not an existing directory.
func (r *transferRun) resolveReplaceFirst(dest string) bool {
	if v := r.t.Job.ReplaceFirstPath; v != nil {
		return *v
	}
	info, err := os.Stat(dest)
	replace := len(job.TopLevel(r.entries)) == 1 && (err != nil || !info.IsDir())
	r.persist("set replace first path", func(s *jobstore.Store) error {
		return s.SetReplaceFirstPath(r.jobID, replace)
	})
	return replace
}

func (r *transferRun) entry(e *job.Entry, skip bool) outcome {
	if b, ok := r.skips.Unwind(func(b job.SkipBarrier) bool { return b.Covers(e.Path) }); ok {
		if b.Skipped {
			r.settle(e, job.Skipped, "")
			return proceed
		}
		if e.Type == job.File {
			r.stats.AddBytesDone(e.Size)
		}
		r.settle(e, job.Done, "")
		return proceed
	}

	target, err := job.TargetPath(e.Path, r.t.Job.Cwd, r.t.Job.Dest, r.replaceFirst)
	if err != nil {
		r.fail(e, "target", err)
		return proceed
	}
	rewritten := false
	if b, ok := r.renames.Unwind(func(b job.RenameBarrier) bool { return b.Covers(target) }); ok {
		target = b.Rewrite(target)
		rewritten = true
	}

	if skip {
		r.skip(e, "")
		return proceed
	}

	x := &transferEntry{e: e, resumed: e.Status == job.InProgress && e.Target != ""}
	if x.resumed {
		target = e.Target
		x.merge = e.TargetIsDir
	}
	x.target = target
	x.src = archive.ActualParent(r.mapper, e.Path)
	x.dst = archive.ActualParent(r.mapper, target)
	if x.resumed && e.Source != "" {
		x.src = archive.ActualParent(r.mapper, e.Source)
		if err := recoverAside(x.src, x.dst); err != nil {
			r.fail(e, "rename", err)
			return proceed
		}
	}

	e.Status = job.InProgress
	e.Target = target
	r.persist("update entry", func(s *jobstore.Store) error { return s.UpdateEntry(*e) })
	r.publish(Progress{Source: e.Path, Target: target, FileSize: e.Size})

	if !x.resumed && !rewritten && r.resolveConflict(x) {
		return proceed
	}
	return r.transfer(x)
}

// skip marks e Skipped; a skipped directory takes its subtree with it.
func (r *transferRun) skip(e *job.Entry, message string) {
	if e.IsDir() {
		r.skips.Push(job.SkipBarrier{Prefix: e.Path, Skipped: true})
	}
	r.settle(e, job.Skipped, message)
}

// resolveConflict applies the job's conflict policy when the target
// exists. It returns true when the entry was settled.
func (r *transferRun) resolveConflict(x *transferEntry) bool {
	e := x.e
	info, err := os.Lstat(x.dst)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		r.fail(e, "lstat", err)
		return true
	}
	if e.IsDir() && info.IsDir() {
		x.merge = true
		e.TargetIsDir = true
		r.persist("update entry", func(s *jobstore.Store) error { return s.UpdateEntry(*e) })
		return false
	}

	policy := r.t.Job.OnConflict
	move := r.t.Job.Kind == job.Move
	if move || policy != job.RenameCopy {
		same, err := r.sameFile(x)
		if err != nil {
			r.fail(e, "samefile", err)
			return true
		}
		if same && (move || !policy.Renames()) {
			r.settle(e, job.Skipped, "Same file")
			return true
		}
		x.sameFile = same
	}

	switch policy {
	case job.Skip:
		r.skip(e, "Target exists")
		return true

	case job.Overwrite:
		if err := os.Remove(x.dst); err != nil {
			r.fail(e, "remove", err)
			return true
		}
		x.warning = "Overwrite"

	case job.RenameExisting:
		suffix := freeSuffix(x.dst, saveSuffix)
		aside := x.dst + suffix
		if x.sameFile {
			// Recorded before the rename so a resumed run reads from the
			// original rather than from its own partial target.
			e.Source = x.target + suffix
			r.persist("update entry", func(s *jobstore.Store) error { return s.UpdateEntry(*e) })
		}
		if err := os.Rename(x.dst, aside); err != nil {
			r.fail(e, "rename", err)
			return true
		}
		if x.sameFile {
			x.src = aside
		}
		if e.IsDir() {
			r.renames.Push(job.RenameBarrier{Existing: x.target, Replacement: x.target})
		}
		x.warning = "Existing renamed to " + filepath.Base(aside)

	case job.RenameCopy:
		suffix := freeSuffix(x.dst, newSuffix)
		renamed := x.target + suffix
		if e.IsDir() {
			r.renames.Push(job.RenameBarrier{Existing: x.target, Replacement: renamed})
		}
		x.target = renamed
		x.dst += suffix
		e.Target = renamed
		r.persist("update entry", func(s *jobstore.Store) error { return s.UpdateEntry(*e) })
		x.warning = "Renamed to " + filepath.Base(renamed)
	}
	return false
}

// recoverAside finishes the rename of a file that is copied onto itself
// when the run stopped between recording the new source and renaming.
func recoverAside(src, dst string) error {
	if platform.Lexists(src) || !platform.Lexists(dst) {
		return nil
	}
	return os.Rename(dst, src)
}

func (r *transferRun) sameFile(x *transferEntry) (bool, error) {
	if x.e.Type == job.Symlink {
		return platform.SameEntry(x.src, x.dst)
	}
	return platform.SameFile(x.src, x.dst)
}

func (r *transferRun) transfer(x *transferEntry) outcome {
	e := x.e
	if r.t.Job.Kind == job.Move && !x.merge {
		err := os.Rename(x.src, x.dst)
		if err == nil || x.resumed && movedBefore(x) {
			r.moved(x)
			return proceed
		}
		slog.Debug("rename failed, copying instead", "src", x.src, "dst", x.dst, "error", err)
	}

	switch e.Type {
	case job.Dir:
		r.makeDir(x)
		return proceed
	case job.Symlink:
		if err := copySymlink(x); err != nil {
			r.fail(e, "symlink", err)
			return proceed
		}
	case job.File:
		if out := r.copyFile(x); out != proceed {
			if out == settled {
				return proceed
			}
			return out
		}
	default:
		r.fail(e, "copy", errors.New("unsupported file type"))
		return proceed
	}
	r.complete(x)
	return proceed
}

// moved settles an entry that was moved by a single rename. A renamed
// directory took its whole subtree along.
func (r *transferRun) moved(x *transferEntry) {
	e := x.e
	switch e.Type {
	case job.Dir:
		r.skips.Push(job.SkipBarrier{Prefix: e.Path})
	case job.File:
		r.stats.AddBytesDone(e.Size)
	}
	r.syncDirs(x)
	r.settle(e, job.Done, x.warning)
}

// movedBefore reports whether a resumed move already finished before the
// run stopped: the source is gone and the target is in place.
func movedBefore(x *transferEntry) bool {
	return !platform.Lexists(x.src) && platform.Lexists(x.dst)
}

// makeDir creates the target directory and defers its metadata (and, for
// moves, the source removal) to finalizeDirs.
func (r *transferRun) makeDir(x *transferEntry) {
	e := x.e
	newDir := false
	if !x.merge {
		// Owner-only until finalized, so a read-only source directory can
		// still be filled.
		err := os.Mkdir(x.dst, 0o700)
		switch {
		case err == nil:
			newDir = true
		case x.resumed && errors.Is(err, os.ErrExist) && isDir(x.dst):
			newDir = !e.TargetIsDir
		default:
			r.fail(e, "mkdir", err)
			r.skips.Push(job.SkipBarrier{Prefix: e.Path, Skipped: true})
			return
		}
	}

	d := job.DirCompletion{
		Entry:   *e,
		Source:  e.Path,
		Target:  x.target,
		NewDir:  newDir,
		Status:  job.InProgress,
		Message: x.warning,
	}
	r.persist("push dir completion", func(s *jobstore.Store) error { return s.PushDirCompletion(r.jobID, &d) })
	r.dirs = append(r.dirs, d)
	r.syncDirs(x)
}

func copySymlink(x *transferEntry) error {
	link, err := os.Readlink(x.src)
	if err != nil {
		return err
	}
	if x.resumed {
		if err := os.Remove(x.dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.Symlink(link, x.dst)
}

// copyFile copies a regular file chunk by chunk, checking control before
// every chunk. Skip and Abort remove the partial target; an interrupt
// leaves it for the resumed run.
func (r *transferRun) copyFile(x *transferEntry) outcome {
	e := x.e
	src, err := os.Open(x.src)
	if err != nil {
		r.fail(e, "open", err)
		return settled
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		r.fail(e, "stat", err)
		return settled
	}
	size := info.Size()

	dst, offset, err := r.openTarget(x, src, size)
	if err != nil {
		r.fail(e, "create", err)
		return settled
	}
	defer dst.Close()

	if offset > 0 {
		x.warning = "Resumed"
	}
	r.stats.AddBytesDone(offset)
	discard := func() {
		dst.Close()
		if err := os.Remove(x.dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove partial target", "path", x.dst, "error", err)
		}
		r.stats.AddBytesDone(-offset)
	}

	synced := false
	for offset < size {
		kind, err := r.ctl.next()
		if err != nil {
			return interrupt
		}
		switch kind {
		case event.Skip:
			discard()
			r.settle(e, job.Skipped, "")
			return settled
		case event.Abort:
			discard()
			return abort
		}

		n, err := r.copier.CopyRange(src, dst, offset, min(r.blockSize, size-offset))
		offset += n
		r.stats.AddBytesDone(n)
		if err != nil {
			discard()
			r.fail(e, "copy", err)
			return settled
		}
		if n == 0 {
			// Source shrank while copying.
			break
		}
		if err := waitBytes(r.ctl.ctx, r.t.Limiter, n); err != nil {
			return interrupt
		}
		if r.store != nil {
			if err := dst.Sync(); err != nil {
				discard()
				r.fail(e, "fsync", err)
				return settled
			}
			synced = true
		}
		r.publish(Progress{Source: e.Path, Target: x.target, FileDone: offset, FileSize: size})
	}
	if r.store != nil && !synced {
		if err := dst.Sync(); err != nil {
			r.fail(e, "fsync", err)
			return settled
		}
	}

	if r.t.Verify {
		if err := verifyCopy(x.src, x.dst); err != nil {
			r.fail(e, "verify", err)
			return settled
		}
	}
	return proceed
}

// openTarget opens the partial target of a resumed entry at its resume
// offset, or creates a fresh one.
func (r *transferRun) openTarget(x *transferEntry, src *os.File, size int64) (*os.File, int64, error) {
	if x.resumed {
		f, err := os.OpenFile(x.dst, os.O_RDWR, 0)
		switch {
		case err == nil:
			off, err := r.resumeOffset(src, f, size)
			if err != nil {
				f.Close()
				return nil, 0, err
			}
			platform.Preallocate(f, size)
			return f, off, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, 0, err
		}
	}

	f, err := os.OpenFile(x.dst, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, 0, err
	}
	platform.Preallocate(f, size)
	return f, 0, nil
}

// resumeOffset returns the largest block-aligned offset covered by the
// partial target, after re-verifying the block just before it. A mismatch
// restarts the copy from zero. The target is truncated to the offset.
func (r *transferRun) resumeOffset(src, dst *os.File, size int64) (int64, error) {
	info, err := dst.Stat()
	if err != nil {
		return 0, err
	}
	b := r.blockSize
	off := min(info.Size(), size) / b * b
	if off >= b {
		same, err := sameRange(src, dst, off-b, b)
		if err != nil || !same {
			slog.Debug("resume block differs, restarting", "path", dst.Name(), "offset", off, "error", err)
			off = 0
		}
	}
	if err := dst.Truncate(off); err != nil {
		return 0, err
	}
	return off, nil
}

func verifyCopy(src, dst string) error {
	a, err := HashFile(src)
	if err != nil {
		return err
	}
	b, err := HashFile(dst)
	if err != nil {
		return err
	}
	if a != b {
		return errChecksum
	}
	return nil
}

// complete applies metadata, removes a moved source and settles the entry.
func (r *transferRun) complete(x *transferEntry) {
	e := x.e
	if err := platform.Lchown(x.dst, e.UID, e.GID); err != nil {
		r.fail(e, "chown", err)
		return
	}
	if err := platform.CopyStat(x.src, x.dst); err != nil {
		r.fail(e, "chmod", err)
		return
	}
	if r.t.Job.Kind == job.Move {
		if err := os.Remove(x.src); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.fail(e, "remove source", err)
			return
		}
	}
	r.syncDirs(x)
	r.settle(e, job.Done, x.warning)
}

// syncDirs makes the entry's rename, create or unlink durable. Only done
// when a store records the progress it protects.
func (r *transferRun) syncDirs(x *transferEntry) {
	if r.store == nil {
		return
	}
	dirs := []string{filepath.Dir(x.dst)}
	if r.t.Job.Kind == job.Move {
		dirs = append(dirs, filepath.Dir(x.src))
	}
	for _, d := range dirs {
		if err := platform.FsyncDir(d); err != nil {
			slog.Warn("fsync directory", "path", d, "error", err)
		}
	}
}

// finalizeDirs walks the pending directory completions deepest first.
func (r *transferRun) finalizeDirs() outcome {
	slices.SortStableFunc(r.dirs, func(a, b job.DirCompletion) int {
		return job.ComparePaths(b.Entry.Path, a.Entry.Path)
	})
	index := make(map[int64]int, len(r.entries))
	for i, e := range r.entries {
		index[e.ID] = i
	}

	for i := range r.dirs {
		d := &r.dirs[i]
		if d.Status.Terminal() {
			continue
		}
		pos, ok := index[d.Entry.ID]
		if !ok {
			continue
		}
		e := &r.entries[pos]

		kind, err := r.ctl.next()
		if err != nil {
			return interrupt
		}
		switch kind {
		case event.Abort:
			return abort
		case event.Skip:
			r.settleDir(d, e, job.Skipped, "")
			continue
		}
		r.publish(Progress{Source: e.Path, Target: d.Target})

		x := &transferEntry{
			e:      e,
			src:    archive.ActualParent(r.mapper, d.Source),
			dst:    archive.ActualParent(r.mapper, d.Target),
			target: d.Target,
		}
		if d.NewDir {
			if err := platform.Lchown(x.dst, e.UID, e.GID); err != nil {
				r.settleDir(d, e, job.Error, "(chown) "+err.Error())
				continue
			}
			if err := platform.CopyStat(x.src, x.dst); err != nil {
				r.settleDir(d, e, job.Error, "(chmod) "+err.Error())
				continue
			}
		}
		message := d.Message
		if r.t.Job.Kind == job.Move {
			err := unix.Rmdir(x.src)
			switch {
			case err == nil, errors.Is(err, unix.ENOENT):
			case errors.Is(err, unix.ENOTEMPTY), errors.Is(err, unix.EEXIST):
				// Something inside was skipped or failed and stayed behind.
				message = "Source not removed: not empty"
			default:
				r.settleDir(d, e, job.Error, "(rmdir) "+err.Error())
				continue
			}
		}
		r.syncDirs(x)
		r.settleDir(d, e, job.Done, message)
	}
	return proceed
}

func (r *transferRun) settleDir(d *job.DirCompletion, e *job.Entry, status job.Status, message string) {
	d.Status = status
	d.Message = message
	r.persist("set dir status", func(s *jobstore.Store) error {
		return s.SetDirCompletionStatus(d.ID, status, message)
	})
	r.settle(e, status, message)
}

// freeSuffix returns the first "<tag><N>" that, appended to path, names
// nothing.
func freeSuffix(path, tag string) string {
	for n := 0; ; n++ {
		s := tag + strconv.Itoa(n)
		if !platform.Lexists(path + s) {
			return s
		}
	}
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
