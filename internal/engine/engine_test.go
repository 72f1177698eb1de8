package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
	"github.com/bamsammich/ferry/internal/stats"
)

// gatedTransfer returns a copy of a, b and c whose run blocks on its
// first destination lookup until release is called.
func gatedTransfer(t *testing.T) (tr *Transfer, release func(), dst string) {
	t.Helper()
	src, dst := threeFiles(t)
	hook, release := gate(dst)
	t.Cleanup(release)
	return &Transfer{
		Mapper:  hookMapper{on: hook},
		Job:     job.Job{Cwd: src, Dest: dst, Kind: job.Copy},
		Entries: scanPaths(t, src+"/a", src+"/b", src+"/c"),
	}, release, dst
}

func TestWorker_RunsToCompletion(t *testing.T) {
	tr, release, dst := gatedTransfer(t)
	w := Start(context.Background(), tr)
	release()

	res := w.Wait()
	assert.Equal(t, job.JobDone, res.Status)
	assert.FileExists(t, filepath.Join(dst, "c"))

	select {
	case <-w.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
	// Signals after completion do not block.
	w.Skip()
	w.Abort()
	w.Detach()
}

func TestWorker_Abort(t *testing.T) {
	tr, release, dst := gatedTransfer(t)
	w := Start(context.Background(), tr)
	w.Abort()
	release()

	res := w.Wait()
	assert.Equal(t, job.JobAborted, res.Status)
	for _, e := range res.Entries {
		assert.Equal(t, job.ToDo, e.Status, e.Path)
	}
	assert.NoFileExists(t, filepath.Join(dst, "a"))
}

func TestWorker_SuspendResume(t *testing.T) {
	tr, release, _ := gatedTransfer(t)
	w := Start(context.Background(), tr)
	w.Suspend()
	w.Suspend()
	assert.True(t, w.Suspended())
	release()

	select {
	case <-w.Done():
		t.Fatal("suspended worker finished")
	case <-time.After(50 * time.Millisecond):
	}

	w.Resume()
	assert.False(t, w.Suspended())
	res := w.Wait()
	assert.Equal(t, job.JobDone, res.Status)
	// The suspended interval is not counted.
	assert.Less(t, res.Stats.Elapsed, 50*time.Millisecond)
}

func TestWorker_AbortWhileSuspended(t *testing.T) {
	tr, release, _ := gatedTransfer(t)
	w := Start(context.Background(), tr)
	w.Suspend()
	release()
	w.Abort()

	res := w.Wait()
	assert.Equal(t, job.JobAborted, res.Status)
	assert.False(t, w.Suspended())
}

func TestWorker_ControlNeverBlocks(t *testing.T) {
	tr, release, _ := gatedTransfer(t)
	w := Start(context.Background(), tr)
	w.Suspend()
	release()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for range 20 {
			w.Skip()
			w.Detach()
		}
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("control calls blocked while the worker is suspended")
	}

	w.Resume()
	res := w.Wait()
	assert.Equal(t, job.JobDone, res.Status)
	// The repeated skips collapsed into one.
	assert.Equal(t, int64(1), res.Stats.FilesSkipped)
	assert.Equal(t, int64(2), res.Stats.FilesDone)
}

func TestWorker_Interrupt(t *testing.T) {
	tr, release, _ := gatedTransfer(t)
	w := Start(context.Background(), tr)
	w.Interrupt()
	release()

	res := w.Wait()
	assert.True(t, res.Interrupted)
	assert.Equal(t, job.JobInProgress, res.Status)
}

func TestControl_SuspendShiftsElapsed(t *testing.T) {
	c := stats.NewCollector()
	ch := make(chan event.Signal, 2)
	sig, resume := event.NewSuspend()
	ch <- sig
	ch <- event.Signal{Kind: event.Skip}
	ctl := control{ctx: context.Background(), signals: ch, stats: c}

	start := time.Now()
	time.AfterFunc(60*time.Millisecond, resume)
	kind, err := ctl.next()
	require.NoError(t, err)
	assert.Equal(t, event.Skip, kind)

	wall := time.Since(start)
	assert.GreaterOrEqual(t, wall, 60*time.Millisecond)
	assert.Less(t, c.Elapsed(), wall-50*time.Millisecond)
}

func TestControl_CanceledWhileSuspended(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan event.Signal, 1)
	sig, _ := event.NewSuspend()
	ch <- sig
	ctl := control{ctx: ctx, signals: ch}

	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := ctl.next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitiate(t *testing.T) {
	src, dst := threeFiles(t)
	entries := scanPaths(t, src+"/a", src+"/b")

	t.Run("without store", func(t *testing.T) {
		op, err := Initiate(nil, JobSpec{Cwd: src, Dest: dst, Kind: job.Copy}, entries)
		require.NoError(t, err)
		tr, ok := op.(*Transfer)
		require.True(t, ok)
		assert.Zero(t, tr.Job.ID)
		assert.Nil(t, tr.Store)
	})

	t.Run("delete", func(t *testing.T) {
		store := openTestStore(t)
		op, err := Initiate(store, JobSpec{Cwd: src, Kind: job.Delete}, entries)
		require.NoError(t, err)
		rm, ok := op.(*Removal)
		require.True(t, ok)
		assert.NotZero(t, rm.Job.ID)
		for _, e := range rm.Entries {
			assert.NotZero(t, e.ID)
		}

		pending, err := store.Pending()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, job.Delete, pending[0].Kind)
	})

	t.Run("archives map paths", func(t *testing.T) {
		op, err := Initiate(nil, JobSpec{
			Cwd:      src,
			Dest:     "/archives/x.zip",
			Kind:     job.Copy,
			Archives: []job.ArchiveMount{{Archive: "/archives/x.zip", Mount: dst}},
		}, entries)
		require.NoError(t, err)
		tr := op.(*Transfer)
		assert.Equal(t, filepath.Join(dst, "a"), tr.Mapper.Actual("/archives/x.zip/a"))
	})
}

func TestResumeAndAcknowledge(t *testing.T) {
	src, dst := threeFiles(t)
	store := openTestStore(t)

	op, err := Initiate(store, JobSpec{Cwd: src, Dest: dst, Kind: job.Copy}, scanPaths(t, src+"/a"))
	require.NoError(t, err)
	id := op.(*Transfer).Job.ID

	// A second handle is another session; the job is still claimed.
	other, err := jobstore.Open(store.Path())
	require.NoError(t, err)
	defer other.Close()
	_, err = Resume(other, id)
	require.ErrorIs(t, err, jobstore.ErrClaimed)

	res := Run(context.Background(), op)
	require.Equal(t, job.JobDone, res.Status)

	// Finishing released the claim.
	op, err = Resume(other, id)
	require.NoError(t, err)
	assert.Equal(t, id, op.(*Transfer).Job.ID)

	require.NoError(t, Acknowledge(other, id))
	_, err = store.Job(id)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	assert.NoError(t, Acknowledge(nil, id))

	_, err = Resume(store, id)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}
