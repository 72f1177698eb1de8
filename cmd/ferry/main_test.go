package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/engine"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
)

// isolate keeps tests away from the user's config file and job database.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bravo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "c.txt"), []byte("charlie"), 0o600))
}

func TestVersion(t *testing.T) {
	isolate(t)
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "ferry dev\n", stdout)
}

func TestCopyWithoutDatabase(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src)

	code, _, stderr := runCLI(t, "-q", "--no-db", "cp", src, dst)
	require.Equal(t, exitOK, code, stderr)

	got, err := os.ReadFile(filepath.Join(dst, "sub", "deep", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "charlie", string(got))

	info, err := os.Stat(filepath.Join(dst, "sub", "deep", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCopyAcknowledgesJob(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	db := filepath.Join(dir, "jobs.db")
	writeTree(t, src)

	code, _, stderr := runCLI(t, "--no-progress", "--db", db, "cp", "--verify", src, dst)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "done ✓")
	assert.FileExists(t, filepath.Join(dst, "a.txt"))

	code, stdout, _ := runCLI(t, "--db", db, "jobs", "--all")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "no pending jobs\n", stdout)
}

func TestCopyConflictPolicy(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.Mkdir(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f.txt"), []byte("old"), 0o644))

	code, _, stderr := runCLI(t, "--no-progress", "--no-db", "cp", "--on-conflict", "skip", src, dst)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "Target exists")
	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	code, _, _ = runCLI(t, "-q", "--no-db", "cp", "--on-conflict", "sometimes", src, dst)
	assert.Equal(t, exitFailure, code)
}

func TestConflictPolicyFromConfig(t *testing.T) {
	isolate(t)
	cfgDir := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(cfgDir, "ferry"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "ferry", "config.toml"),
		[]byte("[defaults]\non_conflict = \"rename-copy\"\nno_db = true\n"), 0o644))

	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.Mkdir(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f.txt"), []byte("old"), 0o644))

	code, _, stderr := runCLI(t, "--no-progress", "cp", src, dst)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "WARNING")

	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	got, err = os.ReadFile(filepath.Join(dst, "f.txt.ferrynew0"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestMove(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src)

	code, _, stderr := runCLI(t, "-q", "--db", filepath.Join(dir, "jobs.db"), "mv", src, dst)
	require.Equal(t, exitOK, code, stderr)
	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(dst, "sub", "b.txt"))
}

func TestRemove(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "doomed")
	writeTree(t, target)
	keep := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("k"), 0o644))

	code, _, stderr := runCLI(t, "-q", "rm", target)
	require.Equal(t, exitOK, code, stderr)
	assert.NoDirExists(t, target)
	assert.FileExists(t, keep)
}

func TestMissingSourceIsPartialFailure(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	code, _, stderr := runCLI(t, "-q", "--no-db", "cp",
		filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	assert.Equal(t, exitPartial, code)
	assert.Contains(t, stderr, "ERROR")
	assert.Contains(t, stderr, "(dirscan)")
}

func TestResumePendingJob(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	db := filepath.Join(dir, "jobs.db")
	writeTree(t, src)

	// Leave a job behind the way a crashed run would.
	res := engine.Scan(t.Context(), engine.ScanConfig{Paths: []string{src}, ReadMetadata: true})
	store, err := jobstore.Open(db)
	require.NoError(t, err)
	op, err := engine.Initiate(store, engine.JobSpec{Cwd: dir, Dest: dst, Kind: job.Copy}, res.Entries)
	require.NoError(t, err)
	id := op.(*engine.Transfer).Job.ID
	require.NoError(t, store.Release(id))
	require.NoError(t, store.Close())

	code, stdout, _ := runCLI(t, "--db", db, "jobs")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "copy")
	assert.Contains(t, stdout, "0/6")
	assert.Contains(t, stdout, dst)

	code, _, stderr := runCLI(t, "-q", "--db", db, "resume", strconv.FormatInt(id, 10))
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(dst, "sub", "deep", "c.txt"))

	code, stdout, _ = runCLI(t, "--db", db, "jobs")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "no pending jobs\n", stdout)
}

func TestDiscard(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "jobs.db")
	f := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	res := engine.Scan(t.Context(), engine.ScanConfig{Paths: []string{f}})
	store, err := jobstore.Open(db)
	require.NoError(t, err)
	op, err := engine.Initiate(store, engine.JobSpec{Cwd: dir, Kind: job.Delete}, res.Entries)
	require.NoError(t, err)
	id := op.(*engine.Removal).Job.ID
	require.NoError(t, store.Release(id))
	require.NoError(t, store.Close())

	code, stdout, stderr := runCLI(t, "--db", db, "discard", strconv.FormatInt(id, 10))
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "discarded job "+strconv.FormatInt(id, 10)+"\n", stdout)
	assert.FileExists(t, f)

	code, _, stderr = runCLI(t, "--db", db, "discard", strconv.FormatInt(id, 10))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "no job")
}

func TestJobCommandsNeedDatabase(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{
		{"--no-db", "jobs"},
		{"--no-db", "resume", "1"},
		{"--no-db", "discard", "1"},
	} {
		code, _, stderr := runCLI(t, args...)
		assert.Equal(t, exitFailure, code, args)
		assert.Contains(t, stderr, "drop --no-db", args)
	}
}

func TestInvalidJobID(t *testing.T) {
	isolate(t)
	code, _, stderr := runCLI(t, "resume", "zero")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, `invalid job id "zero"`)
}

func TestLogFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	logFile := filepath.Join(dir, "ferry.log")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	code, _, stderr := runCLI(t, "-q", "--no-db", "--log", logFile, "cp", src, filepath.Join(dir, "g.txt"))
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"starting job"`)
}

func TestGenDocs(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	code, _, stderr := runCLI(t, "gen-docs", "--dir", dir, "--format", "markdown")
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "ferry_cp.md"))
	assert.FileExists(t, filepath.Join(dir, "ferry_resume.md"))
}

type fakeController struct {
	suspended bool
	calls     []string
}

func (f *fakeController) Suspend()        { f.suspended = true; f.calls = append(f.calls, "suspend") }
func (f *fakeController) Resume()         { f.suspended = false; f.calls = append(f.calls, "resume") }
func (f *fakeController) Suspended() bool { return f.suspended }
func (f *fakeController) Skip()           { f.calls = append(f.calls, "skip") }
func (f *fakeController) Abort()          { f.calls = append(f.calls, "abort") }
func (f *fakeController) Interrupt()      { f.calls = append(f.calls, "interrupt") }

func TestHandleSignal(t *testing.T) {
	c := &fakeController{}

	aborting := handleSignal(c, syscall.SIGUSR2, false)
	assert.False(t, aborting)
	handleSignal(c, syscall.SIGUSR2, false)
	handleSignal(c, syscall.SIGUSR1, false)
	handleSignal(c, syscall.SIGTERM, false)
	assert.Equal(t, []string{"suspend", "resume", "skip", "interrupt"}, c.calls)

	c.calls = nil
	aborting = handleSignal(c, syscall.SIGINT, false)
	assert.True(t, aborting)
	handleSignal(c, syscall.SIGINT, aborting)
	assert.Equal(t, []string{"abort", "interrupt"}, c.calls)
}
