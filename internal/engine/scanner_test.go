package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
)

func scannedPaths(entries []job.Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

func TestScanTreeOrder(t *testing.T) {
	root := filepath.Join(t.TempDir(), "r")
	createTestTree(t, root)

	progress := event.NewLatest[ScanProgress]()
	res := Scan(context.Background(), ScanConfig{
		Paths:        []string{root},
		ReadMetadata: true,
		Progress:     progress,
	})
	require.False(t, res.Aborted)
	require.Empty(t, res.Errors)

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "big.bin"),
		filepath.Join(root, "link.txt"),
		filepath.Join(root, "root.txt"),
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "deep"),
		filepath.Join(root, "sub", "deep", "leaf.txt"),
		filepath.Join(root, "sub", "mid.txt"),
	}, scannedPaths(res.Entries))

	big := entryAt(t, res.Entries, filepath.Join(root, "big.bin"))
	assert.Equal(t, job.File, big.Type)
	assert.Equal(t, int64(320000), big.Size)
	assert.False(t, big.ModTime.IsZero())

	assert.Equal(t, job.Symlink, entryAt(t, res.Entries, filepath.Join(root, "link.txt")).Type)
	assert.Equal(t, job.Dir, entryAt(t, res.Entries, filepath.Join(root, "sub")).Type)
	assert.Equal(t, uint32(0o640), entryAt(t, res.Entries, filepath.Join(root, "root.txt")).Mode&0o777)

	p, ok := progress.Load()
	require.True(t, ok)
	assert.Equal(t, int64(8), p.Files)
	assert.Equal(t, int64(320000+17+19+17), p.Bytes)
	assert.True(t, p.Sized)
	assert.Empty(t, p.Current)
}

func TestScanWithoutMetadata(t *testing.T) {
	root := filepath.Join(t.TempDir(), "r")
	createTestTree(t, root)

	res := Scan(context.Background(), ScanConfig{Paths: []string{root}})
	require.Len(t, res.Entries, 8)
	for _, e := range res.Entries {
		assert.Zero(t, e.Size, e.Path)
		assert.Zero(t, e.Mode, e.Path)
		assert.True(t, e.ModTime.IsZero(), e.Path)
	}
	assert.Equal(t, job.File, entryAt(t, res.Entries, filepath.Join(root, "big.bin")).Type)
}

func TestScanMissingPath(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	writeFile(t, filepath.Join(dir, "present"), "x")

	res := Scan(context.Background(), ScanConfig{
		Paths:        []string{missing, filepath.Join(dir, "present")},
		ReadMetadata: true,
	})
	require.Len(t, res.Entries, 2)
	assert.Equal(t, job.Error, res.Entries[0].Status)
	assert.Contains(t, res.Entries[0].Message, "(dirscan)")
	assert.Equal(t, job.ToDo, res.Entries[1].Status)
	assert.False(t, res.Aborted)
}

func TestScanUnreadableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any directory")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	writeFile(t, filepath.Join(locked, "hidden"), "x")
	writeFile(t, filepath.Join(root, "z.txt"), "z")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	res := Scan(context.Background(), ScanConfig{Paths: []string{root}, ReadMetadata: true})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, locked, res.Errors[0].Path)

	e := entryAt(t, res.Entries, locked)
	assert.Equal(t, job.Error, e.Status)
	assert.Contains(t, e.Message, "(dirscan)")
	// The scan carries on past the failed directory.
	entryAt(t, res.Entries, filepath.Join(root, "z.txt"))
	assert.Len(t, res.Entries, 3)
}

func TestScanSkipDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "r")
	createTestTree(t, root)
	sub := filepath.Join(root, "sub")

	ch := make(chan event.Signal, 1)
	progress := event.NewLatest[ScanProgress]()
	res := Scan(context.Background(), ScanConfig{
		Paths:        []string{root},
		ReadMetadata: true,
		Mapper:       hookMapper{on: signalOnNth(ch, sub, 1, event.Signal{Kind: event.Skip})},
		Control:      ch,
		Progress:     progress,
	})
	require.False(t, res.Aborted)
	assert.Equal(t, []string{sub}, res.Skipped)
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "big.bin"),
		filepath.Join(root, "link.txt"),
		filepath.Join(root, "root.txt"),
	}, scannedPaths(res.Entries))

	// Counters drop what the skipped subtree had added.
	p, ok := progress.Load()
	require.True(t, ok)
	assert.Equal(t, int64(4), p.Files)
	assert.Equal(t, int64(320000+17), p.Bytes)
}

func TestScanSkipTopLevel(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	ch := make(chan event.Signal, 1)
	ch <- event.Signal{Kind: event.Skip}
	res := Scan(context.Background(), ScanConfig{Paths: []string{a, b}, Control: ch})

	assert.Equal(t, []string{a}, res.Skipped)
	assert.Equal(t, []string{b}, scannedPaths(res.Entries))
}

func TestScanAbortKeepsCompletedTopLevel(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	for _, d := range []string{first, second} {
		require.NoError(t, os.Mkdir(d, 0o755))
		writeFile(t, filepath.Join(d, "f"), "x")
	}

	ch := make(chan event.Signal, 1)
	res := Scan(context.Background(), ScanConfig{
		Paths:   []string{first, second, filepath.Join(dir, "never")},
		Mapper:  hookMapper{on: signalOnNth(ch, second, 1, event.Signal{Kind: event.Abort})},
		Control: ch,
	})
	assert.True(t, res.Aborted)
	assert.Equal(t, []string{first, filepath.Join(first, "f")}, scannedPaths(res.Entries))
}

func TestScanCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Scan(ctx, ScanConfig{Paths: []string{filepath.Join(dir, "a")}})
	assert.True(t, res.Aborted)
	assert.Empty(t, res.Entries)
}
