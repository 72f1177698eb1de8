package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
	"github.com/bamsammich/ferry/internal/jobstore"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes, 0640)
//	big.bin           (320KB)
//	sub/              (0750)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.Chmod(filepath.Join(root, "sub"), 0o750))

	writeFile(t, filepath.Join(root, "root.txt"), "root file content")
	require.NoError(t, os.Chmod(filepath.Join(root, "root.txt"), 0o640))

	bigData := bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000) // 320KB
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), bigData, 0o644))

	writeFile(t, filepath.Join(root, "sub", "mid.txt"), "middle file content")
	writeFile(t, filepath.Join(root, "sub", "deep", "leaf.txt"), "leaf file content")

	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// verifyTreeCopy checks that dstRoot contains an exact copy of the test tree
// created by createTestTree under srcRoot.
func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	files := []string{
		"root.txt",
		"big.bin",
		filepath.Join("sub", "mid.txt"),
		filepath.Join("sub", "deep", "leaf.txt"),
	}
	for _, rel := range files {
		srcData, err := os.ReadFile(filepath.Join(srcRoot, rel))
		require.NoError(t, err, "read src %s", rel)

		dstData, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "read dst %s", rel)

		require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
	}

	for _, dir := range []string{"sub", filepath.Join("sub", "deep")} {
		info, err := os.Stat(filepath.Join(dstRoot, dir))
		require.NoError(t, err, "stat dir %s", dir)
		require.True(t, info.IsDir(), "%s should be a directory", dir)
	}

	target, err := os.Readlink(filepath.Join(dstRoot, "link.txt"))
	require.NoError(t, err, "readlink link.txt")
	require.Equal(t, "root.txt", target)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// scanPaths returns the inventory for paths with full metadata.
func scanPaths(t *testing.T, paths ...string) []job.Entry {
	t.Helper()
	res := Scan(context.Background(), ScanConfig{Paths: paths, ReadMetadata: true})
	require.Empty(t, res.Errors)
	require.False(t, res.Aborted)
	return res.Entries
}

func entryAt(t *testing.T, entries []job.Entry, path string) job.Entry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	require.Failf(t, "entry not found", "%s", path)
	return job.Entry{}
}

// gate returns a hook that blocks every lookup of path until release
// is called.
func gate(path string) (hook func(string), release func()) {
	ch := make(chan struct{})
	var once sync.Once
	return func(p string) {
			if p == path {
				<-ch
			}
		}, func() {
			once.Do(func() { close(ch) })
		}
}

func boolPtr(v bool) *bool { return &v }

func openTestStore(t *testing.T) *jobstore.Store {
	t.Helper()
	s, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// hookMapper is an identity mapper that reports every Actual lookup. The
// engines map a path right before touching the filesystem, which makes it
// a deterministic point to inject control signals.
type hookMapper struct {
	on func(path string)
}

func (h hookMapper) Actual(path string) string {
	if h.on != nil {
		h.on(filepath.Clean(path))
	}
	return path
}

func (hookMapper) Display(path string) string { return path }

// signalOnNth returns a hook that sends sig on the nth lookup of path.
func signalOnNth(ch chan<- event.Signal, path string, n int, sig event.Signal) func(string) {
	var mu sync.Mutex
	seen := 0
	return func(p string) {
		if p != path {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == n {
			ch <- sig
		}
	}
}
