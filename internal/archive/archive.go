// Package archive maps paths inside packed archives to the temporary
// directories they are mounted on. The engines never mount anything; they
// only translate paths before touching the filesystem and back again
// before showing them.
package archive

import (
	"path/filepath"
	"strings"

	"github.com/bamsammich/ferry/internal/job"
)

// Mapper translates between display paths and actual filesystem paths.
type Mapper interface {
	// Actual maps a display path to the path to hand to syscalls.
	Actual(path string) string
	// Display maps an actual path back to display space.
	Display(path string) string
}

// Identity is the mapper used when no archive is mounted.
type Identity struct{}

func (Identity) Actual(path string) string  { return path }
func (Identity) Display(path string) string { return path }

// Table maps through a fixed list of mounts. Later mounts take precedence,
// so nested archives resolve through the innermost mount.
type Table struct {
	mounts []job.ArchiveMount
}

// NewTable returns a mapper over mounts.
func NewTable(mounts []job.ArchiveMount) *Table {
	return &Table{mounts: append([]job.ArchiveMount(nil), mounts...)}
}

// Mounts returns the mounts the table was built from.
func (t *Table) Mounts() []job.ArchiveMount {
	return append([]job.ArchiveMount(nil), t.mounts...)
}

func (t *Table) Actual(path string) string {
	for i := len(t.mounts) - 1; i >= 0; i-- {
		m := t.mounts[i]
		if rest, ok := cutPrefix(path, m.Archive); ok {
			return filepath.Join(m.Mount, rest)
		}
	}
	return filepath.Clean(path)
}

func (t *Table) Display(path string) string {
	for i := len(t.mounts) - 1; i >= 0; i-- {
		m := t.mounts[i]
		if rest, ok := cutPrefix(path, m.Mount); ok {
			return filepath.Join(m.Archive, rest)
		}
	}
	return filepath.Clean(path)
}

// ActualParent maps only the parent directory of path. Use it when the
// entry itself may be an archive file that must not be followed into.
func ActualParent(m Mapper, path string) string {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if dir == path {
		return path
	}
	return filepath.Join(m.Actual(dir), filepath.Base(path))
}

// DisplayParent is the inverse of ActualParent.
func DisplayParent(m Mapper, path string) string {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if dir == path {
		return path
	}
	return filepath.Join(m.Display(dir), filepath.Base(path))
}

// OrIdentity returns m, or Identity when m is nil.
func OrIdentity(m Mapper) Mapper {
	if m == nil {
		return Identity{}
	}
	return m
}

func cutPrefix(path, prefix string) (string, bool) {
	if path == prefix {
		return "", true
	}
	if job.IsUnder(path, prefix) {
		return strings.TrimPrefix(path[len(prefix):], string(filepath.Separator)), true
	}
	return "", false
}
