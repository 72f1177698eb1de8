package job

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ComparePaths orders paths component by component: the separator sorts
// below every other byte, so a directory is immediately followed by all of
// its descendants ("a" < "a/x" < "a-b").
func ComparePaths(a, b string) int {
	n := min(len(a), len(b))
	for i := range n {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if ca == os.PathSeparator {
			return -1
		}
		if cb == os.PathSeparator {
			return 1
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// SortAscending sorts entries parents first.
func SortAscending(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return ComparePaths(a.Path, b.Path)
	})
}

// SortDescending sorts entries children first.
func SortDescending(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return ComparePaths(b.Path, a.Path)
	})
}

// IsUnder reports whether path is a strict descendant of dir.
func IsUnder(path, dir string) bool {
	if dir == "" || len(path) <= len(dir) || !strings.HasPrefix(path, dir) {
		return false
	}
	return path[len(dir)] == os.PathSeparator || strings.HasSuffix(dir, string(os.PathSeparator))
}

// IsWithin reports whether path is dir itself or one of its descendants.
func IsWithin(path, dir string) bool {
	return dir != "" && (path == dir || IsUnder(path, dir))
}

// TargetPath maps a source path to its destination. With replaceFirst the
// first component of the path relative to cwd is replaced by dest itself.
func TargetPath(path, cwd, dest string, replaceFirst bool) (string, error) {
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return "", err
	}
	if replaceFirst {
		if i := strings.IndexByte(rel, os.PathSeparator); i >= 0 {
			rel = rel[i+1:]
		} else {
			rel = ""
		}
	}
	if rel == "" {
		return filepath.Clean(dest), nil
	}
	return filepath.Join(dest, rel), nil
}

// TopLevel returns the entries that have no ancestor in the set.
func TopLevel(entries []Entry) []Entry {
	sorted := slices.Clone(entries)
	SortAscending(sorted)
	var out []Entry
	for _, e := range sorted {
		if len(out) > 0 && IsUnder(e.Path, out[len(out)-1].Path) {
			continue
		}
		out = append(out, e)
	}
	return out
}
