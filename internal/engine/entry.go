package engine

import (
	"os"
	"syscall"

	"github.com/bamsammich/ferry/internal/job"
)

func entryType(mode os.FileMode) job.EntryType {
	switch {
	case mode.IsRegular():
		return job.File
	case mode.IsDir():
		return job.Dir
	case mode&os.ModeSymlink != 0:
		return job.Symlink
	default:
		return job.Other
	}
}

// newEntry builds an entry from lstat output. Without withMetadata only the
// type is recorded.
func newEntry(path string, info os.FileInfo, withMetadata bool) job.Entry {
	e := job.Entry{Path: path, Type: entryType(info.Mode())}
	if !withMetadata {
		return e
	}
	if e.Type == job.File {
		e.Size = info.Size()
	}
	e.ModTime = info.ModTime()
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		e.Mode = uint32(st.Mode) //nolint:gosec,unconvert // uint16 on darwin
		e.UID = st.Uid
		e.GID = st.Gid
	} else {
		e.Mode = uint32(info.Mode().Perm())
	}
	return e
}
