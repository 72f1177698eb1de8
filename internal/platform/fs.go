package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// BlockSize returns def rounded up to a multiple of the block size reported
// for path (or its nearest existing ancestor). def is returned unchanged
// when no block size can be determined.
func BlockSize(path string, def int64) int64 {
	if def <= 0 {
		def = DefaultBlockSize
	}
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err == nil {
			bs := blksize(info)
			if bs <= 0 {
				return def
			}
			return (def + bs - 1) / bs * bs
		}
		if p == filepath.Dir(p) {
			return def
		}
	}
}

// FsyncDir flushes a directory so renames and unlinks inside it are durable.
func FsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Lchown sets ownership without following symlinks. When the caller may
// not give files away it retries with the group only; lack of permission
// or of filesystem support is not an error.
func Lchown(path string, uid, gid uint32) error {
	err := os.Lchown(path, int(uid), int(gid))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EPERM):
		err = os.Lchown(path, -1, int(gid))
		if err == nil || isUnsupported(err) || errors.Is(err, unix.EPERM) {
			return nil
		}
		return err
	case isUnsupported(err):
		return nil
	}
	return err
}

// CopyStat copies permission bits and access/modification times from src
// to dst without following symlinks. Symlink permissions are left alone.
func CopyStat(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink == 0 {
		mode := info.Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
		if err := os.Chmod(dst, mode); err != nil && !isUnsupported(err) {
			return fmt.Errorf("chmod: %w", err)
		}
	}

	times := []unix.Timespec{
		unix.NsecToTimespec(atime(info).UnixNano()),
		unix.NsecToTimespec(info.ModTime().UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, times, unix.AT_SYMLINK_NOFOLLOW); err != nil && !isUnsupported(err) {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}

// SameFile reports whether a and b resolve to the same inode. A missing b
// is not an error.
func SameFile(a, b string) (bool, error) {
	return sameInode(os.Stat, a, b)
}

// SameEntry is SameFile without following a final symlink on either side.
func SameEntry(a, b string) (bool, error) {
	return sameInode(os.Lstat, a, b)
}

func sameInode(stat func(string) (os.FileInfo, error), a, b string) (bool, error) {
	ia, err := stat(a)
	if err != nil {
		return false, err
	}
	ib, err := stat(b)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

// Lexists reports whether path exists without following a final symlink.
func Lexists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// SyncAll flushes every filesystem. It is the coarse substitute for
// per-entry fsyncs when no job store is attached.
func SyncAll() {
	unix.Sync()
}

func isUnsupported(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}

func blksize(info os.FileInfo) int64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return int64(st.Blksize)
}
