package platform

import (
	"errors"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	CopyFileRange CopyMethod = iota // Linux copy_file_range(2)
	Sendfile                        // Linux sendfile(2)
	ReadWrite                       // pread(2)/pwrite(2) through a buffer
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// DefaultBlockSize is the copy chunk size before rounding to the
// destination filesystem's block size.
const DefaultBlockSize = 128 * 1024

// Copier copies byte ranges between open files with the fastest method
// that has worked so far. The first fallback-class failure of a method
// downgrades the copier for the rest of its life, so a job tries each
// method at most once.
//
// A Copier is not safe for concurrent use.
type Copier struct {
	buf     []byte
	methods [ReadWrite + 1]copyFunc
	method  CopyMethod
}

type copyFunc func(src, dst *os.File, off, length int64) (int64, error)

// NewCopier returns a copier whose read/write fallback uses a buffer of
// bufSize bytes.
func NewCopier(bufSize int) *Copier {
	if bufSize <= 0 {
		bufSize = DefaultBlockSize
	}
	c := &Copier{method: firstMethod, buf: make([]byte, bufSize)}
	c.methods = [...]copyFunc{
		CopyFileRange: copyFileRange,
		Sendfile:      copySendfile,
		ReadWrite: func(src, dst *os.File, off, length int64) (int64, error) {
			return copyReadWrite(src, dst, off, length, c.buf)
		},
	}
	return c
}

// Method returns the method the next copy will try first.
func (c *Copier) Method() CopyMethod { return c.method }

// CopyRange copies up to length bytes starting at off in src to the same
// offset in dst and returns the number of bytes copied. A short count with a
// nil error means src ended early.
func (c *Copier) CopyRange(src, dst *os.File, off, length int64) (int64, error) {
	var total int64
	for {
		n, err := c.methods[c.method](src, dst, off+total, length-total)
		total += n
		if err == nil || c.method == ReadWrite || !isFallbackErr(err) {
			return total, err
		}
		next := c.method + 1
		slog.Debug("copy method unavailable, downgrading",
			"method", c.method.String(), "next", next.String(), "error", err)
		c.method = next
	}
}

// isFallbackErr returns true if err should trigger a fallback to the next copy strategy.
func isFallbackErr(err error) bool {
	for _, e := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
