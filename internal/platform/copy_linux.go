//go:build linux

package platform

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const firstMethod = CopyFileRange

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(src, dst *os.File, off, length int64) (int64, error) {
	roff := off
	woff := off
	remaining := length

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(remaining), 0)
		if err != nil {
			return totalWritten, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}
	return totalWritten, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func copySendfile(src, dst *os.File, off, length int64) (int64, error) {
	// sendfile writes at the destination's file position.
	if _, err := dst.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	offset := off
	remaining := length

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &offset, int(remaining))
		if err != nil {
			return totalWritten, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}
	return totalWritten, nil
}
