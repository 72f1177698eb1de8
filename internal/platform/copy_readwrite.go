package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// copyReadWrite copies data using pread/pwrite through buf.
//
//nolint:gosec // G115: fd values are small non-negative integers
func copyReadWrite(src, dst *os.File, off, length int64, buf []byte) (int64, error) {
	offset := off
	remaining := length

	var totalWritten int64
	srcRawFd := int(src.Fd())
	dstRawFd := int(dst.Fd())

	for remaining > 0 {
		toRead := int64(len(buf))
		if toRead > remaining {
			toRead = remaining
		}

		n, err := unix.Pread(srcRawFd, buf[:toRead], offset)
		if err != nil {
			return totalWritten, err
		}
		if n == 0 {
			break
		}

		written := 0
		for written < n {
			w, err := unix.Pwrite(dstRawFd, buf[written:n], offset+int64(written))
			if err != nil {
				return totalWritten + int64(written), err
			}
			written += w
		}

		offset += int64(n)
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return totalWritten, nil
}
