//go:build linux

package platform

import (
	"os"
	"syscall"
	"time"
)

// atime returns the access time recorded in info, falling back to mtime.
func atime(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}
