//go:build darwin

package filesystem

import (
	"io/fs"
	"syscall"
	"time"
)

// platformTimes reads birth and access times from the underlying stat
// structure. Darwin records a true file birth time.
func platformTimes(info fs.FileInfo) FileTimes {
	t := FileTimes{
		Created:  info.ModTime(),
		Modified: info.ModTime(),
		Accessed: info.ModTime(),
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return t
	}
	t.Created = time.Unix(int64(st.Birthtimespec.Sec), int64(st.Birthtimespec.Nsec))
	t.Accessed = time.Unix(int64(st.Atimespec.Sec), int64(st.Atimespec.Nsec))
	return t
}
