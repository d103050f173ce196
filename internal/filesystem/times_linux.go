//go:build linux

package filesystem

import (
	"io/fs"
	"syscall"
	"time"
)

// platformTimes reads access and change times from the underlying stat
// structure. Linux exposes no birth time through syscall.Stat_t, so the
// inode change time stands in for the creation time; it is the closest
// available approximation and at worst equals the modification time.
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
	t.Created = time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	t.Accessed = time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
	return t
}
