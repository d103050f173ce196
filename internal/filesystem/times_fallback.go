//go:build !linux && !darwin

package filesystem

import "io/fs"

// platformTimes falls back to the modification time for every field on
// platforms without typed access to creation/access times.
func platformTimes(info fs.FileInfo) FileTimes {
	return FileTimes{
		Created:  info.ModTime(),
		Modified: info.ModTime(),
		Accessed: info.ModTime(),
	}
}
