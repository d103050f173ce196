// Package filesystem decouples the pipelines from the os package so the
// scan/compare/act logic can run against an in-memory filesystem in tests.
package filesystem

import (
	"io"
	"io/fs"
	"time"
)

// FileSystem is the filesystem surface the pipelines consume: stat, list,
// copy, move, delete, create-directory-if-absent, and timestamp rewriting.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (io.ReadCloser, error)

	// CreateExclusive creates the named file, failing with fs.ErrExist if it
	// already exists. Used by the copier to close the check-then-create race
	// left open by name allocation.
	CreateExclusive(name string) (io.WriteCloser, error)

	// ReadFile reads the named file and returns the contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (fs.FileInfo, error)

	// ReadDir reads the named directory, returning its entries sorted by
	// filename.
	ReadDir(name string) ([]fs.DirEntry, error)

	// Glob returns the names matching pattern, filepath.Glob style. The only
	// possible error is a malformed pattern.
	Glob(pattern string) ([]string, error)

	// WalkDir walks the file tree rooted at root, calling fn for each file
	// or directory in the tree, including root.
	WalkDir(root string, fn fs.WalkDirFunc) error

	// MkdirAll creates a directory named path along with any necessary
	// parents. It is a no-op if the directory already exists.
	MkdirAll(path string, perm fs.FileMode) error

	// Remove removes the named file or (empty) directory.
	Remove(name string) error

	// Rename renames (moves) oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Chtimes changes the access and modification times of the named file.
	Chtimes(name string, atime time.Time, mtime time.Time) error

	// Times returns the created/modified/accessed times of the named file.
	Times(name string) (FileTimes, error)
}

// FileTimes carries the filesystem timestamps of a single file. Created
// falls back to the modification time on platforms without a creation or
// change time (see times_*.go).
type FileTimes struct {
	Created  time.Time
	Modified time.Time
	Accessed time.Time
}
