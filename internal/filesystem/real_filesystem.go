package filesystem

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// RealFileSystem implements FileSystem using the standard os package.
type RealFileSystem struct{}

// NewRealFileSystem creates a new instance of RealFileSystem.
func NewRealFileSystem() *RealFileSystem {
	return &RealFileSystem{}
}

// Open opens the named file using os.Open.
func (rfs *RealFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// CreateExclusive creates the named file with O_EXCL so a concurrent create
// of the same name surfaces as fs.ErrExist instead of an overwrite.
func (rfs *RealFileSystem) CreateExclusive(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// ReadFile reads the named file using os.ReadFile.
func (rfs *RealFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to the named file using os.WriteFile.
func (rfs *RealFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Stat returns a FileInfo using os.Stat.
func (rfs *RealFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// ReadDir lists a directory using os.ReadDir.
func (rfs *RealFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// Glob expands pattern using filepath.Glob.
func (rfs *RealFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// WalkDir walks the file tree using filepath.WalkDir.
func (rfs *RealFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// MkdirAll creates a directory using os.MkdirAll.
func (rfs *RealFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes the named file or directory using os.Remove.
func (rfs *RealFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Rename renames (moves) a file using os.Rename.
func (rfs *RealFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Chtimes changes the access and modification times using os.Chtimes.
func (rfs *RealFileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Times stats the named file and extracts the platform file times.
func (rfs *RealFileSystem) Times(name string) (FileTimes, error) {
	info, err := os.Stat(name)
	if err != nil {
		return FileTimes{}, err
	}
	return platformTimes(info), nil
}
