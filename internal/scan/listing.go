// Package scan enumerates directory contents into FileRecords, the views
// over filesystem state consumed by the dedupe and set-difference pipelines,
// and expands glob-style path arguments.
package scan

import (
	"io/fs"
	"path/filepath"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
)

// FileRecord is a view over one file's filesystem state. Identity is Path.
type FileRecord struct {
	Path  string
	Dir   string
	Base  string // file name without extension
	Ext   string // extension including the dot
	Times filesystem.FileTimes
}

// Name returns the file name with extension.
func (r FileRecord) Name() string {
	return r.Base + r.Ext
}

// NewFileRecord builds a record for path with the given times.
func NewFileRecord(path string, times filesystem.FileTimes) FileRecord {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return FileRecord{
		Path:  path,
		Dir:   filepath.Dir(path),
		Base:  name[:len(name)-len(ext)],
		Ext:   ext,
		Times: times,
	}
}

// List enumerates the files directly inside dir, or transitively when
// recurse is set. Directories themselves are never listed. Enumeration
// order is whatever the underlying filesystem yields; nothing downstream
// depends on ordering.
func List(fsys filesystem.FileSystem, dir string, recurse bool) ([]FileRecord, error) {
	var records []FileRecord

	appendFile := func(path string) error {
		times, err := fsys.Times(path)
		if err != nil {
			return err
		}
		records = append(records, NewFileRecord(path, times))
		return nil
	}

	if !recurse {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := appendFile(filepath.Join(dir, entry.Name())); err != nil {
				return nil, err
			}
		}
		return records, nil
	}

	err := fsys.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		return appendFile(path)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ExpandArgs resolves glob-style path arguments into concrete file paths.
// Literal paths pass through after an existence check. Inputs that resolve
// to nothing or to an inaccessible entry come back as BadPathErrors so the
// caller can warn per input and continue with the rest.
func ExpandArgs(fsys filesystem.FileSystem, patterns []string) ([]string, []error) {
	var paths []string
	var bad []error

	for _, pattern := range patterns {
		matches, err := fsys.Glob(pattern)
		if err != nil {
			bad = append(bad, &apperr.BadPathError{Input: pattern, Err: err})
			continue
		}
		if len(matches) == 0 {
			// Not a glob hit; accept a literal path that exists.
			if _, statErr := fsys.Stat(pattern); statErr == nil {
				paths = append(paths, pattern)
			} else {
				bad = append(bad, &apperr.BadPathError{Input: pattern})
			}
			continue
		}
		for _, m := range matches {
			if _, statErr := fsys.Stat(m); statErr != nil {
				bad = append(bad, &apperr.BadPathError{Input: m, Err: statErr})
				continue
			}
			paths = append(paths, m)
		}
	}
	return paths, bad
}
