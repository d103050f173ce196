// Package dedupe finds suffix siblings of files inside a directory tree and
// removes or relocates the confirmed duplicates.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/naming"
	"github.com/gjcox/PhotoBackupUtils/internal/scan"
)

// DuplicatesDirName is the subdirectory duplicates are relocated into when
// they are kept instead of deleted.
const DuplicatesDirName = "Duplicates"

// Resolution records one resolved duplicate.
type Resolution struct {
	Path      string // the suffixed duplicate
	Parent    string // the file it duplicates
	Relocated string // new path when kept, empty when deleted
}

// Detector scans a directory tree for suffix siblings.
type Detector struct {
	FS     filesystem.FileSystem
	Logger *slog.Logger
}

// NewDetector creates a Detector over fs.
func NewDetector(fsys filesystem.FileSystem, logger *slog.Logger) *Detector {
	return &Detector{FS: fsys, Logger: logger}
}

// FindAndResolve scans dir (recursively when recurse is set) and resolves
// every confirmed duplicate: deleted when keep is false, relocated into the
// Duplicates subdirectory under dir when keep is true.
//
// A file is a candidate duplicate when stripping `_N` layers off its base
// name reaches a file that exists in the same directory with the same
// extension. It is confirmed when its modified time OR its created time
// exactly equals the parent's. The chain is walked one layer per step past
// non-matches, so `name_2_1` is checked against both `name_2` and `name`.
//
// Per-file failures are isolated in the returned map and do not stop the
// scan. A relocation landing on an existing name inside Duplicates is a
// CollisionCreateError for that file, never auto-resolved.
func (d *Detector) FindAndResolve(ctx context.Context, dir string, recurse, keep bool) ([]Resolution, map[string]error, error) {
	records, err := scan.List(d.FS, dir, recurse)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	duplicatesDir := filepath.Join(dir, DuplicatesDirName)

	// Per-directory name index used as the sibling universe.
	index := make(map[string]map[string]scan.FileRecord)
	for _, r := range records {
		if index[r.Dir] == nil {
			index[r.Dir] = make(map[string]scan.FileRecord)
		}
		index[r.Dir][r.Name()] = r
	}

	var resolved []Resolution
	failures := make(map[string]error)

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return resolved, failures, err
		}
		// Files parked in Duplicates by an earlier run stay put;
		// deduplicating that folder is out of scope.
		if r.Dir == duplicatesDir {
			continue
		}
		if _, stillThere := index[r.Dir][r.Name()]; !stillThere {
			continue // already resolved as someone's duplicate
		}

		parent, found := d.findParent(index[r.Dir], r)
		if !found {
			continue
		}

		res, err := d.resolve(dir, r, parent, keep)
		if err != nil {
			failures[r.Path] = err
			continue
		}
		delete(index[r.Dir], r.Name())
		resolved = append(resolved, res)
	}

	return resolved, failures, nil
}

// findParent walks the suffix chain of r one layer at a time and returns the
// first same-directory file it confirms r against.
func (d *Detector) findParent(siblings map[string]scan.FileRecord, r scan.FileRecord) (scan.FileRecord, bool) {
	base := r.Base
	for {
		root, ok := naming.Strip(base)
		if !ok {
			return scan.FileRecord{}, false
		}
		if parent, exists := siblings[root+r.Ext]; exists && parent.Path != r.Path {
			if d.confirmed(r, parent) {
				return parent, true
			}
			if d.Logger != nil {
				d.Logger.Debug("suffix sibling rejected, timestamps differ",
					"file", r.Path, "sibling", parent.Path)
			}
		}
		base = root
	}
}

// confirmed applies the date-equality rule: modified matches OR created
// matches, exactly. Coincidental collisions across unrelated files are a
// known false-positive risk accepted by this rule.
func (d *Detector) confirmed(candidate, parent scan.FileRecord) bool {
	return candidate.Times.Modified.Equal(parent.Times.Modified) ||
		candidate.Times.Created.Equal(parent.Times.Created)
}

func (d *Detector) resolve(rootDir string, r scan.FileRecord, parent scan.FileRecord, keep bool) (Resolution, error) {
	res := Resolution{Path: r.Path, Parent: parent.Path}

	if !keep {
		if err := d.FS.Remove(r.Path); err != nil {
			return Resolution{}, fmt.Errorf("removing duplicate %s: %w", r.Path, err)
		}
		if d.Logger != nil {
			d.Logger.Info("removed duplicate", "file", r.Path, "of", parent.Path)
		}
		return res, nil
	}

	duplicatesDir := filepath.Join(rootDir, DuplicatesDirName)
	if err := d.FS.MkdirAll(duplicatesDir, 0755); err != nil {
		return Resolution{}, fmt.Errorf("creating %s: %w", duplicatesDir, err)
	}

	target := filepath.Join(duplicatesDir, r.Name())
	if _, err := d.FS.Stat(target); err == nil {
		return Resolution{}, &apperr.CollisionCreateError{Path: target}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Resolution{}, fmt.Errorf("checking %s: %w", target, err)
	}

	if err := d.FS.Rename(r.Path, target); err != nil {
		return Resolution{}, fmt.Errorf("relocating %s: %w", r.Path, err)
	}
	if d.Logger != nil {
		d.Logger.Info("relocated duplicate", "file", r.Path, "of", parent.Path, "to", target)
	}
	res.Relocated = target
	return res, nil
}
