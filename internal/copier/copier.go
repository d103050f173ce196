// Package copier implements the collision-avoiding copy/move primitive every
// write path shares: allocate a free name via the suffix convention, create
// it exclusively, stream the bytes, and preserve or refresh timestamps.
package copier

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/naming"
)

// Options controls how a single file is transferred.
type Options struct {
	// Move deletes the source after a successful copy.
	Move bool

	// KeepNumbering disables stripping an existing `_N` suffix before
	// allocation, so `name_1` collides into `name_1_1` rather than `name_2`.
	KeepNumbering bool

	// NewTimestamps leaves the copy stamped with the transfer time instead
	// of carrying over the source's modified time.
	NewTimestamps bool

	// ReportOnly resolves the destination name without writing anything.
	ReportOnly bool
}

// Copier transfers single files into a destination directory.
type Copier struct {
	FS     filesystem.FileSystem
	Logger *slog.Logger
	Opts   Options
}

// NewCopier creates a Copier over fs with the given options.
func NewCopier(fsys filesystem.FileSystem, logger *slog.Logger, opts Options) *Copier {
	return &Copier{FS: fsys, Logger: logger, Opts: opts}
}

// CopyTo transfers src into destDir under a collision-free name and returns
// the destination path. Allocation is a pure query; the create itself is
// exclusive, and a lost race to the allocated name simply retries allocation
// until a name sticks.
func (c *Copier) CopyTo(src, destDir string) (string, error) {
	srcTimes, err := c.FS.Times(src)
	if err != nil {
		return "", fmt.Errorf("stat source %s: %w", src, err)
	}

	if !c.Opts.ReportOnly {
		if err := c.FS.MkdirAll(destDir, 0755); err != nil {
			return "", fmt.Errorf("create destination %s: %w", destDir, err)
		}
	}

	name := filepath.Base(src)
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]

	// Names whose create failed with ErrExist count as taken on the next
	// allocation. Stat follows symlinks, so a dangling symlink at a name
	// looks free while the exclusive create still trips over it; without
	// this the retry loop would re-allocate the same name forever.
	failed := make(map[string]bool)
	exists := func(candidate string) bool {
		if failed[candidate] {
			return true
		}
		_, statErr := c.FS.Stat(filepath.Join(destDir, candidate))
		return statErr == nil
	}

	for {
		allocated := naming.Allocate(base, ext, exists, !c.Opts.KeepNumbering)
		destPath := filepath.Join(destDir, allocated)

		if c.Opts.ReportOnly {
			if c.Logger != nil {
				c.Logger.Info("would copy", "source", src, "destination", destPath, "move", c.Opts.Move)
			}
			return destPath, nil
		}

		err := c.writeCopy(src, destPath)
		if errors.Is(err, fs.ErrExist) {
			// Lost the race for the allocated name; allocate again.
			failed[allocated] = true
			continue
		}
		if err != nil {
			return "", err
		}

		if !c.Opts.NewTimestamps {
			if err := c.FS.Chtimes(destPath, srcTimes.Accessed, srcTimes.Modified); err != nil {
				return "", fmt.Errorf("preserve times on %s: %w", destPath, err)
			}
		}

		if c.Opts.Move {
			if err := c.FS.Remove(src); err != nil {
				return "", fmt.Errorf("remove source %s after move: %w", src, err)
			}
		}

		if c.Logger != nil {
			c.Logger.Debug("copied", "source", src, "destination", destPath, "move", c.Opts.Move)
		}
		return destPath, nil
	}
}

// writeCopy streams src into an exclusively created destPath. A copy-then-
// delete move works across devices, which plain rename does not.
func (c *Copier) writeCopy(src, destPath string) error {
	w, err := c.FS.CreateExclusive(destPath)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	r, err := c.FS.Open(src)
	if err != nil {
		w.Close()
		c.FS.Remove(destPath)
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		c.FS.Remove(destPath)
		return fmt.Errorf("copy %s to %s: %w", src, destPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish %s: %w", destPath, err)
	}
	return nil
}
