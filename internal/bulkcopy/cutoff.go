package bulkcopy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gjcox/PhotoBackupUtils/internal/copier"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/scan"
	"github.com/gjcox/PhotoBackupUtils/internal/timestamp"
)

// Cutoff copies the files of a tree whose resolved capture-time is at or
// after a cutoff instant.
type Cutoff struct {
	FS       filesystem.FileSystem
	Resolver *timestamp.Resolver
	Copier   *copier.Copier
	Logger   *slog.Logger
}

// NewCutoff creates a cutoff-copy pipeline.
func NewCutoff(fsys filesystem.FileSystem, resolver *timestamp.Resolver, cp *copier.Copier, logger *slog.Logger) *Cutoff {
	return &Cutoff{FS: fsys, Resolver: resolver, Copier: cp, Logger: logger}
}

// CopyNewer copies every file under src with resolved timestamp >= cutoff
// into dst, collision-avoiding. Per-file failures are isolated.
func (c *Cutoff) CopyNewer(ctx context.Context, src, dst string, cutoff time.Time, recurse bool) ([]string, map[string]error, error) {
	records, err := scan.List(c.FS, src, recurse)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", src, err)
	}

	var copied []string
	failures := make(map[string]error)

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return copied, failures, err
		}

		resolved, err := c.Resolver.Resolve(r.Path)
		if err != nil {
			failures[r.Path] = err
			continue
		}
		if resolved.Before(cutoff) {
			continue
		}

		destPath, err := c.Copier.CopyTo(r.Path, dst)
		if err != nil {
			failures[r.Path] = err
			continue
		}
		copied = append(copied, destPath)
	}

	return copied, failures, nil
}
