// Package diff computes the set of files present in one directory but
// absent, by naming convention and timestamp, from another, and copies the
// unique ones to a destination.
package diff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gjcox/PhotoBackupUtils/internal/copier"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/scan"
	"github.com/gjcox/PhotoBackupUtils/internal/timestamp"
)

// Unique computes P − Q and copies the result.
type Unique struct {
	FS       filesystem.FileSystem
	Resolver *timestamp.Resolver
	Copier   *copier.Copier
	Logger   *slog.Logger
}

// NewUnique creates a set-difference pipeline.
func NewUnique(fsys filesystem.FileSystem, resolver *timestamp.Resolver, cp *copier.Copier, logger *slog.Logger) *Unique {
	return &Unique{FS: fsys, Resolver: resolver, Copier: cp, Logger: logger}
}

// ComputeAndCopy lists dirP and dirQ (recursively when recurse is set) and
// copies every file of P considered absent from Q into dest. Returned are
// the destination paths of the copies plus per-file failures; one bad file
// never aborts the batch.
//
// A file p matches candidates in Q by literal prefix: every q whose file
// name starts with p's base name, so `IMG_0001` matches `IMG_00012`. With
// no candidates p is unique. With candidates, p is still unique unless some
// candidate shares p's exact resolved timestamp. The scan is a deliberate
// pairwise O(|P|·|Q|) pass, acceptable at the directory sizes this tool
// targets.
func (u *Unique) ComputeAndCopy(ctx context.Context, dirP, dirQ, dest string, recurse bool) ([]string, map[string]error, error) {
	listP, err := scan.List(u.FS, dirP, recurse)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dirP, err)
	}
	listQ, err := scan.List(u.FS, dirQ, recurse)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dirQ, err)
	}

	var copied []string
	failures := make(map[string]error)

	for _, p := range listP {
		if err := ctx.Err(); err != nil {
			return copied, failures, err
		}

		unique, err := u.isUnique(p, listQ)
		if err != nil {
			failures[p.Path] = err
			continue
		}
		if !unique {
			if u.Logger != nil {
				u.Logger.Debug("already present", "file", p.Path)
			}
			continue
		}

		destPath, err := u.Copier.CopyTo(p.Path, dest)
		if err != nil {
			failures[p.Path] = err
			continue
		}
		copied = append(copied, destPath)
	}

	return copied, failures, nil
}

func (u *Unique) isUnique(p scan.FileRecord, listQ []scan.FileRecord) (bool, error) {
	var candidates []scan.FileRecord
	for _, q := range listQ {
		if strings.HasPrefix(q.Name(), p.Base) {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return true, nil
	}

	// Name alone is not enough: break the tie on the resolved timestamp.
	pTime, err := u.Resolver.Resolve(p.Path)
	if err != nil {
		return false, err
	}
	for _, q := range candidates {
		qTime, err := u.Resolver.Resolve(q.Path)
		if err != nil {
			if u.Logger != nil {
				u.Logger.Debug("cannot resolve candidate timestamp", "file", q.Path, "error", err)
			}
			continue
		}
		if qTime.Equal(pTime) {
			return false, nil
		}
	}
	return true, nil
}
