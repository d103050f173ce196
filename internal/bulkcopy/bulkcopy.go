// Package bulkcopy wraps the external bulk-copy collaborator used for
// archival tree copies, and implements the cutoff copy built on top of the
// timestamp resolver. The core only consumes "copy succeeded / failed" from
// the external tool, never its log format.
package bulkcopy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
)

// Result is the outcome of one bulk tree copy.
type Result struct {
	Succeeded bool
	Attempts  int
	Output    string
}

// TreeCopier copies a file tree from src to dst.
type TreeCopier interface {
	CopyTree(ctx context.Context, src, dst, pattern string, recurse bool, retries int, wait time.Duration) (Result, error)
}

// ExecCopier invokes an rsync-compatible external tool. Retries and the
// wait between attempts belong to this collaborator, not to the core logic.
type ExecCopier struct {
	Tool   string // binary to invoke; "rsync" resolves via PATH
	Logger *slog.Logger
}

// NewExecCopier creates an ExecCopier for the given tool path.
func NewExecCopier(tool string, logger *slog.Logger) *ExecCopier {
	if tool == "" {
		tool = "rsync"
	}
	return &ExecCopier{Tool: tool, Logger: logger}
}

// CopyTree copies src into dst, filtered by pattern when non-empty. On
// failure it retries up to retries more times, waiting wait between
// attempts.
func (c *ExecCopier) CopyTree(ctx context.Context, src, dst, pattern string, recurse bool, retries int, wait time.Duration) (Result, error) {
	args := c.args(src, dst, pattern, recurse)

	var lastOutput string
	attempts := 0
	for attempt := 0; attempt <= retries; attempt++ {
		attempts++
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts, Output: lastOutput}, err
		}

		cmd := exec.CommandContext(ctx, c.Tool, args...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		err := cmd.Run()
		lastOutput = out.String()

		if err == nil {
			return Result{Succeeded: true, Attempts: attempts, Output: lastOutput}, nil
		}
		if c.Logger != nil {
			c.Logger.Warn("bulk copy attempt failed",
				"tool", c.Tool, "attempt", attempts, "error", err)
		}
		if attempt < retries && wait > 0 {
			select {
			case <-ctx.Done():
				return Result{Attempts: attempts, Output: lastOutput}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return Result{Attempts: attempts, Output: lastOutput},
		fmt.Errorf("%w: %s failed after %d attempts", apperr.ErrExternalCapability, c.Tool, attempts)
}

func (c *ExecCopier) args(src, dst, pattern string, recurse bool) []string {
	args := []string{"-t"}
	if recurse {
		args = append(args, "-r")
	}
	if pattern != "" {
		args = append(args, "--include=*/", "--include="+pattern, "--exclude=*")
	}
	if !strings.HasSuffix(src, "/") {
		src += "/"
	}
	return append(args, src, dst)
}
