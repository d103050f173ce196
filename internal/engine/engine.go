// Package engine orchestrates the subcommands: enumerate the inputs, validate
// them, then act on each file in turn. Processing is sequential on purpose;
// every action is a single blocking filesystem or subprocess call, so the
// batch stays resumable and a crash mid-run leaves at most one file in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/bulkcopy"
	"github.com/gjcox/PhotoBackupUtils/internal/config"
	"github.com/gjcox/PhotoBackupUtils/internal/copier"
	"github.com/gjcox/PhotoBackupUtils/internal/dedupe"
	"github.com/gjcox/PhotoBackupUtils/internal/diff"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/metadata"
	"github.com/gjcox/PhotoBackupUtils/internal/scan"
	"github.com/gjcox/PhotoBackupUtils/internal/timestamp"
)

// Report summarizes the results of one run.
type Report struct {
	Copied    int
	Removed   int
	Relocated int
	Redated   int
	Skipped   int
	Errored   int
	Duration  time.Duration
	Errors    map[string]string // Map of FilePath -> ErrorMessage
}

// PrintSummary writes the report in the fixed summary layout.
func (r Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Files Copied:    %d\n", r.Copied)
	fmt.Fprintf(w, "Files Removed:   %d\n", r.Removed)
	fmt.Fprintf(w, "Files Relocated: %d\n", r.Relocated)
	fmt.Fprintf(w, "Files Redated:   %d\n", r.Redated)
	fmt.Fprintf(w, "Files Skipped:   %d\n", r.Skipped)
	fmt.Fprintf(w, "Files Errored:   %d\n", r.Errored)

	if r.Errored > 0 && r.Errors != nil {
		fmt.Fprintf(w, "\n--- Errors Encountered ---\n")
		for filePath, errMsg := range r.Errors {
			fmt.Fprintf(w, "ERROR: %s: %s\n", filePath, errMsg)
		}
	}
	fmt.Fprintf(w, "---------------\n")
}

// Engine orchestrates the file-management subcommands.
type Engine struct {
	Opts   *config.Options
	FS     filesystem.FileSystem
	Meta   metadata.Provider
	Tree   bulkcopy.TreeCopier
	Logger *slog.Logger
}

// NewEngine creates a new Engine instance with dependencies. Meta and Tree
// may be nil; the runs that need them fail per-file with
// apperr.ErrExternalCapability.
func NewEngine(opts *config.Options, fs filesystem.FileSystem, meta metadata.Provider, tree bulkcopy.TreeCopier, logger *slog.Logger) *Engine {
	return &Engine{Opts: opts, FS: fs, Meta: meta, Tree: tree, Logger: logger}
}

// resolver builds the timestamp resolver for this run. The metadata reader is
// only consulted for capture-bearing extensions; everything else falls
// straight through to filesystem times.
func (e *Engine) resolver() *timestamp.Resolver {
	var reader metadata.Reader
	if e.Meta != nil {
		reader = &extensionFilter{opts: e.Opts, reader: e.Meta}
	}
	r := timestamp.NewResolver(e.FS, reader, e.Logger)
	r.DefaultToModified = e.Opts.DefaultToModified
	return r
}

func (e *Engine) copier() *copier.Copier {
	return copier.NewCopier(e.FS, e.Logger, copier.Options{
		Move:          e.Opts.Move,
		KeepNumbering: e.Opts.KeepNumbering,
		NewTimestamps: e.Opts.NewTimestamps,
		ReportOnly:    e.Opts.ReportOnly,
	})
}

// extensionFilter answers ErrNoCaptureTime for formats that carry no capture
// time, so the resolver never pays the extraction cost for them.
type extensionFilter struct {
	opts   *config.Options
	reader metadata.Reader
}

func (f *extensionFilter) CaptureTimeRaw(path string) (string, error) {
	if !f.opts.CaptureBearing(filepath.Ext(path)) {
		return "", apperr.ErrNoCaptureTime
	}
	return f.reader.CaptureTimeRaw(path)
}

// RunCopy expands the path arguments and copies or moves each file into the
// configured destination. A bad path argument is a warning, not an error.
func (e *Engine) RunCopy(ctx context.Context, args []string) (Report, error) {
	startTime := time.Now()
	report := Report{Errors: make(map[string]string)}

	paths, bad := scan.ExpandArgs(e.FS, args)
	for _, b := range bad {
		e.Logger.Warn("skipping path argument", "error", b)
		report.Skipped++
	}

	cp := e.copier()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(startTime)
			return report, err
		}
		destPath, err := cp.CopyTo(path, e.Opts.Dest)
		if err != nil {
			report.Errored++
			report.Errors[path] = err.Error()
			e.Logger.Warn("copy failed", "file", path, "error", err)
			continue
		}
		report.Copied++
		if e.Opts.Move {
			report.Removed++
		}
		e.Logger.Debug("copy done", "file", path, "destination", destPath)
	}

	report.Duration = time.Since(startTime)
	e.Logger.Info("copy run finished",
		"copied", report.Copied, "skipped", report.Skipped, "errors", report.Errored)
	return report, nil
}

// RunDedupe resolves duplicates inside dir, once or continuously in watch
// mode.
func (e *Engine) RunDedupe(ctx context.Context, dir string) (Report, error) {
	if e.Opts.Watch {
		return e.watchDedupe(ctx, dir)
	}
	return e.dedupeOnce(ctx, dir)
}

func (e *Engine) dedupeOnce(ctx context.Context, dir string) (Report, error) {
	startTime := time.Now()
	report := Report{Errors: make(map[string]string)}

	detector := dedupe.NewDetector(e.FS, e.Logger)
	resolved, failures, err := detector.FindAndResolve(ctx, dir, e.Opts.Recurse, e.Opts.KeepDuplicates)

	for _, res := range resolved {
		if res.Relocated != "" {
			report.Relocated++
		} else {
			report.Removed++
		}
	}
	for path, ferr := range failures {
		report.Errored++
		report.Errors[path] = ferr.Error()
		e.Logger.Warn("duplicate resolution failed", "file", path, "error", ferr)
	}

	report.Duration = time.Since(startTime)
	if err != nil {
		return report, err
	}
	e.Logger.Info("dedupe run finished",
		"removed", report.Removed, "relocated", report.Relocated, "errors", report.Errored)
	return report, nil
}

// fsnotifyWatcher abstracts *fsnotify.Watcher so the watch loop can be driven
// by an injected fake in tests; the real watcher exposes Events/Errors as
// channel fields, not methods.
type fsnotifyWatcher interface {
	Add(name string) error
	Close() error
	Events() chan fsnotify.Event
	Errors() chan error
}

type fsnotifyWatcherAdapter struct {
	*fsnotify.Watcher
}

func (a *fsnotifyWatcherAdapter) Events() chan fsnotify.Event { return a.Watcher.Events }
func (a *fsnotifyWatcherAdapter) Errors() chan error          { return a.Watcher.Errors }

// newWatcher is replaced by tests to inject a fake watcher.
var newWatcher = func() (fsnotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifyWatcherAdapter{Watcher: w}, nil
}

// watchDedupe monitors dir and re-runs duplicate resolution after each quiet
// period. The full scan is cheap at the directory sizes this tool targets, so
// re-runs are not incremental.
func (e *Engine) watchDedupe(ctx context.Context, dir string) (Report, error) {
	watcher, err := newWatcher()
	if err != nil {
		return Report{}, fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := e.addWatchPaths(watcher, dir); err != nil {
		return Report{}, fmt.Errorf("failed to add paths to watcher: %w", err)
	}

	lastReport, initialErr := e.dedupeOnce(ctx, dir)
	if initialErr != nil && !errors.Is(initialErr, context.Canceled) {
		return lastReport, fmt.Errorf("initial run failed in watch mode: %w", initialErr)
	}
	lastReport.PrintSummary(os.Stderr)

	debounce := e.Opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	var debounceTimer *time.Timer
	triggerChan := make(chan struct{}, 1)

	e.Logger.Info("entering watch mode, monitoring for changes", "path", dir)

	duplicatesDir := filepath.Join(dir, dedupe.DuplicatesDirName)
	for {
		select {
		case <-ctx.Done():
			e.Logger.Info("received cancellation signal, exiting watch mode")
			return lastReport, context.Canceled

		case event, ok := <-watcher.Events():
			if !ok {
				return lastReport, errors.New("watcher event channel closed")
			}
			e.Logger.Debug("watcher event received", "event", event.String())

			// Relocations into Duplicates are our own writes.
			if strings.HasPrefix(event.Name, duplicatesDir+string(filepath.Separator)) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					select {
					case triggerChan <- struct{}{}:
					default:
					}
				})
			}

		case <-triggerChan:
			e.Logger.Info("change detected, re-running duplicate resolution")
			report, rerunErr := e.dedupeOnce(ctx, dir)
			if rerunErr != nil && !errors.Is(rerunErr, context.Canceled) {
				e.Logger.Error("re-run failed", "error", rerunErr)
			}
			lastReport = report
			lastReport.PrintSummary(os.Stderr)
			e.Logger.Info("watching for changes...")

		case werr, ok := <-watcher.Errors():
			if !ok {
				return lastReport, errors.New("watcher error channel closed")
			}
			e.Logger.Error("file watcher error, attempting to continue", "error", werr)
		}
	}
}

// addWatchPaths registers dir with the watcher, plus its subdirectories when
// recursing. fsnotify watches are not recursive by themselves.
func (e *Engine) addWatchPaths(watcher fsnotifyWatcher, dir string) error {
	if !e.Opts.Recurse {
		return watcher.Add(dir)
	}
	entries, err := e.FS.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == dedupe.DuplicatesDirName {
			continue
		}
		if err := e.addWatchPaths(watcher, filepath.Join(dir, entry.Name())); err != nil {
			e.Logger.Warn("failed to watch subdirectory, continuing",
				"path", filepath.Join(dir, entry.Name()), "error", err)
		}
	}
	return nil
}

// RunUnique copies the files of dirP considered absent from dirQ into the
// configured destination.
func (e *Engine) RunUnique(ctx context.Context, dirP, dirQ string) (Report, error) {
	startTime := time.Now()
	report := Report{Errors: make(map[string]string)}

	unique := diff.NewUnique(e.FS, e.resolver(), e.copier(), e.Logger)
	copied, failures, err := unique.ComputeAndCopy(ctx, dirP, dirQ, e.Opts.Dest, e.Opts.Recurse)

	report.Copied = len(copied)
	for path, ferr := range failures {
		report.Errored++
		report.Errors[path] = ferr.Error()
		e.Logger.Warn("unique copy failed", "file", path, "error", ferr)
	}

	report.Duration = time.Since(startTime)
	if err != nil {
		return report, err
	}
	e.Logger.Info("unique run finished", "copied", report.Copied, "errors", report.Errored)
	return report, nil
}

// RunRedate expands the path arguments and rewrites each file's stored dates
// to its canonical date.
func (e *Engine) RunRedate(ctx context.Context, args []string) (Report, error) {
	startTime := time.Now()
	report := Report{Errors: make(map[string]string)}

	paths, bad := scan.ExpandArgs(e.FS, args)
	for _, b := range bad {
		e.Logger.Warn("skipping path argument", "error", b)
		report.Skipped++
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(startTime)
			return report, err
		}
		changed, err := e.redateOne(path)
		switch {
		case err != nil:
			report.Errored++
			report.Errors[path] = err.Error()
			e.Logger.Warn("redate failed", "file", path, "error", err)
		case changed:
			report.Redated++
		default:
			report.Skipped++
			e.Logger.Debug("dates already canonical", "file", path)
		}
	}

	report.Duration = time.Since(startTime)
	e.Logger.Info("redate run finished",
		"redated", report.Redated, "skipped", report.Skipped, "errors", report.Errored)
	return report, nil
}

// redateOne selects the canonical date for path and rewrites the created date
// and the embedded capture date to it. The modified time is restored
// afterwards; the metadata tool touches it as a side effect.
func (e *Engine) redateOne(path string) (bool, error) {
	times, err := e.FS.Times(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	var captured *time.Time
	if e.Meta != nil && e.Opts.CaptureBearing(filepath.Ext(path)) {
		raw, err := e.Meta.CaptureTimeRaw(path)
		switch {
		case err == nil:
			if strings.TrimSpace(raw) == "" {
				break
			}
			t, ok := timestamp.ParseCaptureTime(raw)
			if !ok {
				return false, &apperr.TimestampParseError{Path: path, Raw: raw}
			}
			captured = &t
		case errors.Is(err, apperr.ErrNoCaptureTime):
			// expected miss
		default:
			e.Logger.Debug("capture-time read failed, treating as absent", "file", path, "error", err)
		}
	}

	sel := timestamp.SelectCanonical(times.Created, times.Modified, captured,
		e.Opts.UseLatest, e.Opts.IgnoreCreated)
	if !sel.RewriteCreated && !sel.RewriteCaptured {
		return false, nil
	}

	if e.Opts.ReportOnly {
		e.Logger.Info("would redate", "file", path, "date", sel.Date,
			"rewriteCreated", sel.RewriteCreated, "rewriteCaptured", sel.RewriteCaptured)
		return true, nil
	}

	if e.Meta == nil {
		return false, fmt.Errorf("%w: no metadata writer configured", apperr.ErrExternalCapability)
	}

	if sel.RewriteCreated {
		if err := e.Meta.SetCreateTime(path, sel.Date); err != nil {
			return false, fmt.Errorf("set create time on %s: %w", path, err)
		}
	}
	if captured != nil && sel.RewriteCaptured {
		if err := e.Meta.SetCaptureTime(path, sel.Date); err != nil {
			return false, fmt.Errorf("set capture time on %s: %w", path, err)
		}
	}

	if err := e.FS.Chtimes(path, times.Accessed, times.Modified); err != nil {
		return false, fmt.Errorf("restore modified time on %s: %w", path, err)
	}
	e.Logger.Info("redated", "file", path, "date", sel.Date)
	return true, nil
}

// RunCutoff copies src into dst. With a cutoff configured it copies only the
// files whose resolved timestamp is at or after the cutoff; without one it
// hands the whole tree to the external bulk-copy tool.
func (e *Engine) RunCutoff(ctx context.Context, src, dst string) (Report, error) {
	startTime := time.Now()
	report := Report{Errors: make(map[string]string)}

	if e.Opts.Since == "" {
		if e.Tree == nil {
			return report, fmt.Errorf("%w: no bulk-copy tool configured", apperr.ErrExternalCapability)
		}
		wait := time.Duration(e.Opts.WaitSeconds) * time.Second
		res, err := e.Tree.CopyTree(ctx, src, dst, "", e.Opts.Recurse, e.Opts.Retries, wait)
		report.Duration = time.Since(startTime)
		if err != nil {
			return report, fmt.Errorf("bulk copy %s to %s: %w", src, dst, err)
		}
		e.Logger.Info("bulk copy finished", "source", src, "destination", dst, "attempts", res.Attempts)
		return report, nil
	}

	cutoffTime, err := config.ParseSince(e.Opts.Since)
	if err != nil {
		return report, fmt.Errorf("parsing cutoff: %w", err)
	}

	pipeline := bulkcopy.NewCutoff(e.FS, e.resolver(), e.copier(), e.Logger)
	copied, failures, err := pipeline.CopyNewer(ctx, src, dst, cutoffTime, e.Opts.Recurse)

	report.Copied = len(copied)
	for path, ferr := range failures {
		report.Errored++
		report.Errors[path] = ferr.Error()
		e.Logger.Warn("cutoff copy failed", "file", path, "error", ferr)
	}

	report.Duration = time.Since(startTime)
	if err != nil {
		return report, err
	}
	e.Logger.Info("cutoff run finished",
		"copied", report.Copied, "cutoff", cutoffTime, "errors", report.Errored)
	return report, nil
}
