package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/bulkcopy"
	"github.com/gjcox/PhotoBackupUtils/internal/config"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProvider is an in-memory metadata.Provider for engine tests.
type stubProvider struct {
	raw          map[string]string
	setCapture   map[string]time.Time
	setCreate    map[string]time.Time
	writeErr     error
	capabilityUp bool
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		raw:          make(map[string]string),
		setCapture:   make(map[string]time.Time),
		setCreate:    make(map[string]time.Time),
		capabilityUp: true,
	}
}

func (s *stubProvider) CaptureTimeRaw(path string) (string, error) {
	if !s.capabilityUp {
		return "", apperr.ErrExternalCapability
	}
	raw, ok := s.raw[path]
	if !ok {
		return "", apperr.ErrNoCaptureTime
	}
	return raw, nil
}

func (s *stubProvider) SetCaptureTime(path string, t time.Time) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.setCapture[path] = t
	return nil
}

func (s *stubProvider) SetCreateTime(path string, t time.Time) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.setCreate[path] = t
	return nil
}

func fileTimes(t time.Time) filesystem.FileTimes {
	return filesystem.FileTimes{Created: t, Modified: t, Accessed: t}
}

func TestRunCopy(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/in/a.jpg", []byte("a"), fileTimes(base))
	fs.AddFile("/in/b.jpg", []byte("b"), fileTimes(base))
	fs.AddDir("/out")

	opts := &config.Options{Dest: "/out"}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	report, err := eng.RunCopy(context.Background(), []string{"/in/a.jpg", "/in/b.jpg", "/in/missing.jpg"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Copied)
	assert.Equal(t, 1, report.Skipped, "a bad path argument is skipped, not errored")
	assert.Equal(t, 0, report.Errored)
	assert.True(t, fs.Exists("/out/a.jpg"))
	assert.True(t, fs.Exists("/out/b.jpg"))
}

func TestRunCopyMoveCountsRemovals(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/in/a.jpg", []byte("a"), fileTimes(base))
	fs.AddDir("/out")

	opts := &config.Options{Dest: "/out", Move: true}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	report, err := eng.RunCopy(context.Background(), []string{"/in/a.jpg"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Copied)
	assert.Equal(t, 1, report.Removed)
	assert.False(t, fs.Exists("/in/a.jpg"))
}

func TestRunDedupe(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Duplicates removed", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/d/name.jpg", []byte("x"), fileTimes(base))
		fs.AddFile("/d/name_1.jpg", []byte("x"), fileTimes(base))
		fs.AddFile("/d/other.jpg", []byte("y"), fileTimes(base.Add(time.Hour)))

		eng := NewEngine(&config.Options{}, fs, nil, nil, testLogger())
		report, err := eng.RunDedupe(context.Background(), "/d")
		require.NoError(t, err)

		assert.Equal(t, 1, report.Removed)
		assert.Equal(t, 0, report.Relocated)
		assert.False(t, fs.Exists("/d/name_1.jpg"))
		assert.True(t, fs.Exists("/d/name.jpg"))
	})

	t.Run("Duplicates kept are relocated", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/d/name.jpg", []byte("x"), fileTimes(base))
		fs.AddFile("/d/name_1.jpg", []byte("x"), fileTimes(base))

		eng := NewEngine(&config.Options{KeepDuplicates: true}, fs, nil, nil, testLogger())
		report, err := eng.RunDedupe(context.Background(), "/d")
		require.NoError(t, err)

		assert.Equal(t, 1, report.Relocated)
		assert.True(t, fs.Exists("/d/Duplicates/name_1.jpg"))
	})
}

func TestRunUnique(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/p/only.jpg", []byte("u"), fileTimes(base))
	fs.AddFile("/p/both.jpg", []byte("b"), fileTimes(base))
	fs.AddFile("/q/both.jpg", []byte("b"), fileTimes(base))
	fs.AddDir("/out")

	opts := &config.Options{Dest: "/out"}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	report, err := eng.RunUnique(context.Background(), "/p", "/q")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Copied)
	assert.True(t, fs.Exists("/out/only.jpg"))
	assert.False(t, fs.Exists("/out/both.jpg"))
}

func TestRunRedate(t *testing.T) {
	early := time.Date(2019, 8, 12, 11, 22, 33, 0, time.UTC)
	mid := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	late := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Created rewritten to earliest", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/img.jpg", []byte("x"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		meta := newStubProvider()

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/img.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Redated)
		assert.True(t, mid.Equal(meta.setCreate["/p/img.jpg"]))
		assert.Empty(t, meta.setCapture, "no embedded capture time to rewrite")
		assert.Contains(t, fs.ChtimesCalls, "/p/img.jpg", "modified time is restored after the write")
	})

	t.Run("Capture time is a candidate and gets rewritten", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/img.jpg", []byte("x"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		meta := newStubProvider()
		meta.raw["/p/img.jpg"] = "2019:08:12 11:22:33"

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/img.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Redated)
		assert.True(t, early.Equal(meta.setCreate["/p/img.jpg"]))
		assert.Empty(t, meta.setCapture, "capture time already equals the canonical date")
	})

	t.Run("Capture time rewritten when not canonical", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/img.jpg", []byte("x"),
			filesystem.FileTimes{Created: early, Modified: early, Accessed: early})
		meta := newStubProvider()
		meta.raw["/p/img.jpg"] = "2021:03:04 10:00:00"

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/img.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Redated)
		assert.True(t, early.Equal(meta.setCapture["/p/img.jpg"]))
		assert.Empty(t, meta.setCreate, "created already equals the canonical date")
	})

	t.Run("Already canonical is skipped", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/img.jpg", []byte("x"),
			filesystem.FileTimes{Created: early, Modified: early, Accessed: early})
		meta := newStubProvider()

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/img.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 0, report.Redated)
		assert.Equal(t, 1, report.Skipped)
		assert.Empty(t, meta.setCreate)
	})

	t.Run("Unparseable capture time is a per-file error", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/bad.jpg", []byte("x"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		fs.AddFile("/p/good.jpg", []byte("y"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		meta := newStubProvider()
		meta.raw["/p/bad.jpg"] = "not a timestamp at all"

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/bad.jpg", "/p/good.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Errored)
		assert.Contains(t, report.Errors, "/p/bad.jpg")
		assert.Equal(t, 1, report.Redated, "one bad file never aborts the batch")
	})

	t.Run("Report only performs no writes", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/img.jpg", []byte("x"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		meta := newStubProvider()

		eng := NewEngine(&config.Options{ReportOnly: true}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/img.jpg"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Redated)
		assert.Empty(t, meta.setCreate)
		assert.Empty(t, meta.setCapture)
		assert.Empty(t, fs.ChtimesCalls)
	})

	t.Run("Non capture-bearing extension never queries metadata", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/p/notes.txt", []byte("x"),
			filesystem.FileTimes{Created: late, Modified: mid, Accessed: late})
		meta := newStubProvider()
		meta.capabilityUp = false // would error if queried

		eng := NewEngine(&config.Options{}, fs, meta, nil, testLogger())
		report, err := eng.RunRedate(context.Background(), []string{"/p/notes.txt"})
		require.NoError(t, err)

		assert.Equal(t, 1, report.Redated)
		assert.Equal(t, 0, report.Errored)
	})
}

func TestRunCutoff(t *testing.T) {
	base := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("No cutoff delegates to the bulk tool", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddDir("/src")
		tree := &bulkcopy.StubCopier{Result: bulkcopy.Result{Succeeded: true, Attempts: 1}}

		opts := &config.Options{Recurse: true, Retries: 2, WaitSeconds: 3}
		eng := NewEngine(opts, fs, nil, tree, testLogger())

		_, err := eng.RunCutoff(context.Background(), "/src", "/dst")
		require.NoError(t, err)

		require.Len(t, tree.Calls, 1)
		call := tree.Calls[0]
		assert.Equal(t, "/src", call.Src)
		assert.Equal(t, "/dst", call.Dst)
		assert.True(t, call.Recurse)
		assert.Equal(t, 2, call.Retries)
		assert.Equal(t, 3*time.Second, call.Wait)
	})

	t.Run("Bulk tool failure surfaces", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		tree := &bulkcopy.StubCopier{Err: apperr.ErrExternalCapability}

		eng := NewEngine(&config.Options{}, fs, nil, tree, testLogger())
		_, err := eng.RunCutoff(context.Background(), "/src", "/dst")
		assert.True(t, errors.Is(err, apperr.ErrExternalCapability))
	})

	t.Run("Cutoff copies files at or after the instant", func(t *testing.T) {
		fs := filesystem.NewMockFileSystem()
		fs.AddFile("/src/old.jpg", []byte("o"), fileTimes(base.Add(-time.Hour)))
		fs.AddFile("/src/new.jpg", []byte("n"), fileTimes(base.Add(time.Hour)))
		fs.AddDir("/dst")

		opts := &config.Options{Since: "2023-07-01"}
		eng := NewEngine(opts, fs, nil, nil, testLogger())

		report, err := eng.RunCutoff(context.Background(), "/src", "/dst")
		require.NoError(t, err)

		assert.Equal(t, 1, report.Copied)
		assert.True(t, fs.Exists("/dst/new.jpg"))
		assert.False(t, fs.Exists("/dst/old.jpg"))
	})
}

func TestRunCopyCancellation(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/in/a.jpg", []byte("a"), fileTimes(base))
	fs.AddDir("/out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine(&config.Options{Dest: "/out"}, fs, nil, nil, testLogger())
	report, err := eng.RunCopy(ctx, []string{"/in/a.jpg"})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, report.Copied)
}

// fakeWatcher implements fsnotifyWatcher with injectable channels so watch
// mode can be driven without touching the real filesystem notifier.
type fakeWatcher struct {
	eventChan chan fsnotify.Event
	errorChan chan error

	mu     sync.Mutex
	added  []string
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		eventChan: make(chan fsnotify.Event, 10),
		errorChan: make(chan error, 1),
	}
}

func (w *fakeWatcher) Add(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, name)
	return nil
}

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWatcher) Events() chan fsnotify.Event { return w.eventChan }
func (w *fakeWatcher) Errors() chan error          { return w.errorChan }

func (w *fakeWatcher) wasClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWatcher) addedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.added...)
}

// swapWatcher routes newWatcher to the fake for the duration of the test.
func swapWatcher(t *testing.T, w *fakeWatcher) {
	t.Helper()
	orig := newWatcher
	newWatcher = func() (fsnotifyWatcher, error) { return w, nil }
	t.Cleanup(func() { newWatcher = orig })
}

func TestWatchDedupeShutdown(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/d/name.jpg", []byte("x"), fileTimes(base))
	fs.AddFile("/d/name_1.jpg", []byte("x"), fileTimes(base))

	watcher := newFakeWatcher()
	swapWatcher(t, watcher)

	opts := &config.Options{Watch: true, Debounce: 20 * time.Millisecond}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		report Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := eng.RunDedupe(ctx, "/d")
		done <- result{report, err}
	}()

	// The initial pass runs before the loop starts waiting on events.
	assert.Eventually(t, func() bool { return !fs.Exists("/d/name_1.jpg") },
		2*time.Second, 10*time.Millisecond, "initial pass resolves the existing duplicate")

	cancel()
	select {
	case res := <-done:
		assert.True(t, errors.Is(res.err, context.Canceled))
		assert.Equal(t, 1, res.report.Removed)
	case <-time.After(2 * time.Second):
		t.Fatal("watch mode did not exit after cancellation")
	}

	assert.True(t, watcher.wasClosed())
	assert.Contains(t, watcher.addedPaths(), "/d")
}

func TestWatchDedupeRerunsOnEvent(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/d/name.jpg", []byte("x"), fileTimes(base))

	watcher := newFakeWatcher()
	swapWatcher(t, watcher)

	opts := &config.Options{Watch: true, Debounce: 20 * time.Millisecond}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := eng.RunDedupe(ctx, "/d")
		done <- err
	}()

	assert.Eventually(t, func() bool { return len(watcher.addedPaths()) > 0 },
		2*time.Second, 10*time.Millisecond, "watch paths registered")

	// A duplicate appears after the initial pass; a burst of events must
	// coalesce into one re-run that resolves it.
	fs.AddFile("/d/name_1.jpg", []byte("x"), fileTimes(base))
	watcher.eventChan <- fsnotify.Event{Name: "/d/name_1.jpg", Op: fsnotify.Create}
	watcher.eventChan <- fsnotify.Event{Name: "/d/name_1.jpg", Op: fsnotify.Write}

	assert.Eventually(t, func() bool { return !fs.Exists("/d/name_1.jpg") },
		2*time.Second, 10*time.Millisecond, "re-run resolves the new duplicate")
	assert.True(t, fs.Exists("/d/name.jpg"), "the original survives the re-run")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watch mode did not exit after cancellation")
	}
}

func TestWatchDedupeContinuesPastWatcherError(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/d/name.jpg", []byte("x"), fileTimes(base))

	watcher := newFakeWatcher()
	swapWatcher(t, watcher)

	opts := &config.Options{Watch: true, Debounce: 20 * time.Millisecond}
	eng := NewEngine(opts, fs, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := eng.RunDedupe(ctx, "/d")
		done <- err
	}()

	assert.Eventually(t, func() bool { return len(watcher.addedPaths()) > 0 },
		2*time.Second, 10*time.Millisecond, "watch paths registered")

	watcher.errorChan <- errors.New("inotify overflow")

	// The loop logs the error and keeps serving events.
	fs.AddFile("/d/name_1.jpg", []byte("x"), fileTimes(base))
	watcher.eventChan <- fsnotify.Event{Name: "/d/name_1.jpg", Op: fsnotify.Create}

	assert.Eventually(t, func() bool { return !fs.Exists("/d/name_1.jpg") },
		2*time.Second, 10*time.Millisecond, "events still processed after a watcher error")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watch mode did not exit after cancellation")
	}
}

func TestReportPrintSummary(t *testing.T) {
	report := Report{
		Copied:   3,
		Errored:  1,
		Duration: 1500 * time.Millisecond,
		Errors:   map[string]string{"/p/bad.jpg": "boom"},
	}

	var buf bytes.Buffer
	report.PrintSummary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Files Copied:    3")
	assert.Contains(t, out, "Files Errored:   1")
	assert.Contains(t, out, "ERROR: /p/bad.jpg: boom")
}
